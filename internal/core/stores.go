package core

import (
	"context"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// TrackTx is one track held under its store lock for a read-modify-write
// cycle. Results are appended to the verification log and Snapshot, when
// set, replaces the advisory completion snapshot as part of the same commit.
type TrackTx struct {
	Track    models.Track
	Tasks    []models.Task
	Results  []models.VerificationResult
	Snapshot *models.CompletionSnapshot
}

// TrackStore persists tracks for the engine.
// This interface is defined locally in core to avoid importing storage.
type TrackStore interface {
	Load(ctx context.Context, trackID string) (models.Track, []models.Task, error)
	Create(ctx context.Context, track models.Track, tasks []models.Task) error
	Update(ctx context.Context, trackID string, fn func(tx *TrackTx) error) error
	ReadVerificationLog(ctx context.Context, trackID, taskID string) ([]models.VerificationResult, error)
	SaveSnapshot(ctx context.Context, snapshot models.CompletionSnapshot) error
	ListTracks(ctx context.Context) ([]TrackInfo, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// TrackInfo is a registry listing entry.
// This mirrors storage.TrackEntry but is defined here to avoid the import.
type TrackInfo struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Status    models.TrackStatus `json:"status"`
	Total     int                `json:"total"`
	Completed int                `json:"completed"`
	Created   time.Time          `json:"created"`
	Updated   time.Time          `json:"updated"`
}

// SearchHit is one full-text match.
// This mirrors storage.SearchHit but is defined here to avoid the import.
type SearchHit struct {
	TrackID string  `json:"track_id"`
	Kind    string  `json:"kind"`
	Ref     string  `json:"ref"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// BaselineRestorer reads and restores the version-control baseline a track
// was planned against.
type BaselineRestorer interface {
	CurrentRef(ctx context.Context) (string, error)
	Restore(ctx context.Context, ref string, paths []string) error
}
