package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
	"gopkg.in/yaml.v3"
)

// TrackEntry is a single track's line in the registry.
type TrackEntry struct {
	ID        string             `yaml:"id"`
	Title     string             `yaml:"title"`
	Status    models.TrackStatus `yaml:"status"`
	Total     int                `yaml:"total"`
	Completed int                `yaml:"completed"`
	Created   time.Time          `yaml:"created"`
	Updated   time.Time          `yaml:"updated"`
}

// TrackFilter selects registry entries. Empty fields match everything.
type TrackFilter struct {
	Status []models.TrackStatus
}

// registryFile is the top-level structure of tracks.yaml.
type registryFile struct {
	Version string                `yaml:"version"`
	Tracks  map[string]TrackEntry `yaml:"tracks"`
}

// trackRegistry is the tracks.yaml index of every track under the base path.
// It is a listing aid only; track.json stays the source of truth.
type trackRegistry struct {
	basePath string
	data     registryFile
}

func newTrackRegistry(basePath string) *trackRegistry {
	return &trackRegistry{
		basePath: basePath,
		data:     registryFile{Version: "1.0", Tracks: make(map[string]TrackEntry)},
	}
}

func (r *trackRegistry) filePath() string {
	return filepath.Join(r.basePath, "tracks.yaml")
}

func (r *trackRegistry) lockPath() string {
	return filepath.Join(r.basePath, ".tracks.lock")
}

func (r *trackRegistry) load() error {
	data, err := os.ReadFile(r.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			r.data = registryFile{Version: "1.0", Tracks: make(map[string]TrackEntry)}
			return nil
		}
		return fmt.Errorf("loading registry: %w", err)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("loading registry: parsing YAML: %w", err)
	}
	if rf.Tracks == nil {
		rf.Tracks = make(map[string]TrackEntry)
	}
	r.data = rf
	return nil
}

func (r *trackRegistry) save() error {
	data, err := yaml.Marshal(&r.data)
	if err != nil {
		return fmt.Errorf("saving registry: marshaling YAML: %w", err)
	}
	if err := atomicWriteFile(r.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

func (r *trackRegistry) upsert(entry TrackEntry) {
	r.data.Tracks[entry.ID] = entry
}

func (r *trackRegistry) all() []TrackEntry {
	entries := make([]TrackEntry, 0, len(r.data.Tracks))
	for _, e := range r.data.Tracks {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

func (r *trackRegistry) filter(f TrackFilter) []TrackEntry {
	var out []TrackEntry
	for _, e := range r.all() {
		if len(f.Status) > 0 && !containsTrackStatus(f.Status, e.Status) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsTrackStatus(haystack []models.TrackStatus, needle models.TrackStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func entryFor(track models.Track, tasks []models.Task) TrackEntry {
	completed := 0
	for _, t := range tasks {
		if t.Status == models.TaskCompleted {
			completed++
		}
	}
	return TrackEntry{
		ID:        track.ID,
		Title:     track.Title,
		Status:    track.Status,
		Total:     len(tasks),
		Completed: completed,
		Created:   track.CreatedAt,
		Updated:   track.UpdatedAt,
	}
}
