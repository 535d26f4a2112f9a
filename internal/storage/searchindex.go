package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
	_ "modernc.org/sqlite" // SQLite driver
)

// SearchHit is one full-text match over persisted track documents.
type SearchHit struct {
	TrackID string  `json:"track_id"`
	Kind    string  `json:"kind"`
	Ref     string  `json:"ref"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// Document kinds stored in the index.
const (
	DocTrack        = "track"
	DocTask         = "task"
	DocVerification = "verification"
)

type searchDoc struct {
	kind  string
	ref   string
	title string
	body  string
}

// searchIndex is a read-only FTS5 index rebuilt from the persisted track
// files. It is a cache: deleting the database loses nothing.
type searchIndex struct {
	path string
	mu   sync.Mutex
	db   *sql.DB
}

func newSearchIndex(path string) *searchIndex {
	return &searchIndex{path: path}
}

func (ix *searchIndex) open(ctx context.Context) (*sql.DB, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db != nil {
		return ix.db, nil
	}

	db, err := sql.Open("sqlite", ix.path)
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			track_id UNINDEXED, kind UNINDEXED, ref UNINDEXED, title, body
		);
		CREATE TABLE IF NOT EXISTS indexed_tracks (
			track_id   TEXT PRIMARY KEY,
			stamp      TEXT NOT NULL
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init search index: %w", err)
	}
	ix.db = db
	return db, nil
}

func (ix *searchIndex) close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

func (ix *searchIndex) indexedStamp(ctx context.Context, trackID string) (string, error) {
	db, err := ix.open(ctx)
	if err != nil {
		return "", err
	}
	var stamp string
	err = db.QueryRowContext(ctx, `SELECT stamp FROM indexed_tracks WHERE track_id = ?`, trackID).Scan(&stamp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read index stamp: %w", err)
	}
	return stamp, nil
}

func (ix *searchIndex) replaceTrack(ctx context.Context, trackID, stamp string, docs []searchDoc) error {
	db, err := ix.open(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM docs_fts WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("clear track documents: %w", err)
	}
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO docs_fts (track_id, kind, ref, title, body) VALUES (?, ?, ?, ?, ?)`,
			trackID, d.kind, d.ref, d.title, d.body,
		); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO indexed_tracks (track_id, stamp) VALUES (?, ?)
		ON CONFLICT(track_id) DO UPDATE SET stamp = excluded.stamp
	`, trackID, stamp); err != nil {
		return fmt.Errorf("stamp track: %w", err)
	}
	return tx.Commit()
}

func (ix *searchIndex) query(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	db, err := ix.open(ctx)
	if err != nil {
		return nil, err
	}

	// Quote the whole query so FTS5 operators and punctuation match literally.
	sanitized := `"` + escapeQuotes(query) + `"`
	rows, err := db.QueryContext(ctx, `
		SELECT track_id, kind, ref, title, snippet(docs_fts, 4, '[', ']', '...', 16), rank
		FROM docs_fts
		WHERE docs_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.TrackID, &h.Kind, &h.Ref, &h.Title, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

// escapeQuotes escapes double quotes for FTS5 literal matching.
func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// Search refreshes the index for every track whose state or verification log
// changed since it was last indexed, then runs the query.
func (s *fileTrackStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: query must not be empty")
	}
	if limit <= 0 {
		limit = 50
	}

	entries, err := s.ListTracks(TrackFilter{})
	if err != nil {
		return nil, fmt.Errorf("search: listing tracks: %w", err)
	}
	for _, e := range entries {
		if err := s.refreshIndex(ctx, e); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}
	return s.index.query(ctx, query, limit)
}

// indexStamp fingerprints what the index holds for a track: the committed
// generation of its state and the size of its append-only verification log.
// It is read before the track is loaded, so a write racing a refresh only
// causes one more refresh later.
func (s *fileTrackStore) indexStamp(trackID string) (string, error) {
	gen, err := s.generation(trackID)
	if err != nil {
		return "", err
	}
	var logSize int64
	info, err := os.Stat(s.jsonLogPath(trackID))
	switch {
	case err == nil:
		logSize = info.Size()
	case !os.IsNotExist(err):
		return "", fmt.Errorf("stat verification log: %w", err)
	}
	return fmt.Sprintf("g%d/log%d", gen, logSize), nil
}

func (s *fileTrackStore) refreshIndex(ctx context.Context, e TrackEntry) error {
	stamp, err := s.indexStamp(e.ID)
	if err != nil {
		return err
	}
	current, err := s.index.indexedStamp(ctx, e.ID)
	if err != nil {
		return err
	}
	if current == stamp {
		return nil
	}

	track, tasks, err := s.Load(ctx, e.ID)
	if err != nil {
		return err
	}
	results, err := s.ReadVerificationLog(ctx, e.ID, "")
	if err != nil {
		return err
	}
	return s.index.replaceTrack(ctx, e.ID, stamp, buildSearchDocs(track, tasks, results))
}

func buildSearchDocs(track models.Track, tasks []models.Task, results []models.VerificationResult) []searchDoc {
	docs := make([]searchDoc, 0, 1+len(tasks)+len(results))

	var phases []string
	for _, p := range track.Phases {
		phases = append(phases, p.ID+" "+p.Title)
	}
	docs = append(docs, searchDoc{
		kind:  DocTrack,
		ref:   track.ID,
		title: track.Title,
		body:  strings.Join(phases, "\n"),
	})

	for _, t := range tasks {
		body := []string{t.Description, t.Concern}
		body = append(body, t.TargetArtifacts...)
		body = append(body, t.AcceptanceCriteria...)
		docs = append(docs, searchDoc{
			kind:  DocTask,
			ref:   t.ID,
			title: t.Title,
			body:  strings.Join(body, "\n"),
		})
	}

	for _, r := range results {
		if len(r.Gaps) == 0 && len(r.Warnings) == 0 && r.Reason == "" {
			continue
		}
		body := append(append([]string{}, r.Gaps...), r.Warnings...)
		if r.Reason != "" {
			body = append(body, r.Reason)
		}
		docs = append(docs, searchDoc{
			kind:  DocVerification,
			ref:   r.TaskID,
			title: "verification " + r.TaskID + " " + r.Timestamp.UTC().Format(time.RFC3339),
			body:  strings.Join(body, "\n"),
		})
	}
	return docs
}
