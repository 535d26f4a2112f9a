package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// validIDPattern restricts track and task ids to names that are safe to use
// as single path components.
var validIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidID reports whether id can be used as a track or task id.
func ValidID(id string) bool {
	return validIDPattern.MatchString(id)
}

// Tx is one track held under its lock for a read-modify-write cycle. Results
// queued with AppendVerification are written to the log before the state.
type Tx struct {
	Track models.Track
	Tasks []models.Task

	results  []models.VerificationResult
	snapshot *models.CompletionSnapshot
}

// AppendVerification queues a verification result for the log.
func (tx *Tx) AppendVerification(r models.VerificationResult) {
	tx.results = append(tx.results, r)
}

// SetSnapshot queues the advisory completion snapshot.
func (tx *Tx) SetSnapshot(s models.CompletionSnapshot) {
	tx.snapshot = &s
}

// StoreOptions configures a TrackStore.
type StoreOptions struct {
	LockTimeout time.Duration
	LockBackoff time.Duration
}

// TrackStore is the durable, file-backed home of tracks, tasks and their
// verification history. Every method serializes on the track's lock.
type TrackStore interface {
	Load(ctx context.Context, trackID string) (models.Track, []models.Task, error)
	Save(ctx context.Context, track models.Track, tasks []models.Task) error
	Create(ctx context.Context, track models.Track, tasks []models.Task) error
	Update(ctx context.Context, trackID string, fn func(tx *Tx) error) error
	AppendVerificationLog(ctx context.Context, trackID string, result models.VerificationResult) error
	ReadVerificationLog(ctx context.Context, trackID, taskID string) ([]models.VerificationResult, error)
	SaveSnapshot(ctx context.Context, snapshot models.CompletionSnapshot) error
	LoadSnapshot(ctx context.Context, trackID string) (*models.CompletionSnapshot, error)
	ListTracks(filter TrackFilter) ([]TrackEntry, error)
	Exists(trackID string) bool
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	Close() error
}

type fileTrackStore struct {
	basePath string
	locks    *keyedLocker
	index    *searchIndex
}

// NewTrackStore creates a TrackStore rooted at basePath. Track data lives
// under basePath/tracks/<id>.
func NewTrackStore(basePath string, opts StoreOptions) TrackStore {
	return &fileTrackStore{
		basePath: basePath,
		locks:    newKeyedLocker(opts.LockTimeout, opts.LockBackoff),
		index:    newSearchIndex(filepath.Join(basePath, ".search.db")),
	}
}

func (s *fileTrackStore) trackDir(trackID string) string {
	return filepath.Join(s.basePath, "tracks", trackID)
}

func (s *fileTrackStore) trackFile(trackID string) string {
	return filepath.Join(s.trackDir(trackID), "track.json")
}

func (s *fileTrackStore) tasksDir(trackID string) string {
	return filepath.Join(s.trackDir(trackID), "tasks")
}

// taskFile names a task's file for one generation of the track's state.
func (s *fileTrackStore) taskFile(trackID, taskID string, gen int) string {
	return filepath.Join(s.tasksDir(trackID), fmt.Sprintf("%s.%d.json", taskID, gen))
}

func (s *fileTrackStore) trackingDir(trackID string) string {
	return filepath.Join(s.trackDir(trackID), "tracking")
}

func (s *fileTrackStore) lock(ctx context.Context, trackID, op string) (func(), error) {
	if !ValidID(trackID) {
		return nil, storeErr(trackID, op, fmt.Errorf("%w: %q", ErrInvalidID, trackID))
	}
	if err := os.MkdirAll(s.trackDir(trackID), 0o750); err != nil {
		return nil, storeErr(trackID, op, fmt.Errorf("creating track directory: %w", err))
	}
	unlock, err := s.locks.acquire(ctx, trackID, filepath.Join(s.trackDir(trackID), ".lock"))
	if err != nil {
		return nil, storeErr(trackID, op, err)
	}
	return unlock, nil
}

func (s *fileTrackStore) Exists(trackID string) bool {
	if !ValidID(trackID) {
		return false
	}
	_, err := os.Stat(s.trackFile(trackID))
	return err == nil
}

func (s *fileTrackStore) Load(ctx context.Context, trackID string) (models.Track, []models.Task, error) {
	if !s.Exists(trackID) {
		return models.Track{}, nil, storeErr(trackID, "load", ErrTrackNotInitialized)
	}
	unlock, err := s.lock(ctx, trackID, "load")
	if err != nil {
		return models.Track{}, nil, err
	}
	defer unlock()

	track, tasks, err := s.load(trackID)
	if err != nil {
		return models.Track{}, nil, storeErr(trackID, "load", err)
	}
	return track, tasks, nil
}

func (s *fileTrackStore) load(trackID string) (models.Track, []models.Task, error) {
	data, err := os.ReadFile(s.trackFile(trackID))
	if err != nil {
		if os.IsNotExist(err) {
			return models.Track{}, nil, ErrTrackNotInitialized
		}
		return models.Track{}, nil, fmt.Errorf("reading track.json: %w", err)
	}

	var rec trackRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Track{}, nil, fmt.Errorf("parsing track.json: %w", err)
	}
	track := rec.Track

	tasks := make([]models.Task, 0, len(track.TaskOrder))
	for _, id := range track.TaskOrder {
		raw, err := os.ReadFile(s.taskFile(trackID, id, rec.Generation))
		if err != nil {
			return models.Track{}, nil, fmt.Errorf("reading task %s: %w", id, err)
		}
		var task models.Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return models.Track{}, nil, fmt.Errorf("parsing task %s: %w", id, err)
		}
		tasks = append(tasks, task)
	}
	return track, tasks, nil
}

func (s *fileTrackStore) Save(ctx context.Context, track models.Track, tasks []models.Task) error {
	unlock, err := s.lock(ctx, track.ID, "save")
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.save(track, tasks); err != nil {
		return storeErr(track.ID, "save", err)
	}
	return s.register(ctx, track, tasks)
}

func (s *fileTrackStore) Create(ctx context.Context, track models.Track, tasks []models.Task) error {
	unlock, err := s.lock(ctx, track.ID, "create")
	if err != nil {
		return err
	}
	defer unlock()

	if s.Exists(track.ID) {
		return storeErr(track.ID, "create", ErrTrackExists)
	}
	if err := s.save(track, tasks); err != nil {
		return storeErr(track.ID, "create", err)
	}
	return s.register(ctx, track, tasks)
}

// trackRecord is the on-disk form of track.json. Generation names the set of
// task files the track was committed with.
type trackRecord struct {
	models.Track
	Generation int `json:"generation"`
}

// generation returns the committed generation of a track, or 0 when the
// track has never been saved.
func (s *fileTrackStore) generation(trackID string) (int, error) {
	data, err := os.ReadFile(s.trackFile(trackID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading track.json: %w", err)
	}
	var rec trackRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("parsing track.json: %w", err)
	}
	return rec.Generation, nil
}

// save writes every task file under a new generation and then track.json
// naming that generation. track.json is the commit point: until its rename
// the previous generation stays the loadable state. Superseded task files are
// removed only after the commit.
func (s *fileTrackStore) save(track models.Track, tasks []models.Task) error {
	if err := checkTaskOrder(track, tasks); err != nil {
		return err
	}
	prev, err := s.generation(track.ID)
	if err != nil {
		return err
	}

	written := make(map[string]bool, len(tasks))
	if err := s.writeGeneration(track, tasks, prev+1, written); err != nil {
		for path := range written {
			_ = os.Remove(path)
		}
		return err
	}
	s.pruneTaskFiles(track.ID, written)
	return nil
}

func (s *fileTrackStore) writeGeneration(track models.Track, tasks []models.Task, gen int, written map[string]bool) error {
	for _, task := range tasks {
		data, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling task %s: %w", task.ID, err)
		}
		path := s.taskFile(track.ID, task.ID, gen)
		if err := atomicWriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing task %s: %w", task.ID, err)
		}
		written[path] = true
	}

	data, err := json.MarshalIndent(trackRecord{Track: track, Generation: gen}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling track: %w", err)
	}
	if err := atomicWriteFile(s.trackFile(track.ID), data, 0o600); err != nil {
		return fmt.Errorf("writing track.json: %w", err)
	}
	return nil
}

// pruneTaskFiles removes task files that are not part of the committed
// generation. Failures leave garbage behind but never affect loading.
func (s *fileTrackStore) pruneTaskFiles(trackID string, keep map[string]bool) {
	entries, err := os.ReadDir(s.tasksDir(trackID))
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(s.tasksDir(trackID), e.Name())
		if e.IsDir() || keep[path] || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		_ = os.Remove(path)
	}
}

// checkTaskOrder requires track.TaskOrder to list exactly the given tasks.
func checkTaskOrder(track models.Track, tasks []models.Task) error {
	if len(track.TaskOrder) != len(tasks) {
		return fmt.Errorf("task order lists %d tasks, got %d", len(track.TaskOrder), len(tasks))
	}
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if !ValidID(t.ID) {
			return fmt.Errorf("%w: task %q", ErrInvalidID, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task %s", t.ID)
		}
		seen[t.ID] = true
	}
	for _, id := range track.TaskOrder {
		if !seen[id] {
			return fmt.Errorf("task order references unknown task %s", id)
		}
	}
	return nil
}

func (s *fileTrackStore) register(ctx context.Context, track models.Track, tasks []models.Task) error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return storeErr(track.ID, "register", err)
	}
	reg := newTrackRegistry(s.basePath)
	unlock, err := s.locks.acquire(ctx, ".registry", reg.lockPath())
	if err != nil {
		return storeErr(track.ID, "register", err)
	}
	defer unlock()

	if err := reg.load(); err != nil {
		return storeErr(track.ID, "register", err)
	}
	reg.upsert(entryFor(track, tasks))
	if err := reg.save(); err != nil {
		return storeErr(track.ID, "register", err)
	}
	return nil
}

func (s *fileTrackStore) Update(ctx context.Context, trackID string, fn func(tx *Tx) error) error {
	if !s.Exists(trackID) {
		return storeErr(trackID, "update", ErrTrackNotInitialized)
	}
	unlock, err := s.lock(ctx, trackID, "update")
	if err != nil {
		return err
	}
	defer unlock()

	track, tasks, err := s.load(trackID)
	if err != nil {
		return storeErr(trackID, "update", err)
	}

	tx := &Tx{Track: track, Tasks: tasks}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx.Track.ID != trackID {
		return storeErr(trackID, "update", errors.New("track id changed inside update"))
	}

	if len(tx.results) > 0 {
		if err := s.appendResults(trackID, tx.results); err != nil {
			return storeErr(trackID, "update", err)
		}
	}
	if err := s.save(tx.Track, tx.Tasks); err != nil {
		return storeErr(trackID, "update", err)
	}
	if tx.snapshot != nil {
		if err := s.writeSnapshot(*tx.snapshot); err != nil {
			return storeErr(trackID, "update", err)
		}
	}
	return s.register(ctx, tx.Track, tx.Tasks)
}

func (s *fileTrackStore) AppendVerificationLog(ctx context.Context, trackID string, result models.VerificationResult) error {
	if !s.Exists(trackID) {
		return storeErr(trackID, "append verification log", ErrTrackNotInitialized)
	}
	unlock, err := s.lock(ctx, trackID, "append verification log")
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.appendResults(trackID, []models.VerificationResult{result}); err != nil {
		return storeErr(trackID, "append verification log", err)
	}
	return nil
}

func (s *fileTrackStore) ReadVerificationLog(ctx context.Context, trackID, taskID string) ([]models.VerificationResult, error) {
	if !s.Exists(trackID) {
		return nil, storeErr(trackID, "read verification log", ErrTrackNotInitialized)
	}
	unlock, err := s.lock(ctx, trackID, "read verification log")
	if err != nil {
		return nil, err
	}
	defer unlock()

	all, err := readResults(s.jsonLogPath(trackID))
	if err != nil {
		return nil, storeErr(trackID, "read verification log", err)
	}
	if taskID == "" {
		return all, nil
	}
	var out []models.VerificationResult
	for _, r := range all {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fileTrackStore) snapshotPath(trackID string) string {
	return filepath.Join(s.trackingDir(trackID), "completion_status.json")
}

func (s *fileTrackStore) SaveSnapshot(ctx context.Context, snapshot models.CompletionSnapshot) error {
	if !s.Exists(snapshot.TrackID) {
		return storeErr(snapshot.TrackID, "save snapshot", ErrTrackNotInitialized)
	}
	unlock, err := s.lock(ctx, snapshot.TrackID, "save snapshot")
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.writeSnapshot(snapshot); err != nil {
		return storeErr(snapshot.TrackID, "save snapshot", err)
	}
	return nil
}

func (s *fileTrackStore) writeSnapshot(snapshot models.CompletionSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return atomicWriteFile(s.snapshotPath(snapshot.TrackID), data, 0o600)
}

// LoadSnapshot returns the last persisted snapshot, or nil if none was saved.
// The value is advisory; callers recompute before trusting it.
func (s *fileTrackStore) LoadSnapshot(_ context.Context, trackID string) (*models.CompletionSnapshot, error) {
	if !ValidID(trackID) {
		return nil, storeErr(trackID, "load snapshot", ErrInvalidID)
	}
	data, err := os.ReadFile(s.snapshotPath(trackID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, storeErr(trackID, "load snapshot", err)
	}
	var snap models.CompletionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, storeErr(trackID, "load snapshot", fmt.Errorf("parsing snapshot: %w", err))
	}
	return &snap, nil
}

func (s *fileTrackStore) ListTracks(filter TrackFilter) ([]TrackEntry, error) {
	reg := newTrackRegistry(s.basePath)
	if err := reg.load(); err != nil {
		return nil, err
	}
	return reg.filter(filter), nil
}

func (s *fileTrackStore) Close() error {
	return s.index.close()
}
