package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

var errFakeNotFound = errors.New("track not initialized")

// memStore is an in-memory TrackStore. Every read hands out copies so tests
// observe only committed state.
type memStore struct {
	mu        sync.Mutex
	tracks    map[string]models.Track
	tasks     map[string][]models.Task
	log       map[string][]models.VerificationResult
	snapshots map[string]models.CompletionSnapshot
	hits      []SearchHit
	updates   int
}

func newMemStore() *memStore {
	return &memStore{
		tracks:    make(map[string]models.Track),
		tasks:     make(map[string][]models.Task),
		log:       make(map[string][]models.VerificationResult),
		snapshots: make(map[string]models.CompletionSnapshot),
	}
}

func copyTasks(in []models.Task) []models.Task {
	out := make([]models.Task, len(in))
	for i, t := range in {
		t.Dependencies = append([]string(nil), t.Dependencies...)
		t.TargetArtifacts = append([]string(nil), t.TargetArtifacts...)
		t.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
		t.Blocks = nil
		if t.VerificationResult != nil {
			r := *t.VerificationResult
			t.VerificationResult = &r
		}
		out[i] = t
	}
	return out
}

func copyTrack(in models.Track) models.Track {
	in.TaskOrder = append([]string(nil), in.TaskOrder...)
	phases := make([]models.Phase, len(in.Phases))
	for i, p := range in.Phases {
		p.TaskIDs = append([]string(nil), p.TaskIDs...)
		phases[i] = p
	}
	in.Phases = phases
	return in
}

func (s *memStore) Load(_ context.Context, trackID string) (models.Track, []models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.tracks[trackID]
	if !ok {
		return models.Track{}, nil, fmt.Errorf("load %s: %w", trackID, errFakeNotFound)
	}
	return copyTrack(track), copyTasks(s.tasks[trackID]), nil
}

func (s *memStore) Create(_ context.Context, track models.Track, tasks []models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[track.ID]; ok {
		return fmt.Errorf("create %s: track exists", track.ID)
	}
	s.tracks[track.ID] = copyTrack(track)
	s.tasks[track.ID] = copyTasks(tasks)
	return nil
}

func (s *memStore) Update(ctx context.Context, trackID string, fn func(tx *TrackTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.tracks[trackID]
	if !ok {
		return fmt.Errorf("update %s: %w", trackID, errFakeNotFound)
	}
	tx := &TrackTx{Track: copyTrack(track), Tasks: copyTasks(s.tasks[trackID])}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.updates++
	s.log[trackID] = append(s.log[trackID], tx.Results...)
	s.tracks[trackID] = copyTrack(tx.Track)
	s.tasks[trackID] = copyTasks(tx.Tasks)
	if tx.Snapshot != nil {
		s.snapshots[trackID] = *tx.Snapshot
	}
	return nil
}

func (s *memStore) ReadVerificationLog(_ context.Context, trackID, taskID string) ([]models.VerificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VerificationResult
	for _, r := range s.log[trackID] {
		if taskID == "" || r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) SaveSnapshot(_ context.Context, snap models.CompletionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.TrackID] = snap
	return nil
}

func (s *memStore) ListTracks(context.Context) ([]TrackInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TrackInfo
	for id, tr := range s.tracks {
		out = append(out, TrackInfo{ID: id, Title: tr.Title, Status: tr.Status, Total: len(s.tasks[id])})
	}
	return out, nil
}

func (s *memStore) Search(context.Context, string, int) ([]SearchHit, error) {
	return s.hits, nil
}

// fakeRestorer records baseline restores.
type fakeRestorer struct {
	ref      string
	refErr   error
	restored map[string][]string
}

func (f *fakeRestorer) CurrentRef(context.Context) (string, error) {
	return f.ref, f.refErr
}

func (f *fakeRestorer) Restore(_ context.Context, ref string, paths []string) error {
	if f.restored == nil {
		f.restored = make(map[string][]string)
	}
	f.restored[ref] = append(f.restored[ref], paths...)
	return nil
}

// recordingEvents captures emitted events.
type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Type string
	Data map[string]any
}

func (r *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (r *recordingEvents) ofType(eventType string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
