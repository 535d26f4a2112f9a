package storage

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
	"pgregory.net/rapid"
)

func genTask(id string) *rapid.Generator[models.Task] {
	return rapid.Custom(func(t *rapid.T) models.Task {
		statuses := []models.TaskStatus{
			models.TaskPending, models.TaskReady, models.TaskInProgress,
			models.TaskBlocked, models.TaskCompleted, models.TaskFailed,
		}
		task := models.Task{
			ID:          id,
			Title:       rapid.StringMatching(`[A-Za-z ]{1,20}`).Draw(t, "title"),
			Description: rapid.StringMatching(`[a-z ]{0,40}`).Draw(t, "desc"),
			Phase:       rapid.SampledFrom([]string{"p1", "p2"}).Draw(t, "phase"),
			Concern:     rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "concern"),
			Priority:    rapid.IntRange(-3, 3).Draw(t, "priority"),
			Testable:    rapid.Bool().Draw(t, "testable"),
			Status:      rapid.SampledFrom(statuses).Draw(t, "status"),
			UpdatedAt:   time.Date(2026, 1, rapid.IntRange(1, 28).Draw(t, "day"), 0, 0, 0, 0, time.UTC),
		}
		if rapid.Bool().Draw(t, "hasArtifacts") {
			task.TargetArtifacts = rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}\.go`), 0, 3).Draw(t, "artifacts")
		}
		if rapid.Bool().Draw(t, "hasResult") {
			task.VerificationResult = &models.VerificationResult{
				ID:        "r-" + id,
				TaskID:    id,
				Timestamp: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
				Passed:    rapid.Bool().Draw(t, "passed"),
				Checks:    map[string]bool{models.CheckArtifactsExist: rapid.Bool().Draw(t, "exists")},
				Gaps:      rapid.SliceOfN(rapid.StringMatching(`missing: [a-z]{1,5}`), 0, 2).Draw(t, "gaps"),
			}
		}
		return task
	})
}

// Property: Save followed by Load reproduces the track and tasks field for field.
func TestProperty_SaveLoadRoundTrip(t *testing.T) {
	base := t.TempDir()
	s := NewTrackStore(base, StoreOptions{}).(*fileTrackStore)
	defer func() { _ = s.Close() }()

	run := 0
	rapid.Check(t, func(rt *rapid.T) {
		run++
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		tasks := make([]models.Task, 0, n)
		for i := 0; i < n; i++ {
			tasks = append(tasks, genTask(fmt.Sprintf("T-%03d", i)).Draw(rt, fmt.Sprintf("task%d", i)))
		}
		track := sampleTrack(fmt.Sprintf("prop-%d", run), tasks)

		ctx := context.Background()
		if err := s.Save(ctx, track, tasks); err != nil {
			rt.Fatalf("Save: %v", err)
		}
		gotTrack, gotTasks, err := s.Load(ctx, track.ID)
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		if !reflect.DeepEqual(gotTrack, track) {
			rt.Fatalf("track mismatch: got %+v want %+v", gotTrack, track)
		}
		if !reflect.DeepEqual(gotTasks, tasks) {
			rt.Fatalf("tasks mismatch: got %+v want %+v", gotTasks, tasks)
		}
	})
}
