package core

import (
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// Reporter aggregates task state into completion figures. It never writes.
type Reporter interface {
	Summarize(track models.Track, tasks []models.Task) models.CompletionSnapshot
	CurrentTask(tasks []models.Task, order []string) *models.Task
}

type reporter struct {
	now func() time.Time
}

// NewReporter creates a Reporter. now stamps GeneratedAt and may be nil.
func NewReporter(now func() time.Time) Reporter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &reporter{now: now}
}

func (r *reporter) Summarize(track models.Track, tasks []models.Task) models.CompletionSnapshot {
	snap := models.CompletionSnapshot{
		TrackID:     track.ID,
		Status:      models.DeriveTrackStatus(tasks),
		Total:       len(tasks),
		GeneratedAt: r.now(),
	}

	status := make(map[string]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
		switch t.Status {
		case models.TaskCompleted:
			snap.Completed++
		case models.TaskInProgress:
			snap.InProgress++
		case models.TaskPending:
			snap.Pending++
		case models.TaskReady:
			snap.Ready++
		case models.TaskBlocked:
			snap.Blocked++
		case models.TaskFailed:
			snap.Failed++
		}
	}
	snap.Percent = percent(snap.Completed, snap.Total)

	snap.Phases = make([]models.PhaseProgress, 0, len(track.Phases))
	for _, ph := range track.Phases {
		p := models.PhaseProgress{PhaseID: ph.ID, Title: ph.Title}
		for _, id := range ph.TaskIDs {
			st, ok := status[id]
			if !ok {
				continue
			}
			p.Total++
			if st == models.TaskCompleted {
				p.Completed++
			}
		}
		p.Percent = percent(p.Completed, p.Total)
		snap.Phases = append(snap.Phases, p)
	}
	return snap
}

// percent rounds down. An empty set counts as done.
func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

// CurrentTask returns the first in_progress task in order, else the first
// ready one, else nil. The returned task is a copy.
func (r *reporter) CurrentTask(tasks []models.Task, order []string) *models.Task {
	return firstActive(tasks, order)
}

func firstActive(tasks []models.Task, order []string) *models.Task {
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, want := range []models.TaskStatus{models.TaskInProgress, models.TaskReady} {
		for _, id := range order {
			if t, ok := byID[id]; ok && t.Status == want {
				return &t
			}
		}
	}
	return nil
}

// currentPhase is the phase of the current task, or the last phase once
// nothing is left to pick up.
func currentPhase(track models.Track, current *models.Task) string {
	if current != nil {
		return current.Phase
	}
	if len(track.Phases) == 0 {
		return ""
	}
	if track.Status == models.TrackCompleted {
		return track.Phases[len(track.Phases)-1].ID
	}
	if track.CurrentPhase == "" {
		return track.Phases[0].ID
	}
	return track.CurrentPhase
}
