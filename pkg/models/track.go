package models

import "time"

// TrackStatus is the derived lifecycle state of a whole track.
type TrackStatus string

const (
	TrackPlanning   TrackStatus = "planning"
	TrackReady      TrackStatus = "ready"
	TrackInProgress TrackStatus = "in_progress"
	TrackBlocked    TrackStatus = "blocked"
	TrackCompleted  TrackStatus = "completed"
)

// Phase is an ordered group of tasks inside a track.
type Phase struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	TaskIDs []string `json:"task_ids" yaml:"task_ids"`
}

// Track is a named unit of work that owns phases and their tasks.
type Track struct {
	ID           string      `json:"id" yaml:"id"`
	Title        string      `json:"title" yaml:"title"`
	CreatedAt    time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" yaml:"updated_at"`
	CurrentPhase string      `json:"current_phase" yaml:"current_phase"`
	Status       TrackStatus `json:"status" yaml:"status"`
	Phases       []Phase     `json:"phases" yaml:"phases"`
	TaskOrder    []string    `json:"task_order" yaml:"task_order"`
	BaselineRef  string      `json:"baseline_ref,omitempty" yaml:"baseline_ref,omitempty"`
	NextTaskSeq  int         `json:"next_task_seq" yaml:"next_task_seq"`
}

// PhaseByID returns the phase with the given id, or nil.
func (t *Track) PhaseByID(id string) *Phase {
	for i := range t.Phases {
		if t.Phases[i].ID == id {
			return &t.Phases[i]
		}
	}
	return nil
}

// DeriveTrackStatus computes a track's status from its tasks. A track with
// no tasks counts as completed.
func DeriveTrackStatus(tasks []Task) TrackStatus {
	var completed, inProgress, stuck, ready int
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskInProgress:
			inProgress++
		case TaskBlocked, TaskFailed:
			stuck++
		case TaskReady:
			ready++
		}
	}
	switch {
	case completed == len(tasks):
		return TrackCompleted
	case inProgress > 0:
		return TrackInProgress
	case stuck > 0:
		return TrackBlocked
	case ready > 0:
		return TrackReady
	default:
		return TrackPlanning
	}
}
