package models

import "time"

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskStatuses lists every task status in lifecycle order.
var TaskStatuses = []TaskStatus{
	TaskInProgress,
	TaskBlocked,
	TaskFailed,
	TaskReady,
	TaskPending,
	TaskCompleted,
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskReady, TaskInProgress, TaskBlocked, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// Task is the atomic unit of work inside a track. Tasks are created at
// planning time and never deleted; rollback returns them to pending.
type Task struct {
	ID                 string              `json:"id" yaml:"id"`
	Title              string              `json:"title" yaml:"title"`
	Description        string              `json:"description,omitempty" yaml:"description,omitempty"`
	Phase              string              `json:"phase" yaml:"phase"`
	Parent             string              `json:"parent,omitempty" yaml:"parent,omitempty"`
	Concern            string              `json:"concern" yaml:"concern"`
	Priority           int                 `json:"priority" yaml:"priority"`
	Dependencies       []string            `json:"dependencies" yaml:"dependencies"`
	TargetArtifacts    []string            `json:"target_artifacts" yaml:"target_artifacts"`
	AcceptanceCriteria []string            `json:"acceptance_criteria" yaml:"acceptance_criteria"`
	Testable           bool                `json:"testable" yaml:"testable"`
	Status             TaskStatus          `json:"status" yaml:"status"`
	VerificationResult *VerificationResult `json:"verification_result" yaml:"verification_result"`
	Override           bool                `json:"override,omitempty" yaml:"override,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at" yaml:"updated_at"`

	// Blocks is the inverse view of Dependencies. It is derived from the
	// graph on load and never persisted.
	Blocks []string `json:"-" yaml:"-"`
}

// TaskSpec is the shape a content generator proposes for a new task. The
// engine only consumes this value and never assumes how it was produced.
type TaskSpec struct {
	ID                 string   `json:"id,omitempty" yaml:"id,omitempty"`
	Title              string   `json:"title" yaml:"title"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	Phase              string   `json:"phase" yaml:"phase"`
	Parent             string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Concerns           []string `json:"concerns" yaml:"concerns"`
	Priority           int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	Dependencies       []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Blocks             []string `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	TargetArtifacts    []string `json:"target_artifacts,omitempty" yaml:"target_artifacts,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Testable           bool     `json:"testable,omitempty" yaml:"testable,omitempty"`
}

// SpecFromTask reconstructs the planning spec of an existing task. Blocks
// are folded into Dependencies on the other side, so the result carries none.
func SpecFromTask(t Task) TaskSpec {
	var concerns []string
	if t.Concern != "" {
		concerns = []string{t.Concern}
	}
	return TaskSpec{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Phase:              t.Phase,
		Parent:             t.Parent,
		Concerns:           concerns,
		Priority:           t.Priority,
		Dependencies:       t.Dependencies,
		TargetArtifacts:    t.TargetArtifacts,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Testable:           t.Testable,
	}
}
