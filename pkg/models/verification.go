package models

import "time"

// Check names recorded in VerificationResult.Checks.
const (
	CheckArtifactsExist      = "artifacts_exist"
	CheckArtifactsNontrivial = "artifacts_nontrivial"
	CheckTestsPresent        = "tests_present"
	CheckAcceptanceCriteria  = "acceptance_criteria"
)

// VerificationResult is one recorded outcome of verifying a task against the
// workspace. Results are appended to the track's verification log; the task
// caches only the latest.
type VerificationResult struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Timestamp time.Time       `json:"timestamp"`
	Passed    bool            `json:"passed"`
	Checks    map[string]bool `json:"checks"`
	Gaps      []string        `json:"gaps"`
	Warnings  []string        `json:"warnings,omitempty"`
	Override  bool            `json:"override,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// PhaseProgress is the completion of a single phase.
type PhaseProgress struct {
	PhaseID   string `json:"phase_id"`
	Title     string `json:"title"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Percent   int    `json:"percent"`
}

// CompletionSnapshot is a derived aggregate of task states. It is rebuilt on
// every request; the persisted copy is an advisory cache only.
type CompletionSnapshot struct {
	TrackID     string          `json:"track_id"`
	Status      TrackStatus     `json:"status"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	InProgress  int             `json:"in_progress"`
	Pending     int             `json:"pending"`
	Ready       int             `json:"ready"`
	Blocked     int             `json:"blocked"`
	Failed      int             `json:"failed"`
	Percent     int             `json:"percent"`
	Phases      []PhaseProgress `json:"phases"`
	GeneratedAt time.Time       `json:"generated_at"`
}
