package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// ErrInvalidGraph is wrapped by every structural error the graph builder
// returns, so callers can match the whole family with errors.Is.
var ErrInvalidGraph = errors.New("invalid task graph")

// CycleError reports a dependency cycle. Path starts and ends on the same
// task, e.g. [A B C A]. A self dependency is reported as [A A].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrInvalidGraph }

// UnknownDependencyError reports a reference to a task that does not exist.
type UnknownDependencyError struct {
	TaskID     string
	MissingDep string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s references unknown task %s", e.TaskID, e.MissingDep)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrInvalidGraph }

// DuplicateTaskIDError reports two specs sharing an id.
type DuplicateTaskIDError struct {
	TaskID string
}

func (e *DuplicateTaskIDError) Error() string {
	return fmt.Sprintf("duplicate task id %s", e.TaskID)
}

func (e *DuplicateTaskIDError) Unwrap() error { return ErrInvalidGraph }

// PrimaryConcernError reports a task that does not declare exactly one
// primary concern.
type PrimaryConcernError struct {
	TaskID   string
	Concerns []string
}

func (e *PrimaryConcernError) Error() string {
	return fmt.Sprintf("task %s must declare exactly one primary concern, got %d", e.TaskID, len(e.Concerns))
}

func (e *PrimaryConcernError) Unwrap() error { return ErrInvalidGraph }

// NestingDepthError reports a task nested deeper under its parents than the
// configured maximum.
type NestingDepthError struct {
	TaskID string
	Depth  int
	Max    int
}

func (e *NestingDepthError) Error() string {
	return fmt.Sprintf("task %s is nested %d levels deep, maximum is %d", e.TaskID, e.Depth, e.Max)
}

func (e *NestingDepthError) Unwrap() error { return ErrInvalidGraph }

// InvalidSpecError reports a spec that is malformed in a way none of the
// more specific errors describe.
type InvalidSpecError struct {
	TaskID string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("task %q: %s", e.TaskID, e.Reason)
}

func (e *InvalidSpecError) Unwrap() error { return ErrInvalidGraph }

// DependencyNotSatisfiedError is a programming error: a task was asked to
// move forward while some of its dependencies are not completed.
type DependencyNotSatisfiedError struct {
	TaskID  string
	Pending []string
}

func (e *DependencyNotSatisfiedError) Error() string {
	return fmt.Sprintf("task %s: dependencies not completed: %s", e.TaskID, strings.Join(e.Pending, ", "))
}

// InvalidTransitionError reports an event that is not legal from the task's
// current status.
type InvalidTransitionError struct {
	TaskID string
	From   models.TaskStatus
	Event  Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot %s from %s", e.TaskID, e.Event, e.From)
}

// ProtectedBaselineError is returned when a rollback would reach outside the
// managed scope, such as resetting a protected branch or deleting files
// outside the workspace. Nothing is changed when it is returned.
type ProtectedBaselineError struct {
	Ref    string
	Path   string
	Reason string
}

func (e *ProtectedBaselineError) Error() string {
	switch {
	case e.Ref != "":
		return fmt.Sprintf("rollback refused: baseline %s is protected: %s", e.Ref, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("rollback refused: %s is outside the workspace: %s", e.Path, e.Reason)
	default:
		return "rollback refused: " + e.Reason
	}
}

// TaskNotFoundError reports a task id absent from the track.
type TaskNotFoundError struct {
	TrackID string
	TaskID  string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found in track %s", e.TaskID, e.TrackID)
}

// PhaseNotFoundError reports a phase id absent from the track.
type PhaseNotFoundError struct {
	TrackID string
	PhaseID string
}

func (e *PhaseNotFoundError) Error() string {
	return fmt.Sprintf("phase %s not found in track %s", e.PhaseID, e.TrackID)
}
