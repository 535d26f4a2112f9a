package core

import (
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// Event is a request to move a task through its lifecycle.
type Event string

const (
	EventPromote  Event = "promote"
	EventStart    Event = "start"
	EventPass     Event = "pass"
	EventBlock    Event = "block"
	EventOverride Event = "override"
	EventFail     Event = "fail"
	EventRetry    Event = "retry"
	EventReset    Event = "reset"
)

// Transition records one applied status change.
type Transition struct {
	TaskID string            `json:"task_id"`
	From   models.TaskStatus `json:"from"`
	To     models.TaskStatus `json:"to"`
	Event  Event             `json:"event"`
	At     time.Time         `json:"at"`
}

// transitions lists the legal source states and the target for each event.
// Reset is accepted from every state.
var transitions = map[Event]struct {
	from []models.TaskStatus
	to   models.TaskStatus
}{
	EventPromote:  {[]models.TaskStatus{models.TaskPending}, models.TaskReady},
	EventStart:    {[]models.TaskStatus{models.TaskReady}, models.TaskInProgress},
	EventPass:     {[]models.TaskStatus{models.TaskInProgress, models.TaskBlocked}, models.TaskCompleted},
	EventBlock:    {[]models.TaskStatus{models.TaskInProgress}, models.TaskBlocked},
	EventOverride: {[]models.TaskStatus{models.TaskBlocked}, models.TaskCompleted},
	EventFail:     {[]models.TaskStatus{models.TaskInProgress}, models.TaskFailed},
	EventRetry:    {[]models.TaskStatus{models.TaskFailed}, models.TaskReady},
	EventReset:    {models.TaskStatuses, models.TaskPending},
}

// StateMachine is the only component allowed to write task status. It
// enforces that a task never starts or completes ahead of its dependencies.
type StateMachine interface {
	Apply(tasks []models.Task, taskID string, event Event) (Transition, error)
	PromoteReady(tasks []models.Task) []Transition
}

type stateMachine struct {
	now func() time.Time
}

// NewStateMachine creates a StateMachine. now may be nil, in which case the
// current UTC time is used for updated_at stamps.
func NewStateMachine(now func() time.Time) StateMachine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &stateMachine{now: now}
}

// Apply performs event on the task with taskID inside tasks, mutating the
// slice element in place.
func (sm *stateMachine) Apply(tasks []models.Task, taskID string, event Event) (Transition, error) {
	i := taskIndex(tasks, taskID)
	if i < 0 {
		return Transition{}, &TaskNotFoundError{TaskID: taskID}
	}
	task := &tasks[i]

	rule, ok := transitions[event]
	if !ok || !statusIn(task.Status, rule.from) {
		return Transition{}, &InvalidTransitionError{TaskID: taskID, From: task.Status, Event: event}
	}

	switch event {
	case EventPromote, EventStart, EventPass, EventOverride, EventRetry:
		if pending := unmetDependencies(tasks, task); len(pending) > 0 {
			return Transition{}, &DependencyNotSatisfiedError{TaskID: taskID, Pending: pending}
		}
	}

	tr := Transition{TaskID: taskID, From: task.Status, To: rule.to, Event: event, At: sm.now()}
	task.Status = rule.to
	task.UpdatedAt = tr.At
	switch event {
	case EventOverride:
		task.Override = true
	case EventPass:
		task.Override = false
	case EventReset:
		task.Override = false
		task.VerificationResult = nil
	}
	return tr, nil
}

// PromoteReady moves every pending task whose dependencies are all completed
// to ready. Tasks are visited in slice order.
func (sm *stateMachine) PromoteReady(tasks []models.Task) []Transition {
	var out []Transition
	for i := range tasks {
		if tasks[i].Status != models.TaskPending {
			continue
		}
		if len(unmetDependencies(tasks, &tasks[i])) > 0 {
			continue
		}
		tr, err := sm.Apply(tasks, tasks[i].ID, EventPromote)
		if err == nil {
			out = append(out, tr)
		}
	}
	return out
}

func unmetDependencies(tasks []models.Task, task *models.Task) []string {
	var pending []string
	for _, dep := range task.Dependencies {
		j := taskIndex(tasks, dep)
		if j < 0 || tasks[j].Status != models.TaskCompleted {
			pending = append(pending, dep)
		}
	}
	return pending
}

func taskIndex(tasks []models.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func statusIn(s models.TaskStatus, set []models.TaskStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
