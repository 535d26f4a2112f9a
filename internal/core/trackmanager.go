package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

const (
	defaultSearchLimit = 20
	defaultPhaseID     = "main"
)

// PlanResult is a freshly planned track.
type PlanResult struct {
	Track      models.Track  `json:"track"`
	Tasks      []models.Task `json:"tasks"`
	Resolution Resolution    `json:"resolution"`
}

// NextResult reports what an advance did and what to work on next.
type NextResult struct {
	Verified      *models.VerificationResult `json:"verified,omitempty"`
	Next          *models.Task               `json:"next,omitempty"`
	Started       bool                       `json:"started"`
	TrackComplete bool                       `json:"track_complete"`
	Transitions   []Transition               `json:"transitions"`
}

// StatusReport is the progress view of a track.
type StatusReport struct {
	Track      models.Track              `json:"track"`
	Snapshot   models.CompletionSnapshot `json:"snapshot"`
	Resolution Resolution                `json:"resolution"`
	Current    *models.Task              `json:"current,omitempty"`
	Tasks      []models.Task             `json:"tasks"`
}

// GraphTask is one node of a GraphReport.
type GraphTask struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Phase        string            `json:"phase"`
	Status       models.TaskStatus `json:"status"`
	Level        int               `json:"level"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Blocks       []string          `json:"blocks,omitempty"`
}

// GraphReport is the dependency view of a track.
type GraphReport struct {
	TrackID    string      `json:"track_id"`
	Resolution Resolution  `json:"resolution"`
	Tasks      []GraphTask `json:"tasks"`
}

// TrackManager is the command surface of the engine. Every mutation is a
// single store transaction; events are emitted after it commits.
type TrackManager interface {
	Plan(ctx context.Context, doc PlanDocument) (*PlanResult, error)
	AddTasks(ctx context.Context, trackID string, doc PlanDocument) ([]models.Task, error)
	Start(ctx context.Context, trackID, taskID string) (*models.Task, error)
	Next(ctx context.Context, trackID string, peek bool) (*NextResult, error)
	Check(ctx context.Context, trackID string, taskIDs []string) ([]models.VerificationResult, error)
	Override(ctx context.Context, trackID, taskID, reason string) (*models.VerificationResult, error)
	Fail(ctx context.Context, trackID, taskID, reason string) (*models.Task, error)
	Retry(ctx context.Context, trackID, taskID string) (*models.Task, error)
	Status(ctx context.Context, trackID string) (*StatusReport, error)
	Revert(ctx context.Context, trackID string, scope RollbackScope, id string, opts RollbackOptions) (*RollbackResult, error)
	CleanupArtifacts(ctx context.Context, trackID string, taskIDs []string) ([]string, error)
	Log(ctx context.Context, trackID, taskID string) ([]models.VerificationResult, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	Graph(ctx context.Context, trackID string) (*GraphReport, error)
	ListTracks(ctx context.Context) ([]TrackInfo, error)
}

// TrackManagerDeps holds the collaborators of a TrackManager. Baseline,
// Events and Logger are optional.
type TrackManagerDeps struct {
	Store        TrackStore
	Builder      GraphBuilder
	Resolver     Resolver
	StateMachine StateMachine
	Verifier     Verifier
	Reporter     Reporter
	Rollback     RollbackManager
	IDs          TaskIDGenerator
	Baseline     BaselineRestorer
	Events       EventLogger
	Logger       *slog.Logger
	Now          func() time.Time
}

type trackManager struct {
	TrackManagerDeps
}

// NewTrackManager creates a TrackManager with all dependencies injected.
func NewTrackManager(deps TrackManagerDeps) TrackManager {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.IDs == nil {
		deps.IDs = NewTaskIDGenerator("T", 3)
	}
	return &trackManager{TrackManagerDeps: deps}
}

// logEvent emits an event if an EventLogger is configured.
func (m *trackManager) logEvent(eventType string, data map[string]any) {
	if m.Events == nil {
		return
	}
	if err := m.Events.LogEvent(eventType, data); err != nil {
		m.Logger.Warn("writing event failed", "type", eventType, "error", err)
	}
}

func (m *trackManager) logTransitions(trackID string, trs []Transition) {
	for _, tr := range trs {
		m.logEvent(EventTypeTaskTransitioned, map[string]any{
			"track_id": trackID,
			"task_id":  tr.TaskID,
			"from":     string(tr.From),
			"to":       string(tr.To),
			"event":    string(tr.Event),
		})
	}
}

func (m *trackManager) logResults(trackID string, results []models.VerificationResult) {
	for _, r := range results {
		m.logEvent(EventTypeVerificationRecorded, map[string]any{
			"track_id":  trackID,
			"task_id":   r.TaskID,
			"result_id": r.ID,
			"passed":    r.Passed,
			"gaps":      len(r.Gaps),
			"override":  r.Override,
		})
	}
}

// Plan validates doc and persists it as a new track with ready tasks
// promoted.
func (m *trackManager) Plan(ctx context.Context, doc PlanDocument) (*PlanResult, error) {
	if doc.Track == "" {
		return nil, errors.New("plan has no track id")
	}
	now := m.Now()
	title := doc.Title
	if title == "" {
		title = doc.Track
	}
	tx := &TrackTx{Track: models.Track{
		ID:          doc.Track,
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      models.TrackPlanning,
		BaselineRef: doc.BaselineRef,
	}}

	specs := m.assignIDs(&tx.Track, doc.Tasks, nil)
	if err := assignPhases(&tx.Track, doc.Phases, specs); err != nil {
		return nil, fmt.Errorf("planning track %s: %w", doc.Track, err)
	}
	g, err := m.Builder.Build(specs)
	if err != nil {
		return nil, fmt.Errorf("planning track %s: %w", doc.Track, err)
	}
	tx.Tasks = tasksFromGraph(g, g.IDs(), now)
	tx.Track.TaskOrder = g.IDs()
	if tx.Track.TaskOrder == nil {
		tx.Track.TaskOrder = []string{}
	}

	if tx.Track.BaselineRef == "" && m.Baseline != nil {
		ref, err := m.Baseline.CurrentRef(ctx)
		if err != nil {
			m.Logger.Debug("no baseline ref captured", "track", doc.Track, "error", err)
		} else {
			tx.Track.BaselineRef = ref
		}
	}

	promoted := m.StateMachine.PromoteReady(tx.Tasks)
	res, err := m.Resolver.Resolve(g)
	if err != nil {
		return nil, err
	}
	refreshTrack(tx, now, res.Order)

	if err := m.Store.Create(ctx, tx.Track, tx.Tasks); err != nil {
		return nil, fmt.Errorf("planning track %s: %w", doc.Track, err)
	}

	m.Logger.Info("track planned", "track", tx.Track.ID, "tasks", len(tx.Tasks), "phases", len(tx.Track.Phases))
	m.logEvent(EventTypeTrackPlanned, map[string]any{
		"track_id": tx.Track.ID,
		"title":    tx.Track.Title,
		"tasks":    len(tx.Tasks),
		"phases":   len(tx.Track.Phases),
	})
	m.logTransitions(tx.Track.ID, promoted)

	return &PlanResult{Track: tx.Track, Tasks: tx.Tasks, Resolution: res}, nil
}

// AddTasks appends doc.Tasks to an existing track. The whole graph is
// revalidated and nothing is saved if any part of it is invalid.
func (m *trackManager) AddTasks(ctx context.Context, trackID string, doc PlanDocument) ([]models.Task, error) {
	var added []models.Task
	var trs []Transition

	err := m.Store.Update(ctx, trackID, func(tx *TrackTx) error {
		now := m.Now()
		taken := make(map[string]bool, len(tx.Tasks))
		specs := make([]models.TaskSpec, 0, len(tx.Tasks)+len(doc.Tasks))
		for _, t := range tx.Tasks {
			taken[t.ID] = true
			specs = append(specs, models.SpecFromTask(t))
		}
		newSpecs := m.assignIDs(&tx.Track, doc.Tasks, taken)
		if err := assignPhases(&tx.Track, doc.Phases, newSpecs); err != nil {
			return err
		}
		specs = append(specs, newSpecs...)

		g, err := m.Builder.Build(specs)
		if err != nil {
			return err
		}

		// Blocks declarations on new specs can give existing tasks new
		// dependencies. Only pending tasks may take them.
		for i := range tx.Tasks {
			merged := g.Dependencies(tx.Tasks[i].ID)
			if slices.Equal(merged, tx.Tasks[i].Dependencies) {
				continue
			}
			if tx.Tasks[i].Status != models.TaskPending {
				return &InvalidSpecError{
					TaskID: tx.Tasks[i].ID,
					Reason: fmt.Sprintf("cannot take new dependencies while %s", tx.Tasks[i].Status),
				}
			}
			tx.Tasks[i].Dependencies = merged
			tx.Tasks[i].UpdatedAt = now
		}

		newIDs := make([]string, len(newSpecs))
		for i, s := range newSpecs {
			newIDs[i] = s.ID
		}
		added = tasksFromGraph(g, newIDs, now)
		tx.Tasks = append(tx.Tasks, added...)
		tx.Track.TaskOrder = append(tx.Track.TaskOrder, newIDs...)

		trs = m.StateMachine.PromoteReady(tx.Tasks)
		res, err := m.Resolver.Resolve(g)
		if err != nil {
			return err
		}
		refreshTrack(tx, now, res.Order)

		for i := range added {
			added[i] = tx.Tasks[taskIndex(tx.Tasks, added[i].ID)]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding tasks to %s: %w", trackID, err)
	}
	m.Logger.Info("tasks added", "track", trackID, "count", len(added))
	m.logTransitions(trackID, trs)
	return added, nil
}

// assignIDs copies specs, giving every spec without an id a generated one.
func (m *trackManager) assignIDs(track *models.Track, specs []models.TaskSpec, taken map[string]bool) []models.TaskSpec {
	if taken == nil {
		taken = make(map[string]bool, len(specs))
	}
	for _, s := range specs {
		if s.ID != "" {
			taken[s.ID] = true
		}
	}
	out := make([]models.TaskSpec, len(specs))
	for i, s := range specs {
		if s.ID == "" {
			s.ID = m.IDs.Next(track, taken)
			taken[s.ID] = true
		}
		out[i] = s
	}
	return out
}

// assignPhases adds declared phases to track and files every spec under its
// phase. When neither the track nor the plan declares any phase, phases are
// created from the specs in first-use order.
func assignPhases(track *models.Track, declared []PlanPhase, specs []models.TaskSpec) error {
	for _, p := range declared {
		if p.ID == "" {
			return errors.New("phase with empty id")
		}
		if track.PhaseByID(p.ID) != nil {
			continue
		}
		title := p.Title
		if title == "" {
			title = p.ID
		}
		track.Phases = append(track.Phases, models.Phase{ID: p.ID, Title: title, TaskIDs: []string{}})
	}
	autoCreate := len(track.Phases) == 0

	for i := range specs {
		if specs[i].Phase == "" {
			if !autoCreate {
				return &InvalidSpecError{TaskID: specs[i].ID, Reason: "phase is required"}
			}
			specs[i].Phase = defaultPhaseID
		}
		ph := track.PhaseByID(specs[i].Phase)
		if ph == nil {
			if !autoCreate {
				return &PhaseNotFoundError{TrackID: track.ID, PhaseID: specs[i].Phase}
			}
			track.Phases = append(track.Phases, models.Phase{ID: specs[i].Phase, Title: specs[i].Phase})
			ph = &track.Phases[len(track.Phases)-1]
		}
		ph.TaskIDs = append(ph.TaskIDs, specs[i].ID)
	}
	return nil
}

// tasksFromGraph creates pending tasks for ids from their validated nodes.
func tasksFromGraph(g *Graph, ids []string, now time.Time) []models.Task {
	tasks := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		n, _ := g.Node(id)
		s := n.Spec
		tasks = append(tasks, models.Task{
			ID:                 s.ID,
			Title:              s.Title,
			Description:        s.Description,
			Phase:              s.Phase,
			Parent:             s.Parent,
			Concern:            s.Concerns[0],
			Priority:           s.Priority,
			Dependencies:       s.Dependencies,
			TargetArtifacts:    s.TargetArtifacts,
			AcceptanceCriteria: s.AcceptanceCriteria,
			Testable:           s.Testable,
			Status:             models.TaskPending,
			UpdatedAt:          now,
			Blocks:             s.Blocks,
		})
	}
	return tasks
}

// Start moves a ready task to in_progress. Pending tasks whose dependencies
// are done are promoted first.
func (m *trackManager) Start(ctx context.Context, trackID, taskID string) (*models.Task, error) {
	var started models.Task
	var trs []Transition
	err := m.Store.Update(ctx, trackID, func(tx *TrackTx) error {
		order, err := m.order(tx.Tasks)
		if err != nil {
			return err
		}
		trs = m.StateMachine.PromoteReady(tx.Tasks)
		tr, err := m.StateMachine.Apply(tx.Tasks, taskID, EventStart)
		if err != nil {
			return withTrack(err, trackID)
		}
		trs = append(trs, tr)
		refreshTrack(tx, m.Now(), order)
		started = tx.Tasks[taskIndex(tx.Tasks, taskID)]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("starting task %s: %w", taskID, err)
	}
	m.logTransitions(trackID, trs)
	return &started, nil
}

// order rebuilds the graph from tasks and returns the resolver order.
func (m *trackManager) order(tasks []models.Task) ([]string, error) {
	g, err := buildTaskGraph(m.Builder, tasks)
	if err != nil {
		return nil, fmt.Errorf("rebuilding graph: %w", err)
	}
	res, err := m.Resolver.Resolve(g)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Next verifies the task in flight, promotes what it unblocked and starts
// the next ready task in resolver order. With peek the next task is
// returned without being started.
func (m *trackManager) Next(ctx context.Context, trackID string, peek bool) (*NextResult, error) {
	out := &NextResult{}
	var results []models.VerificationResult

	err := m.Store.Update(ctx, trackID, func(tx *TrackTx) error {
		order, err := m.order(tx.Tasks)
		if err != nil {
			return err
		}

		target := firstInStatus(tx.Tasks, order, models.TaskInProgress)
		if target < 0 {
			target = firstInStatus(tx.Tasks, order, models.TaskBlocked)
		}
		if target >= 0 {
			task := &tx.Tasks[target]
			r, err := m.Verifier.Verify(ctx, *task)
			if err != nil {
				return err
			}
			task.VerificationResult = &r
			tx.Results = append(tx.Results, r)
			results = append(results, r)
			out.Verified = &r

			switch {
			case r.Passed:
				tr, err := m.StateMachine.Apply(tx.Tasks, task.ID, EventPass)
				if err != nil {
					return err
				}
				out.Transitions = append(out.Transitions, tr)
			case task.Status == models.TaskInProgress:
				tr, err := m.StateMachine.Apply(tx.Tasks, task.ID, EventBlock)
				if err != nil {
					return err
				}
				out.Transitions = append(out.Transitions, tr)
			}
		}

		out.Transitions = append(out.Transitions, m.StateMachine.PromoteReady(tx.Tasks)...)

		if i := firstInStatus(tx.Tasks, order, models.TaskInProgress); i >= 0 {
			next := tx.Tasks[i]
			out.Next = &next
		} else if i := firstInStatus(tx.Tasks, order, models.TaskReady); i >= 0 {
			if !peek {
				tr, err := m.StateMachine.Apply(tx.Tasks, tx.Tasks[i].ID, EventStart)
				if err != nil {
					return err
				}
				out.Transitions = append(out.Transitions, tr)
				out.Started = true
			}
			next := tx.Tasks[i]
			out.Next = &next
		}

		refreshTrack(tx, m.Now(), order)
		out.TrackComplete = tx.Track.Status == models.TrackCompleted
		snap := m.Reporter.Summarize(tx.Track, tx.Tasks)
		tx.Snapshot = &snap
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("advancing track %s: %w", trackID, err)
	}

	m.logResults(trackID, results)
	m.logTransitions(trackID, out.Transitions)
	m.Logger.Debug("track advanced", "track", trackID, "transitions", len(out.Transitions), "complete", out.TrackComplete)
	return out, nil
}

func firstInStatus(tasks []models.Task, order []string, status models.TaskStatus) int {
	for _, id := range order {
		if i := taskIndex(tasks, id); i >= 0 && tasks[i].Status == status {
			return i
		}
	}
	return -1
}

// Check verifies tasks without changing their status. An empty taskIDs
// checks every task. Results are logged and cached on the tasks.
func (m *trackManager) Check(ctx context.Context, trackID string, taskIDs []string) ([]models.VerificationResult, error) {
	var results []models.VerificationResult
	err := m.Store.Update(ctx, trackID, func(tx *TrackTx) error {
		ids := taskIDs
		if len(ids) == 0 {
			ids = tx.Track.TaskOrder
		}
		selected := make([]models.Task, 0, len(ids))
		for _, id := range ids {
			i := taskIndex(tx.Tasks, id)
			if i < 0 {
				return &TaskNotFoundError{TrackID: trackID, TaskID: id}
			}
			selected = append(selected, tx.Tasks[i])
		}

		rs, err := m.Verifier.VerifyAll(ctx, selected)
		if err != nil {
			return err
		}
		for _, r := range rs {
			i := taskIndex(tx.Tasks, r.TaskID)
			cached := r
			tx.Tasks[i].VerificationResult = &cached
		}
		tx.Results = append(tx.Results, rs...)
		results = rs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking track %s: %w", trackID, err)
	}
	m.logResults(trackID, results)
	return results, nil
}

// Override forces a blocked task to completed and records a result marked
// as an override. The result keeps the checks and gaps of the last real
// verification.
func (m *trackManager) Override(ctx context.Context, trackID, taskID, reason string) (*models.VerificationResult, error) {
	if reason == "" {
		return nil, errors.New("override requires a reason")
	}
	var result models.VerificationResult
	var trs []Transition

	err := m.Store.Update(ctx, trackID, func(tx *TrackTx) error {
		order, err := m.order(tx.Tasks)
		if err != nil {
			return err
		}
		i := taskIndex(tx.Tasks, taskID)
		if i < 0 {
			return &TaskNotFoundError{TrackID: trackID, TaskID: taskID}
		}
		prev := tx.Tasks[i].VerificationResult

		tr, err := m.StateMachine.Apply(tx.Tasks, taskID, EventOverride)
		if err != nil {
			return err
		}
		trs = append(trs, tr)

		result = models.VerificationResult{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Timestamp: tr.At,
			Checks:    map[string]bool{},
			Gaps:      []string{},
			Override:  true,
			Reason:    reason,
		}
		if prev != nil {
			result.Passed = prev.Passed
			result.Checks = prev.Checks
			result.Gaps = prev.Gaps
			result.Warnings = prev.Warnings
		}
		cached := result
		tx.Tasks[i].VerificationResult = &cached
		tx.Results = append(tx.Results, result)

		trs = append(trs, m.StateMachine.PromoteReady(tx.Tasks)...)
		refreshTrack(tx, m.Now(), order)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("overriding task %s: %w", taskID, err)
	}

	m.Logger.Info("task overridden", "track", trackID, "task", taskID, "reason", reason)
	m.logResults(trackID, []models.VerificationResult{result})
	m.logEvent(EventTypeTaskOverridden, map[string]any{
		"track_id": trackID,
		"task_id":  taskID,
		"reason":   reason,
	})
	m.logTransitions(trackID, trs)
	return &result, nil
}

// Fail marks an in-progress task as failed.
func (m *trackManager) Fail(ctx context.Context, trackID, taskID, reason string) (*models.Task, error) {
	task, tr, err := m.applyOne(ctx, trackID, taskID, EventFail)
	if err != nil {
		return nil, fmt.Errorf("failing task %s: %w", taskID, err)
	}
	m.logEvent(EventTypeTaskTransitioned, map[string]any{
		"track_id": trackID,
		"task_id":  taskID,
		"from":     string(tr.From),
		"to":       string(tr.To),
		"event":    string(tr.Event),
		"reason":   reason,
	})
	return task, nil
}

// Retry returns a failed task to ready.
func (m *trackManager) Retry(ctx context.Context, trackID, taskID string) (*models.Task, error) {
	task, tr, err := m.applyOne(ctx, trackID, taskID, EventRetry)
	if err != nil {
		return nil, fmt.Errorf("retrying task %s: %w", taskID, err)
	}
	m.logTransitions(trackID, []Transition{tr})
	return task, nil
}

func (m *trackManager) applyOne(ctx context.Context, trackID, taskID string, event Event) (*models.Task, Transition, error) {
	var task models.Task
	var tr Transition
	err := m.Store.Update(ctx, trackID, func(tx *TrackTx) error {
		order, err := m.order(tx.Tasks)
		if err != nil {
			return err
		}
		tr, err = m.StateMachine.Apply(tx.Tasks, taskID, event)
		if err != nil {
			return withTrack(err, trackID)
		}
		refreshTrack(tx, m.Now(), order)
		task = tx.Tasks[taskIndex(tx.Tasks, taskID)]
		return nil
	})
	if err != nil {
		return nil, Transition{}, err
	}
	return &task, tr, nil
}

// withTrack fills in the track id of a lookup error raised by the state
// machine, which only sees tasks.
func withTrack(err error, trackID string) error {
	var nf *TaskNotFoundError
	if errors.As(err, &nf) && nf.TrackID == "" {
		nf.TrackID = trackID
	}
	return err
}

// Status summarizes the track and refreshes the advisory snapshot on disk.
func (m *trackManager) Status(ctx context.Context, trackID string) (*StatusReport, error) {
	track, tasks, err := m.Store.Load(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("loading track %s: %w", trackID, err)
	}
	g, err := buildTaskGraph(m.Builder, tasks)
	if err != nil {
		return nil, fmt.Errorf("rebuilding graph for %s: %w", trackID, err)
	}
	res, err := m.Resolver.Resolve(g)
	if err != nil {
		return nil, err
	}

	snap := m.Reporter.Summarize(track, tasks)
	if err := m.Store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("saving snapshot for %s: %w", trackID, err)
	}
	return &StatusReport{
		Track:      track,
		Snapshot:   snap,
		Resolution: res,
		Current:    m.Reporter.CurrentTask(tasks, res.Order),
		Tasks:      tasks,
	}, nil
}

// Revert rolls back a task, phase or track and everything depending on it.
func (m *trackManager) Revert(ctx context.Context, trackID string, scope RollbackScope, id string, opts RollbackOptions) (*RollbackResult, error) {
	res, err := m.Rollback.Rollback(ctx, trackID, scope, id, opts)
	if res != nil && res.Affected != nil {
		m.logTransitions(trackID, res.Transitions)
		m.logEvent(EventTypeRollbackApplied, map[string]any{
			"track_id": trackID,
			"scope":    string(scope),
			"target":   id,
			"affected": res.Affected,
			"deleted":  res.Deleted,
			"restored": res.Restored,
		})
		if len(res.Deleted) > 0 {
			m.logEvent(EventTypeArtifactsCleaned, map[string]any{
				"track_id": trackID,
				"task_ids": res.Affected,
				"removed":  res.Deleted,
			})
		}
	}
	if err != nil {
		return res, fmt.Errorf("reverting %s %s: %w", scope, id, err)
	}
	m.Logger.Info("rollback applied", "track", trackID, "scope", scope, "target", id, "affected", len(res.Affected))
	return res, nil
}

// CleanupArtifacts deletes the artifacts of reverted tasks.
func (m *trackManager) CleanupArtifacts(ctx context.Context, trackID string, taskIDs []string) ([]string, error) {
	removed, err := m.Rollback.CleanupArtifacts(ctx, trackID, taskIDs)
	if len(removed) > 0 {
		m.logEvent(EventTypeArtifactsCleaned, map[string]any{
			"track_id": trackID,
			"task_ids": taskIDs,
			"removed":  removed,
		})
	}
	if err != nil {
		return removed, fmt.Errorf("cleaning up artifacts: %w", err)
	}
	return removed, nil
}

// Log returns the verification history of a track, or of one task in it.
func (m *trackManager) Log(ctx context.Context, trackID, taskID string) ([]models.VerificationResult, error) {
	results, err := m.Store.ReadVerificationLog(ctx, trackID, taskID)
	if err != nil {
		return nil, fmt.Errorf("reading verification log: %w", err)
	}
	return results, nil
}

func (m *trackManager) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return m.Store.Search(ctx, query, limit)
}

// Graph returns the resolver view of a track.
func (m *trackManager) Graph(ctx context.Context, trackID string) (*GraphReport, error) {
	_, tasks, err := m.Store.Load(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("loading track %s: %w", trackID, err)
	}
	g, err := buildTaskGraph(m.Builder, tasks)
	if err != nil {
		return nil, fmt.Errorf("rebuilding graph for %s: %w", trackID, err)
	}
	res, err := m.Resolver.Resolve(g)
	if err != nil {
		return nil, err
	}

	report := &GraphReport{TrackID: trackID, Resolution: res}
	for _, t := range tasks {
		n, _ := g.Node(t.ID)
		report.Tasks = append(report.Tasks, GraphTask{
			ID:           t.ID,
			Title:        t.Title,
			Phase:        t.Phase,
			Status:       t.Status,
			Level:        n.Level,
			Dependencies: g.Dependencies(t.ID),
			Blocks:       g.Dependents(t.ID),
		})
	}
	return report, nil
}

func (m *trackManager) ListTracks(ctx context.Context) ([]TrackInfo, error) {
	return m.Store.ListTracks(ctx)
}
