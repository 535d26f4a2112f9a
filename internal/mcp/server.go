// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the track engine as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/internal/observability"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

// Server wraps the track engine and exposes it as MCP tools.
type Server struct {
	server       *gomcp.Server
	tracks       core.TrackManager
	metricsCalc  observability.MetricsCalculator
	alertEngine  observability.AlertEngine
	defaultTrack string
	now          func() time.Time
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// if the event log is unavailable. defaultTrack is used by tools called
// without a track.
func NewServer(tracks core.TrackManager, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, defaultTrack, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		tracks:       tracks,
		metricsCalc:  metricsCalc,
		alertEngine:  alertEngine,
		defaultTrack: defaultTrack,
		now:          func() time.Time { return time.Now().UTC() },
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "trackforge", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves MCP over stdio, blocking until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type trackInput struct {
	Track string `json:"track,omitempty" jsonschema:"track id; defaults to the configured default track"`
}

type nextTaskInput struct {
	Track string `json:"track,omitempty" jsonschema:"track id; defaults to the configured default track"`
	Peek  bool   `json:"peek,omitempty" jsonschema:"report the next task without starting it"`
}

type taskOutput struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Phase              string   `json:"phase"`
	Concern            string   `json:"concern"`
	Status             string   `json:"status"`
	Priority           int      `json:"priority"`
	Dependencies       []string `json:"dependencies,omitempty"`
	TargetArtifacts    []string `json:"target_artifacts,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Testable           bool     `json:"testable"`
	Override           bool     `json:"override,omitempty"`
	Updated            string   `json:"updated"`
}

type verificationOutput struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Timestamp string          `json:"timestamp"`
	Passed    bool            `json:"passed"`
	Checks    map[string]bool `json:"checks,omitempty"`
	Gaps      []string        `json:"gaps,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Override  bool            `json:"override,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type nextTaskOutput struct {
	Verified      *verificationOutput `json:"verified,omitempty"`
	Next          *taskOutput         `json:"next,omitempty"`
	Started       bool                `json:"started"`
	TrackComplete bool                `json:"track_complete"`
	Message       string              `json:"message"`
}

type checkTaskInput struct {
	Track   string   `json:"track,omitempty" jsonschema:"track id; defaults to the configured default track"`
	TaskIDs []string `json:"task_ids,omitempty" jsonschema:"tasks to verify; every task in the track when empty"`
}

type checkTaskOutput struct {
	Results []verificationOutput `json:"results"`
	Passed  int                  `json:"passed"`
	Failed  int                  `json:"failed"`
}

type phaseOutput struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Percent   int    `json:"percent"`
}

type trackStatusOutput struct {
	TrackID      string        `json:"track_id"`
	Title        string        `json:"title"`
	Status       string        `json:"status"`
	Percent      int           `json:"percent"`
	Total        int           `json:"total"`
	Completed    int           `json:"completed"`
	InProgress   int           `json:"in_progress"`
	Ready        int           `json:"ready"`
	Pending      int           `json:"pending"`
	Blocked      int           `json:"blocked"`
	Failed       int           `json:"failed"`
	Phases       []phaseOutput `json:"phases"`
	Current      *taskOutput   `json:"current,omitempty"`
	CriticalPath []string      `json:"critical_path,omitempty"`
}

type overrideTaskInput struct {
	Track  string `json:"track,omitempty" jsonschema:"track id; defaults to the configured default track"`
	TaskID string `json:"task_id" jsonschema:"the blocked task to force to completed"`
	Reason string `json:"reason" jsonschema:"why the verification gaps are acceptable"`
}

type revertInput struct {
	Track           string `json:"track,omitempty" jsonschema:"track id; defaults to the configured default track"`
	Scope           string `json:"scope" jsonschema:"what to roll back: task, phase or track"`
	ID              string `json:"id,omitempty" jsonschema:"task or phase id; ignored for track scope"`
	DeleteArtifacts bool   `json:"delete_artifacts,omitempty" jsonschema:"also delete the target artifacts of affected tasks"`
	RestoreBaseline bool   `json:"restore_baseline,omitempty" jsonschema:"restore target artifacts from the track's baseline ref"`
}

type revertOutput struct {
	TrackID  string   `json:"track_id"`
	Scope    string   `json:"scope"`
	Target   string   `json:"target"`
	Affected []string `json:"affected"`
	Deleted  []string `json:"deleted,omitempty"`
	Restored []string `json:"restored,omitempty"`
}

type searchInput struct {
	Query string `json:"query" jsonschema:"full-text query over task titles, descriptions and verification gaps"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of hits (default 20)"`
}

type searchHitOutput struct {
	TrackID string `json:"track_id"`
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type searchOutput struct {
	Hits  []searchHitOutput `json:"hits"`
	Count int               `json:"count"`
}

type listTracksInput struct{}

type trackInfoOutput struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Updated   string `json:"updated"`
}

type listTracksOutput struct {
	Tracks []trackInfoOutput `json:"tracks"`
	Count  int               `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
	Track string `json:"track,omitempty" jsonschema:"restrict metrics to one track"`
}

type metricsOutput struct {
	TracksPlanned       int            `json:"tracks_planned"`
	Transitions         int            `json:"transitions"`
	TransitionsByStatus map[string]int `json:"transitions_by_status"`
	TasksCompleted      int            `json:"tasks_completed"`
	VerificationsPassed int            `json:"verifications_passed"`
	VerificationsFailed int            `json:"verifications_failed"`
	PassRate            int            `json:"pass_rate"`
	Overrides           int            `json:"overrides"`
	Rollbacks           int            `json:"rollbacks"`
	ArtifactsRemoved    int            `json:"artifacts_removed"`
	EventCount          int            `json:"event_count"`
	OldestEvent         string         `json:"oldest_event,omitempty"`
	NewestEvent         string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	TrackID     string `json:"track_id"`
	TaskID      string `json:"task_id,omitempty"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "next_task",
		Description: "Verify the task in flight, promote what it unblocked and start the next ready task. With peek, the next task is reported but not started.",
	}, s.handleNextTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "check_task",
		Description: "Verify tasks against the workspace without changing their status. Returns checks and gaps per task.",
	}, s.handleCheckTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "track_status",
		Description: "Get the completion snapshot of a track: counts by status, per-phase progress, the current task and the critical path.",
	}, s.handleTrackStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "override_task",
		Description: "Force a blocked task to completed despite verification gaps. The result is recorded as an override with the given reason.",
	}, s.handleOverrideTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "revert",
		Description: "Roll a task, phase or track back to pending together with every task that depends on it.",
	}, s.handleRevert)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search",
		Description: "Full-text search over tasks and verification gaps across all tracks.",
	}, s.handleSearch)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tracks",
		Description: "List every track with its derived status and completion counts.",
	}, s.handleListTracks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log: transitions, verification pass rate, overrides and rollbacks.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (long-blocked tasks, stale tasks, repeated verification failures, override-heavy tracks).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) trackID(input string) (string, error) {
	if input != "" {
		return input, nil
	}
	if s.defaultTrack != "" {
		return s.defaultTrack, nil
	}
	return "", fmt.Errorf("track is required (no default track configured)")
}

func (s *Server) handleNextTask(ctx context.Context, _ *gomcp.CallToolRequest, input nextTaskInput) (*gomcp.CallToolResult, nextTaskOutput, error) {
	trackID, err := s.trackID(input.Track)
	if err != nil {
		return errorResult(err.Error()), nextTaskOutput{}, nil
	}

	res, err := s.tracks.Next(ctx, trackID, input.Peek)
	if err != nil {
		return errorResult(err.Error()), nextTaskOutput{}, nil
	}

	out := nextTaskOutput{
		Started:       res.Started,
		TrackComplete: res.TrackComplete,
	}
	if res.Verified != nil {
		v := verificationToOutput(*res.Verified)
		out.Verified = &v
	}
	if res.Next != nil {
		t := taskToOutput(*res.Next)
		out.Next = &t
	}

	switch {
	case res.TrackComplete:
		out.Message = fmt.Sprintf("track %s is complete", trackID)
	case res.Verified != nil && !res.Verified.Passed && res.Next != nil && res.Next.ID == res.Verified.TaskID:
		out.Message = fmt.Sprintf("task %s still has gaps", res.Verified.TaskID)
	case res.Verified != nil && !res.Verified.Passed:
		out.Message = fmt.Sprintf("task %s is blocked by verification gaps", res.Verified.TaskID)
	case res.Next == nil:
		out.Message = "no task is ready; resolve blocked or failed tasks first"
	case res.Started:
		out.Message = fmt.Sprintf("started %s", res.Next.ID)
	default:
		out.Message = fmt.Sprintf("next task is %s", res.Next.ID)
	}

	return nil, out, nil
}

func (s *Server) handleCheckTask(ctx context.Context, _ *gomcp.CallToolRequest, input checkTaskInput) (*gomcp.CallToolResult, checkTaskOutput, error) {
	trackID, err := s.trackID(input.Track)
	if err != nil {
		return errorResult(err.Error()), checkTaskOutput{}, nil
	}

	results, err := s.tracks.Check(ctx, trackID, input.TaskIDs)
	if err != nil {
		return errorResult(err.Error()), checkTaskOutput{}, nil
	}

	out := checkTaskOutput{Results: make([]verificationOutput, len(results))}
	for i, r := range results {
		out.Results[i] = verificationToOutput(r)
		if r.Passed {
			out.Passed++
		} else {
			out.Failed++
		}
	}
	return nil, out, nil
}

func (s *Server) handleTrackStatus(ctx context.Context, _ *gomcp.CallToolRequest, input trackInput) (*gomcp.CallToolResult, trackStatusOutput, error) {
	trackID, err := s.trackID(input.Track)
	if err != nil {
		return errorResult(err.Error()), trackStatusOutput{}, nil
	}

	report, err := s.tracks.Status(ctx, trackID)
	if err != nil {
		return errorResult(err.Error()), trackStatusOutput{}, nil
	}

	snap := report.Snapshot
	out := trackStatusOutput{
		TrackID:      report.Track.ID,
		Title:        report.Track.Title,
		Status:       string(snap.Status),
		Percent:      snap.Percent,
		Total:        snap.Total,
		Completed:    snap.Completed,
		InProgress:   snap.InProgress,
		Ready:        snap.Ready,
		Pending:      snap.Pending,
		Blocked:      snap.Blocked,
		Failed:       snap.Failed,
		Phases:       make([]phaseOutput, len(snap.Phases)),
		CriticalPath: report.Resolution.CriticalPath,
	}
	for i, p := range snap.Phases {
		out.Phases[i] = phaseOutput{
			ID:        p.PhaseID,
			Title:     p.Title,
			Total:     p.Total,
			Completed: p.Completed,
			Percent:   p.Percent,
		}
	}
	if report.Current != nil {
		t := taskToOutput(*report.Current)
		out.Current = &t
	}
	return nil, out, nil
}

func (s *Server) handleOverrideTask(ctx context.Context, _ *gomcp.CallToolRequest, input overrideTaskInput) (*gomcp.CallToolResult, verificationOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), verificationOutput{}, nil
	}
	if input.Reason == "" {
		return errorResult("reason is required"), verificationOutput{}, nil
	}
	trackID, err := s.trackID(input.Track)
	if err != nil {
		return errorResult(err.Error()), verificationOutput{}, nil
	}

	result, err := s.tracks.Override(ctx, trackID, input.TaskID, input.Reason)
	if err != nil {
		return errorResult(err.Error()), verificationOutput{}, nil
	}
	return nil, verificationToOutput(*result), nil
}

func (s *Server) handleRevert(ctx context.Context, _ *gomcp.CallToolRequest, input revertInput) (*gomcp.CallToolResult, revertOutput, error) {
	scope := core.RollbackScope(input.Scope)
	switch scope {
	case core.ScopeTask, core.ScopePhase:
		if input.ID == "" {
			return errorResult(fmt.Sprintf("id is required for %s scope", scope)), revertOutput{}, nil
		}
	case core.ScopeTrack:
	default:
		return errorResult(fmt.Sprintf("invalid scope %q: must be one of task, phase, track", input.Scope)), revertOutput{}, nil
	}
	trackID, err := s.trackID(input.Track)
	if err != nil {
		return errorResult(err.Error()), revertOutput{}, nil
	}
	id := input.ID
	if scope == core.ScopeTrack {
		id = trackID
	}

	res, err := s.tracks.Revert(ctx, trackID, scope, id, core.RollbackOptions{
		DeleteArtifacts: input.DeleteArtifacts,
		RestoreBaseline: input.RestoreBaseline,
	})
	if err != nil {
		return errorResult(err.Error()), revertOutput{}, nil
	}

	out := revertOutput{
		TrackID:  res.TrackID,
		Scope:    res.Scope,
		Target:   res.Target,
		Affected: res.Affected,
		Deleted:  res.Deleted,
		Restored: res.Restored,
	}
	if out.Affected == nil {
		out.Affected = []string{}
	}
	return nil, out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *gomcp.CallToolRequest, input searchInput) (*gomcp.CallToolResult, searchOutput, error) {
	if input.Query == "" {
		return errorResult("query is required"), searchOutput{}, nil
	}

	hits, err := s.tracks.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return errorResult(fmt.Sprintf("searching: %s", err)), searchOutput{}, nil
	}

	out := searchOutput{
		Hits:  make([]searchHitOutput, len(hits)),
		Count: len(hits),
	}
	for i, h := range hits {
		out.Hits[i] = searchHitOutput{
			TrackID: h.TrackID,
			Kind:    h.Kind,
			Ref:     h.Ref,
			Title:   h.Title,
			Snippet: h.Snippet,
		}
	}
	return nil, out, nil
}

func (s *Server) handleListTracks(ctx context.Context, _ *gomcp.CallToolRequest, _ listTracksInput) (*gomcp.CallToolResult, listTracksOutput, error) {
	tracks, err := s.tracks.ListTracks(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("listing tracks: %s", err)), listTracksOutput{}, nil
	}

	out := listTracksOutput{
		Tracks: make([]trackInfoOutput, len(tracks)),
		Count:  len(tracks),
	}
	for i, t := range tracks {
		out.Tracks[i] = trackInfoOutput{
			ID:        t.ID,
			Title:     t.Title,
			Status:    string(t.Status),
			Total:     t.Total,
			Completed: t.Completed,
			Updated:   t.Updated.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceTime, err := observability.ParseSince(input.Since, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime, input.Track)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TracksPlanned:       metrics.TracksPlanned,
		Transitions:         metrics.Transitions,
		TransitionsByStatus: metrics.TransitionsByStatus,
		TasksCompleted:      metrics.TasksCompleted,
		VerificationsPassed: metrics.VerificationsPassed,
		VerificationsFailed: metrics.VerificationsFailed,
		PassRate:            metrics.PassRate(),
		Overrides:           metrics.Overrides,
		Rollbacks:           metrics.Rollbacks,
		ArtifactsRemoved:    metrics.ArtifactsRemoved,
		EventCount:          metrics.EventCount,
	}
	if out.TransitionsByStatus == nil {
		out.TransitionsByStatus = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			TrackID:     a.TrackID,
			TaskID:      a.TaskID,
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t models.Task) taskOutput {
	return taskOutput{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Phase:              t.Phase,
		Concern:            t.Concern,
		Status:             string(t.Status),
		Priority:           t.Priority,
		Dependencies:       t.Dependencies,
		TargetArtifacts:    t.TargetArtifacts,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Testable:           t.Testable,
		Override:           t.Override,
		Updated:            t.UpdatedAt.Format(time.RFC3339),
	}
}

func verificationToOutput(r models.VerificationResult) verificationOutput {
	return verificationOutput{
		ID:        r.ID,
		TaskID:    r.TaskID,
		Timestamp: r.Timestamp.Format(time.RFC3339),
		Passed:    r.Passed,
		Checks:    r.Checks,
		Gaps:      r.Gaps,
		Warnings:  r.Warnings,
		Override:  r.Override,
		Reason:    r.Reason,
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		TransitionsByStatus: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
