package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/internal/observability"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

var cliTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// fakeTracks overrides the TrackManager methods a test needs; calling any
// other method panics through the nil embedded interface.
type fakeTracks struct {
	core.TrackManager

	planFn     func(doc core.PlanDocument) (*core.PlanResult, error)
	addFn      func(trackID string, doc core.PlanDocument) ([]models.Task, error)
	startFn    func(trackID, taskID string) (*models.Task, error)
	failFn     func(trackID, taskID, reason string) (*models.Task, error)
	retryFn    func(trackID, taskID string) (*models.Task, error)
	overrideFn func(trackID, taskID, reason string) (*models.VerificationResult, error)
	nextFn     func(trackID string, peek bool) (*core.NextResult, error)
	checkFn    func(trackID string, taskIDs []string) ([]models.VerificationResult, error)
	statusFn   func(trackID string) (*core.StatusReport, error)
	revertFn   func(trackID string, scope core.RollbackScope, id string, opts core.RollbackOptions) (*core.RollbackResult, error)
	cleanupFn  func(trackID string, taskIDs []string) ([]string, error)
	logFn      func(trackID, taskID string) ([]models.VerificationResult, error)
	searchFn   func(query string, limit int) ([]core.SearchHit, error)
	graphFn    func(trackID string) (*core.GraphReport, error)
	listFn     func() ([]core.TrackInfo, error)
}

func (f *fakeTracks) Plan(_ context.Context, doc core.PlanDocument) (*core.PlanResult, error) {
	return f.planFn(doc)
}

func (f *fakeTracks) AddTasks(_ context.Context, trackID string, doc core.PlanDocument) ([]models.Task, error) {
	return f.addFn(trackID, doc)
}

func (f *fakeTracks) Start(_ context.Context, trackID, taskID string) (*models.Task, error) {
	return f.startFn(trackID, taskID)
}

func (f *fakeTracks) Fail(_ context.Context, trackID, taskID, reason string) (*models.Task, error) {
	return f.failFn(trackID, taskID, reason)
}

func (f *fakeTracks) Retry(_ context.Context, trackID, taskID string) (*models.Task, error) {
	return f.retryFn(trackID, taskID)
}

func (f *fakeTracks) Override(_ context.Context, trackID, taskID, reason string) (*models.VerificationResult, error) {
	return f.overrideFn(trackID, taskID, reason)
}

func (f *fakeTracks) Next(_ context.Context, trackID string, peek bool) (*core.NextResult, error) {
	return f.nextFn(trackID, peek)
}

func (f *fakeTracks) Check(_ context.Context, trackID string, taskIDs []string) ([]models.VerificationResult, error) {
	return f.checkFn(trackID, taskIDs)
}

func (f *fakeTracks) Status(_ context.Context, trackID string) (*core.StatusReport, error) {
	return f.statusFn(trackID)
}

func (f *fakeTracks) Revert(_ context.Context, trackID string, scope core.RollbackScope, id string, opts core.RollbackOptions) (*core.RollbackResult, error) {
	return f.revertFn(trackID, scope, id, opts)
}

func (f *fakeTracks) CleanupArtifacts(_ context.Context, trackID string, taskIDs []string) ([]string, error) {
	return f.cleanupFn(trackID, taskIDs)
}

func (f *fakeTracks) Log(_ context.Context, trackID, taskID string) ([]models.VerificationResult, error) {
	return f.logFn(trackID, taskID)
}

func (f *fakeTracks) Search(_ context.Context, query string, limit int) ([]core.SearchHit, error) {
	return f.searchFn(query, limit)
}

func (f *fakeTracks) Graph(_ context.Context, trackID string) (*core.GraphReport, error) {
	return f.graphFn(trackID)
}

func (f *fakeTracks) ListTracks(_ context.Context) ([]core.TrackInfo, error) {
	return f.listFn()
}

type alertsMock struct {
	evaluateFn func() ([]observability.Alert, error)
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.evaluateFn()
}

type notifierMock struct {
	notifyFn func(alerts []observability.Alert) error
}

func (m *notifierMock) Notify(_ context.Context, alerts []observability.Alert) error {
	return m.notifyFn(alerts)
}

type metricsMock struct {
	calculateFn func(since time.Time, trackID string) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time, trackID string) (*observability.Metrics, error) {
	return m.calculateFn(since, trackID)
}

// useTracks installs tm as the engine with "auth" as the default track and
// restores the package state when the test ends.
func useTracks(t *testing.T, tm core.TrackManager) {
	t.Helper()
	origTracks, origDefault, origFlag := Tracks, DefaultTrack, trackFlag
	t.Cleanup(func() {
		Tracks, DefaultTrack, trackFlag = origTracks, origDefault, origFlag
	})
	Tracks = tm
	DefaultTrack = "auth"
	trackFlag = ""
}

// setFlag assigns a package-level flag variable for the duration of a test.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	orig := *p
	t.Cleanup(func() { *p = orig })
	*p = v
}

// runCmd invokes cmd's RunE with a captured stdout.
func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

func sampleTask(id string, status models.TaskStatus) models.Task {
	return models.Task{
		ID:              id,
		Title:           "Task " + id,
		Phase:           "p1",
		Concern:         "storage",
		Status:          status,
		TargetArtifacts: []string{id + ".go"},
		UpdatedAt:       cliTime,
	}
}
