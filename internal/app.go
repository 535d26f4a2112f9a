// Package internal provides the App struct that wires all components of
// trackforge together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/trackforge/internal/cli"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/internal/integration"
	"github.com/valter-silva-au/trackforge/internal/observability"
	"github.com/valter-silva-au/trackforge/internal/storage"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

// EventLogFile is the name of the domain event log under the base path.
const EventLogFile = ".trackforge_events.jsonl"

// App holds all service dependencies of trackforge.
type App struct {
	BasePath      string
	WorkspaceRoot string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.MergedConfig

	// Storage layer
	Store storage.TrackStore

	// Core services
	Tracks   core.TrackManager
	Verifier core.Verifier
	Reporter core.Reporter

	// Integration services
	Baseline integration.GitBaseline

	// Observability
	Logger      *slog.Logger
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier

	logCloser io.Closer
}

// NewApp creates and wires all components. basePath is the directory that
// holds .trackconfig and the tracks/ tree.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}
	now := func() time.Time { return time.Now().UTC() }

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	globalCfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	app.WorkspaceRoot = resolveWorkspaceRoot(basePath, globalCfg.WorkspaceRoot)

	app.Config, err = app.ConfigMgr.GetMergedConfig(app.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(app.Config); err != nil {
		return nil, err
	}
	cfg := app.Config

	// --- Observability ---
	logger, closer, err := observability.NewFileLogger(basePath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log disabled: %v\n", err)
		logger = slog.New(slog.DiscardHandler)
	}
	app.Logger = logger
	app.logCloser = closer

	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFile))
	if err != nil {
		// Non-fatal: the engine runs without events, metrics and alerts.
		fmt.Fprintf(os.Stderr, "Warning: event log disabled: %v\n", err)
		app.EventLog = nil
	}
	if app.EventLog != nil {
		thresholds := observability.AlertThresholds{
			BlockedHours:            cfg.Alerts.BlockedHours,
			StaleDays:               cfg.Alerts.StaleDays,
			MaxVerificationFailures: cfg.Alerts.MaxVerificationFailures,
			MaxOverrides:            cfg.Alerts.MaxOverrides,
		}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, thresholds, now)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Storage layer ---
	app.Store = storage.NewTrackStore(basePath, storage.StoreOptions{
		LockTimeout: cfg.Lock.Timeout,
		LockBackoff: cfg.Lock.Backoff,
	})
	storeAdapter := &trackStoreAdapter{store: app.Store}

	// --- Integration services ---
	app.Baseline = integration.NewGitBaseline(app.WorkspaceRoot)

	// --- Core services ---
	verify := cfg.EffectiveVerify()
	builder := core.NewGraphBuilder(cfg.MaxNesting)
	resolver := core.NewResolver()
	sm := core.NewStateMachine(now)
	app.Reporter = core.NewReporter(now)
	app.Verifier = core.NewVerifier(core.VerifierOptions{
		WorkspaceRoot:    app.WorkspaceRoot,
		MinArtifactBytes: verify.MinArtifactBytes,
		TestPatterns:     verify.TestPatterns,
		CriteriaBlocking: verify.CriteriaBlocking,
		Workers:          verify.Workers,
		Now:              now,
	})
	rollback := core.NewRollbackManager(storeAdapter, builder, resolver, sm, app.Baseline, core.RollbackConfig{
		WorkspaceRoot: app.WorkspaceRoot,
		ProtectedRefs: cfg.ProtectedRefs,
		Now:           now,
	})

	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog, now: now}
	}

	app.Tracks = core.NewTrackManager(core.TrackManagerDeps{
		Store:        storeAdapter,
		Builder:      builder,
		Resolver:     resolver,
		StateMachine: sm,
		Verifier:     app.Verifier,
		Reporter:     app.Reporter,
		Rollback:     rollback,
		IDs:          core.NewTaskIDGenerator(cfg.TaskIDPrefix, cfg.TaskIDPadWidth),
		Baseline:     app.Baseline,
		Events:       events,
		Logger:       app.Logger,
		Now:          now,
	})

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.DefaultTrack = cfg.DefaultTrack
	cli.Tracks = app.Tracks
	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	app.Logger.Debug("app initialized", "base", basePath, "workspace", app.WorkspaceRoot)
	return app, nil
}

// Close releases resources held by the App: the search index, the event log
// and the debug log. It is safe to call on a partially wired App.
func (a *App) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResolveBasePath determines the trackforge base directory. It checks the
// TRACKFORGE_HOME env var, then the nearest ancestor holding a .trackconfig,
// then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("TRACKFORGE_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for d := dir; ; {
		if hasTrackConfig(d) {
			return d
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return dir
}

func hasTrackConfig(dir string) bool {
	for _, name := range []string{".trackconfig", ".trackconfig.yaml", ".trackconfig.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// resolveWorkspaceRoot anchors a relative workspace.root at the base path.
func resolveWorkspaceRoot(basePath, root string) string {
	switch {
	case root == "":
		return basePath
	case filepath.IsAbs(root):
		return filepath.Clean(root)
	default:
		return filepath.Join(basePath, root)
	}
}

// --- Adapters ---

// trackStoreAdapter adapts storage.TrackStore to core.TrackStore.
type trackStoreAdapter struct {
	store storage.TrackStore
}

func (a *trackStoreAdapter) Load(ctx context.Context, trackID string) (models.Track, []models.Task, error) {
	return a.store.Load(ctx, trackID)
}

func (a *trackStoreAdapter) Create(ctx context.Context, track models.Track, tasks []models.Task) error {
	return a.store.Create(ctx, track, tasks)
}

func (a *trackStoreAdapter) Update(ctx context.Context, trackID string, fn func(tx *core.TrackTx) error) error {
	return a.store.Update(ctx, trackID, func(stx *storage.Tx) error {
		tx := &core.TrackTx{Track: stx.Track, Tasks: stx.Tasks}
		if err := fn(tx); err != nil {
			return err
		}
		stx.Track = tx.Track
		stx.Tasks = tx.Tasks
		for _, r := range tx.Results {
			stx.AppendVerification(r)
		}
		if tx.Snapshot != nil {
			stx.SetSnapshot(*tx.Snapshot)
		}
		return nil
	})
}

func (a *trackStoreAdapter) ReadVerificationLog(ctx context.Context, trackID, taskID string) ([]models.VerificationResult, error) {
	return a.store.ReadVerificationLog(ctx, trackID, taskID)
}

func (a *trackStoreAdapter) SaveSnapshot(ctx context.Context, snapshot models.CompletionSnapshot) error {
	return a.store.SaveSnapshot(ctx, snapshot)
}

func (a *trackStoreAdapter) ListTracks(_ context.Context) ([]core.TrackInfo, error) {
	entries, err := a.store.ListTracks(storage.TrackFilter{})
	if err != nil {
		return nil, err
	}
	result := make([]core.TrackInfo, len(entries))
	for i, e := range entries {
		result[i] = core.TrackInfo{
			ID:        e.ID,
			Title:     e.Title,
			Status:    e.Status,
			Total:     e.Total,
			Completed: e.Completed,
			Created:   e.Created,
			Updated:   e.Updated,
		}
	}
	return result, nil
}

func (a *trackStoreAdapter) Search(ctx context.Context, query string, limit int) ([]core.SearchHit, error) {
	hits, err := a.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	result := make([]core.SearchHit, len(hits))
	for i, h := range hits {
		result[i] = core.SearchHit{
			TrackID: h.TrackID,
			Kind:    h.Kind,
			Ref:     h.Ref,
			Title:   h.Title,
			Snippet: h.Snippet,
			Rank:    h.Rank,
		}
	}
	return result, nil
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
	now func() time.Time
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    a.now(),
		Level:   "INFO",
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}
