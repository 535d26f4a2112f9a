package cli

import (
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath     string
	DefaultTrack string
	Tracks       core.TrackManager
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
