// Package core contains the engine of trackforge: the task graph, the
// dependency resolver, the status state machine, verification, progress
// reporting, rollback and the configuration that drives them.
package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

// validPrefixPattern matches uppercase alphanumeric prefixes between 1 and 10 characters.
var validPrefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ConfigurationManager loads, merges and validates configuration from the
// global .trackconfig file and per-workspace .trackrc files.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	LoadWorkspaceConfig(workspacePath string) (*models.WorkspaceConfig, error)
	GetMergedConfig(workspacePath string) (*models.MergedConfig, error)
	ValidateConfig(config any) error
}

type viperConfigManager struct {
	// basePath is the directory holding .trackconfig.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .trackconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns the configuration used when no .trackconfig
// exists.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		TaskIDPrefix:   "T",
		TaskIDPadWidth: 3,
		MaxNesting:     DefaultMaxNesting,
		Verify: models.VerifyConfig{
			MinArtifactBytes: DefaultMinArtifactBytes,
			TestPatterns:     append([]string(nil), DefaultTestPatterns...),
			Workers:          DefaultVerifyWorkers,
		},
		Lock: models.LockConfig{
			Timeout: 5 * time.Second,
			Backoff: 25 * time.Millisecond,
		},
		ProtectedRefs: append([]string(nil), DefaultProtectedRefs...),
		LogLevel:      "info",
		Alerts: models.AlertConfig{
			BlockedHours:            24,
			StaleDays:               3,
			MaxVerificationFailures: 3,
			MaxOverrides:            2,
		},
	}
}

// LoadGlobalConfig reads .trackconfig from the base path. A missing file
// yields the defaults.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(".trackconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("defaults.track", cfg.DefaultTrack)
	v.SetDefault("workspace.root", cfg.WorkspaceRoot)
	v.SetDefault("task_id.prefix", cfg.TaskIDPrefix)
	v.SetDefault("task_id.pad_width", cfg.TaskIDPadWidth)
	v.SetDefault("graph.max_nesting", cfg.MaxNesting)
	v.SetDefault("verify.min_artifact_bytes", cfg.Verify.MinArtifactBytes)
	v.SetDefault("verify.test_patterns", cfg.Verify.TestPatterns)
	v.SetDefault("verify.criteria_blocking", cfg.Verify.CriteriaBlocking)
	v.SetDefault("verify.workers", cfg.Verify.Workers)
	v.SetDefault("lock.timeout", cfg.Lock.Timeout)
	v.SetDefault("lock.backoff", cfg.Lock.Backoff)
	v.SetDefault("rollback.protected_refs", cfg.ProtectedRefs)
	v.SetDefault("log.level", cfg.LogLevel)
	v.SetDefault("alerts.blocked_hours", cfg.Alerts.BlockedHours)
	v.SetDefault("alerts.stale_days", cfg.Alerts.StaleDays)
	v.SetDefault("alerts.max_verification_failures", cfg.Alerts.MaxVerificationFailures)
	v.SetDefault("alerts.max_overrides", cfg.Alerts.MaxOverrides)
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.slack.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .trackconfig: %w", err)
	}

	cfg.DefaultTrack = v.GetString("defaults.track")
	cfg.WorkspaceRoot = v.GetString("workspace.root")
	cfg.TaskIDPrefix = v.GetString("task_id.prefix")
	cfg.TaskIDPadWidth = v.GetInt("task_id.pad_width")
	cfg.MaxNesting = v.GetInt("graph.max_nesting")
	cfg.Verify.MinArtifactBytes = v.GetInt("verify.min_artifact_bytes")
	cfg.Verify.TestPatterns = v.GetStringSlice("verify.test_patterns")
	cfg.Verify.CriteriaBlocking = v.GetBool("verify.criteria_blocking")
	cfg.Verify.Workers = v.GetInt("verify.workers")
	cfg.Lock.Timeout = v.GetDuration("lock.timeout")
	cfg.Lock.Backoff = v.GetDuration("lock.backoff")
	cfg.ProtectedRefs = v.GetStringSlice("rollback.protected_refs")
	cfg.LogLevel = strings.ToLower(v.GetString("log.level"))
	cfg.Alerts.BlockedHours = v.GetInt("alerts.blocked_hours")
	cfg.Alerts.StaleDays = v.GetInt("alerts.stale_days")
	cfg.Alerts.MaxVerificationFailures = v.GetInt("alerts.max_verification_failures")
	cfg.Alerts.MaxOverrides = v.GetInt("alerts.max_overrides")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")

	return cfg, nil
}

// LoadWorkspaceConfig reads .trackrc from workspacePath. It returns nil
// when the workspace has no overrides.
func (cm *viperConfigManager) LoadWorkspaceConfig(workspacePath string) (*models.WorkspaceConfig, error) {
	v := viper.New()
	v.SetConfigName(".trackrc")
	v.SetConfigType("yaml")
	v.AddConfigPath(workspacePath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("reading .trackrc in %s: %w", workspacePath, err)
	}

	wc := &models.WorkspaceConfig{}
	// IsSet separates an explicit zero or false from an absent key.
	if v.IsSet("verify.min_artifact_bytes") {
		n := v.GetInt("verify.min_artifact_bytes")
		wc.MinArtifactBytes = &n
	}
	if v.IsSet("verify.test_patterns") {
		wc.TestPatterns = v.GetStringSlice("verify.test_patterns")
	}
	if v.IsSet("verify.criteria_blocking") {
		b := v.GetBool("verify.criteria_blocking")
		wc.CriteriaBlocking = &b
	}
	return wc, nil
}

// GetMergedConfig loads the global config and overlays the workspace
// settings. Precedence: .trackrc > .trackconfig > defaults.
func (cm *viperConfigManager) GetMergedConfig(workspacePath string) (*models.MergedConfig, error) {
	globalCfg, err := cm.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading global config for merge: %w", err)
	}

	merged := &models.MergedConfig{GlobalConfig: *globalCfg}
	if workspacePath == "" {
		return merged, nil
	}

	wc, err := cm.LoadWorkspaceConfig(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("loading workspace config for merge: %w", err)
	}
	merged.Workspace = wc
	return merged, nil
}

// ValidateConfig checks a *GlobalConfig, *WorkspaceConfig or *MergedConfig
// and reports every invalid value in one error.
func (cm *viperConfigManager) ValidateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}

	switch cfg := config.(type) {
	case *models.GlobalConfig:
		return validateGlobalConfig(cfg)
	case *models.WorkspaceConfig:
		return validateWorkspaceConfig(cfg)
	case *models.MergedConfig:
		if err := validateGlobalConfig(&cfg.GlobalConfig); err != nil {
			return err
		}
		if cfg.Workspace != nil {
			return validateWorkspaceConfig(cfg.Workspace)
		}
		return nil
	default:
		return fmt.Errorf("unsupported configuration type: %T", config)
	}
}

func validateGlobalConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("global configuration is nil")
	}

	var errs []string

	if cfg.TaskIDPrefix == "" {
		errs = append(errs, "task_id.prefix must not be empty")
	} else if !validPrefixPattern.MatchString(cfg.TaskIDPrefix) {
		errs = append(errs, fmt.Sprintf("task_id.prefix %q is invalid, must match [A-Z0-9]{1,10}", cfg.TaskIDPrefix))
	}
	if cfg.TaskIDPadWidth < 0 || cfg.TaskIDPadWidth > 10 {
		errs = append(errs, fmt.Sprintf("task_id.pad_width %d is invalid, must be between 0 and 10", cfg.TaskIDPadWidth))
	}
	if cfg.MaxNesting < 0 {
		errs = append(errs, fmt.Sprintf("graph.max_nesting must be non-negative, got %d", cfg.MaxNesting))
	}
	if cfg.Verify.MinArtifactBytes < 0 {
		errs = append(errs, fmt.Sprintf("verify.min_artifact_bytes must be non-negative, got %d", cfg.Verify.MinArtifactBytes))
	}
	if cfg.Verify.Workers < 1 {
		errs = append(errs, fmt.Sprintf("verify.workers must be at least 1, got %d", cfg.Verify.Workers))
	}
	errs = append(errs, validatePatterns("verify.test_patterns", cfg.Verify.TestPatterns)...)
	if cfg.Lock.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("lock.timeout must be positive, got %s", cfg.Lock.Timeout))
	}
	if cfg.Lock.Backoff <= 0 {
		errs = append(errs, fmt.Sprintf("lock.backoff must be positive, got %s", cfg.Lock.Backoff))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Alerts.BlockedHours < 1 || cfg.Alerts.StaleDays < 1 ||
		cfg.Alerts.MaxVerificationFailures < 1 || cfg.Alerts.MaxOverrides < 1 {
		errs = append(errs, "alerts thresholds must all be at least 1")
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url is required when notifications are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateWorkspaceConfig(cfg *models.WorkspaceConfig) error {
	if cfg == nil {
		return fmt.Errorf("workspace configuration is nil")
	}

	var errs []string
	if cfg.MinArtifactBytes != nil && *cfg.MinArtifactBytes < 0 {
		errs = append(errs, fmt.Sprintf("verify.min_artifact_bytes must be non-negative, got %d", *cfg.MinArtifactBytes))
	}
	errs = append(errs, validatePatterns("verify.test_patterns", cfg.TestPatterns)...)

	if len(errs) > 0 {
		return fmt.Errorf("workspace config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validatePatterns(key string, patterns []string) []string {
	var errs []string
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Sprintf("%s entry %q is not a valid glob", key, p))
		}
	}
	return errs
}
