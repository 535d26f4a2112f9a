package models

import "time"

// VerifyConfig controls the verification engine.
type VerifyConfig struct {
	MinArtifactBytes int      `yaml:"min_artifact_bytes" mapstructure:"min_artifact_bytes"`
	TestPatterns     []string `yaml:"test_patterns" mapstructure:"test_patterns"`
	CriteriaBlocking bool     `yaml:"criteria_blocking" mapstructure:"criteria_blocking"`
	Workers          int      `yaml:"workers" mapstructure:"workers"`
}

// LockConfig controls per-track lock acquisition.
type LockConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Backoff time.Duration `yaml:"backoff" mapstructure:"backoff"`
}

// AlertConfig holds the thresholds that decide when a track needs attention.
type AlertConfig struct {
	BlockedHours            int `yaml:"blocked_hours" mapstructure:"blocked_hours"`
	StaleDays               int `yaml:"stale_days" mapstructure:"stale_days"`
	MaxVerificationFailures int `yaml:"max_verification_failures" mapstructure:"max_verification_failures"`
	MaxOverrides            int `yaml:"max_overrides" mapstructure:"max_overrides"`
}

// SlackConfig holds Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig controls outbound alert notifications.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// GlobalConfig holds system-wide settings read from .trackconfig via Viper.
type GlobalConfig struct {
	DefaultTrack   string             `yaml:"default_track" mapstructure:"default_track"`
	WorkspaceRoot  string             `yaml:"workspace_root" mapstructure:"workspace_root"`
	TaskIDPrefix   string             `yaml:"task_id_prefix" mapstructure:"task_id_prefix"`
	TaskIDPadWidth int                `yaml:"task_id_pad_width" mapstructure:"task_id_pad_width"`
	MaxNesting     int                `yaml:"max_nesting" mapstructure:"max_nesting"`
	Verify         VerifyConfig       `yaml:"verify" mapstructure:"verify"`
	Lock           LockConfig         `yaml:"lock" mapstructure:"lock"`
	ProtectedRefs  []string           `yaml:"protected_refs" mapstructure:"protected_refs"`
	LogLevel       string             `yaml:"log_level" mapstructure:"log_level"`
	Alerts         AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications  NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}

// WorkspaceConfig holds per-workspace overrides read from .trackrc files.
// Nil fields inherit the global value.
type WorkspaceConfig struct {
	MinArtifactBytes *int     `yaml:"min_artifact_bytes,omitempty" mapstructure:"min_artifact_bytes"`
	TestPatterns     []string `yaml:"test_patterns,omitempty" mapstructure:"test_patterns"`
	CriteriaBlocking *bool    `yaml:"criteria_blocking,omitempty" mapstructure:"criteria_blocking"`
}

// MergedConfig combines global and workspace configuration, with workspace
// settings taking precedence.
type MergedConfig struct {
	GlobalConfig `yaml:",inline" mapstructure:",squash"`
	Workspace    *WorkspaceConfig `yaml:"workspace,omitempty" mapstructure:"workspace"`
}

// EffectiveVerify returns the verification settings with workspace
// overrides applied.
func (m *MergedConfig) EffectiveVerify() VerifyConfig {
	v := m.Verify
	v.TestPatterns = append([]string(nil), m.Verify.TestPatterns...)
	if m.Workspace == nil {
		return v
	}
	if m.Workspace.MinArtifactBytes != nil {
		v.MinArtifactBytes = *m.Workspace.MinArtifactBytes
	}
	if len(m.Workspace.TestPatterns) > 0 {
		v.TestPatterns = append([]string(nil), m.Workspace.TestPatterns...)
	}
	if m.Workspace.CriteriaBlocking != nil {
		v.CriteriaBlocking = *m.Workspace.CriteriaBlocking
	}
	return v
}
