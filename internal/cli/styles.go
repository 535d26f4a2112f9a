package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions shared by status output and the dashboard.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusFailed     = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	statusReady      = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// styleForStatus covers both task and track statuses.
func styleForStatus(status string) lipgloss.Style {
	switch status {
	case "in_progress":
		return statusInProgress
	case "completed":
		return statusCompleted
	case "blocked":
		return statusBlocked
	case "failed":
		return statusFailed
	case "ready":
		return statusReady
	case "pending", "planning":
		return statusPending
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}
