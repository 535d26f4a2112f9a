package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/internal/observability"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

// Dashboard panel indices.
const (
	panelTrack = iota
	panelTasks
	panelMetrics
	panelAlerts
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	tracks  []core.TrackInfo
	trackID string
	report  *core.StatusReport
	metrics *observability.Metrics
	alerts  []observability.Alert

	// State.
	loading bool
	err     error
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	tracks  []core.TrackInfo
	trackID string
	report  *core.StatusReport
	metrics *observability.Metrics
	alerts  []observability.Alert
	err     error
}

func newDashboardModel(trackID string) dashboardModel {
	return dashboardModel{
		activePanel: panelTrack,
		trackID:     trackID,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadDashboard(m.trackID)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "]", "[":
			next := m.cycleTrack(msg.String() == "]")
			if next == m.trackID {
				return m, nil
			}
			m.trackID = next
			m.loading = true
			return m, loadDashboard(next)
		case "r":
			m.loading = true
			return m, loadDashboard(m.trackID)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.tracks = msg.tracks
		m.trackID = msg.trackID
		m.report = msg.report
		m.metrics = msg.metrics
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

// cycleTrack returns the track after (or before) the selected one.
func (m dashboardModel) cycleTrack(forward bool) string {
	if len(m.tracks) == 0 {
		return m.trackID
	}
	idx := -1
	for i, t := range m.tracks {
		if t.ID == m.trackID {
			idx = i
			break
		}
	}
	step := 1
	if !forward {
		step = -1
	}
	idx = (idx + step + len(m.tracks)) % len(m.tracks)
	return m.tracks[idx].ID
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" trackforge ")
	if m.trackID != "" {
		title += " " + headerStyle.Render(m.trackID)
	}
	help := helpStyle.Render("tab: switch panel | [ ]: switch track | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{
		m.renderTrackPanel(),
		m.renderTasksPanel(),
		m.renderMetricsPanel(),
		m.renderAlertsPanel(),
	}

	availableWidth := m.width - 2
	var body string
	if availableWidth > 140 {
		colWidth := availableWidth / 2
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth-4)
		}
		top := lipgloss.JoinHorizontal(lipgloss.Top, panels[panelTrack], panels[panelTasks])
		bottom := lipgloss.JoinHorizontal(lipgloss.Top, panels[panelMetrics], panels[panelAlerts])
		body = lipgloss.JoinVertical(lipgloss.Left, top, bottom)
	} else {
		panelWidth := max(availableWidth-4, 20)
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderTrackPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Track"))
	b.WriteString("\n")

	if m.report == nil {
		if len(m.tracks) == 0 {
			b.WriteString("  No tracks planned.")
		} else {
			b.WriteString("  No track selected. Press ] to pick one.")
		}
		return b.String()
	}

	snap := m.report.Snapshot
	fmt.Fprintf(&b, "  %s %s\n", styleForStatus(string(snap.Status)).Render(string(snap.Status)), progressBar(snap.Percent, 16))
	for _, p := range snap.Phases {
		fmt.Fprintf(&b, "  %-12s %s\n", p.PhaseID, progressBar(p.Percent, 10))
	}
	if m.report.Current != nil {
		fmt.Fprintf(&b, "\n  Current: %s %s", m.report.Current.ID, m.report.Current.Title)
	}
	if cp := m.report.Resolution.CriticalPath; len(cp) > 0 {
		fmt.Fprintf(&b, "\n  Critical path: %s", strings.Join(cp, " > "))
	}
	return b.String()
}

func (m dashboardModel) renderTasksPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks"))
	b.WriteString("\n")

	if m.report == nil || len(m.report.Tasks) == 0 {
		b.WriteString("  No tasks found.")
		return b.String()
	}

	grouped := make(map[models.TaskStatus][]models.Task)
	for _, t := range m.report.Tasks {
		grouped[t.Status] = append(grouped[t.Status], t)
	}
	for _, status := range models.TaskStatuses {
		for _, t := range grouped[status] {
			mark := " "
			if t.Override {
				mark = "!"
			}
			line := fmt.Sprintf("  %s %-12s %-8s %s", mark, status, t.ID, t.Title)
			b.WriteString(styleForStatus(string(status)).Render(line))
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n  Total: %d", len(m.report.Tasks))
	return b.String()
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics (" + observability.DefaultSince + ")"))
	b.WriteString("\n")

	if m.metrics == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	md := m.metrics
	lines := []struct {
		label string
		value int
	}{
		{"Events", md.EventCount},
		{"Transitions", md.Transitions},
		{"Completed", md.TasksCompleted},
		{"Verified ok", md.VerificationsPassed},
		{"Verified gaps", md.VerificationsFailed},
		{"Overrides", md.Overrides},
		{"Rollbacks", md.Rollbacks},
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "  %-14s %d\n", l.label, l.value)
	}
	fmt.Fprintf(&b, "  %-14s %d%%", "Pass rate", md.PassRate())
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(string(a.Severity)).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		fmt.Fprintf(&b, "  %s %s\n", sev, a.Message)
	}
	fmt.Fprintf(&b, "\n  Total: %d alert(s)", len(m.alerts))
	return b.String()
}

// loadDashboard gathers the tracks, the selected track's status, metrics
// and alerts. An empty trackID selects the first planned track.
func loadDashboard(trackID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		result := dataLoadedMsg{trackID: trackID}

		if Tracks != nil {
			tracks, err := Tracks.ListTracks(ctx)
			if err != nil {
				result.err = fmt.Errorf("loading tracks: %w", err)
				return result
			}
			result.tracks = tracks
			if result.trackID == "" && len(tracks) > 0 {
				result.trackID = tracks[0].ID
			}
			if result.trackID != "" {
				report, err := Tracks.Status(ctx, result.trackID)
				if err != nil {
					result.err = fmt.Errorf("loading track %s: %w", result.trackID, err)
					return result
				}
				result.report = report
			}
		}

		if MetricsCalc != nil {
			since, _ := observability.ParseSince(observability.DefaultSince, time.Now().UTC())
			metrics, err := MetricsCalc.Calculate(since, result.trackID)
			if err != nil {
				result.err = fmt.Errorf("loading metrics: %w", err)
				return result
			}
			result.metrics = metrics
		}

		if AlertEngine != nil {
			alerts, err := AlertEngine.Evaluate()
			if err != nil {
				result.err = fmt.Errorf("loading alerts: %w", err)
				return result
			}
			sort.SliceStable(alerts, func(i, j int) bool {
				return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
			})
			result.alerts = alerts
		}

		return result
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for track progress, metrics and alerts",
	Long: `Launch an interactive terminal dashboard showing track progress, tasks,
metrics and alerts.

Navigate between panels with Tab, switch tracks with [ and ], refresh with r,
quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := trackManager(); err != nil {
			return err
		}
		trackID := trackFlag
		if trackID == "" {
			trackID = DefaultTrack
		}
		p := tea.NewProgram(newDashboardModel(trackID), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
