package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show track progress grouped by status",
	Long: `Display the completion snapshot of a track: overall and per-phase
progress, the task in progress and every task grouped by status in
lifecycle order. Overridden tasks are marked with '!'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		report, err := tm.Status(cmd.Context(), trackID)
		if err != nil {
			return err
		}

		if statusJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		printStatusReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func printStatusReport(out io.Writer, report *core.StatusReport) {
	snap := report.Snapshot
	title := report.Track.ID
	if report.Track.Title != "" {
		title += ": " + report.Track.Title
	}
	fmt.Fprintln(out, headerStyle.Render(title))
	fmt.Fprintf(out, "%s %s  %s\n\n",
		styleForStatus(string(snap.Status)).Render(string(snap.Status)),
		progressBar(snap.Percent, 20),
		fmt.Sprintf("%d/%d tasks", snap.Completed, snap.Total))

	for _, p := range snap.Phases {
		label := p.PhaseID
		if p.Title != "" {
			label += " " + p.Title
		}
		fmt.Fprintf(out, "  %-24s %s %d/%d\n", label, progressBar(p.Percent, 10), p.Completed, p.Total)
	}
	if len(snap.Phases) > 0 {
		fmt.Fprintln(out)
	}

	if report.Current != nil {
		fmt.Fprintf(out, "Current: %s: %s\n\n", report.Current.ID, report.Current.Title)
	}

	grouped := make(map[models.TaskStatus][]models.Task)
	for _, t := range report.Tasks {
		grouped[t.Status] = append(grouped[t.Status], t)
	}
	for _, status := range models.TaskStatuses {
		group := grouped[status]
		if len(group) == 0 {
			continue
		}
		heading := fmt.Sprintf("== %s (%d) ==", strings.ToUpper(string(status)), len(group))
		fmt.Fprintln(out, styleForStatus(string(status)).Render(heading))
		for _, t := range group {
			mark := " "
			if t.Override {
				mark = "!"
			}
			fmt.Fprintf(out, "  %s %-10s %-8s %s\n", mark, t.ID, t.Phase, t.Title)
			if t.Status == models.TaskBlocked && t.VerificationResult != nil {
				for _, gap := range t.VerificationResult.Gaps {
					fmt.Fprintf(out, "      gap: %s\n", gap)
				}
			}
		}
		fmt.Fprintln(out)
	}
}

// progressBar renders percent as a fixed-width bar.
func progressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %3d%%", bar, percent)
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output the status report as JSON")
	rootCmd.AddCommand(statusCmd)
}
