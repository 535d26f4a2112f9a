package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/observability"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display track and verification metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include planned tracks, status transitions, verification pass rate,
overrides, rollbacks and removed artifacts. Use --track to restrict them to
one track.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		sinceTime, err := observability.ParseSince(metricsSince, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime, trackFlag)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			return writeJSON(out, metrics)
		}

		scope := "all tracks"
		if trackFlag != "" {
			scope = "track " + trackFlag
		}
		fmt.Fprintf(out, "Metrics for %s (since %s)\n\n", scope, sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Tracks planned:", metrics.TracksPlanned)
		fmt.Fprintf(out, "  %-24s %d\n", "Transitions:", metrics.Transitions)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks completed:", metrics.TasksCompleted)
		fmt.Fprintf(out, "  %-24s %d passed, %d failed (%d%%)\n", "Verifications:",
			metrics.VerificationsPassed, metrics.VerificationsFailed, metrics.PassRate())
		fmt.Fprintf(out, "  %-24s %d\n", "Overrides:", metrics.Overrides)
		fmt.Fprintf(out, "  %-24s %d\n", "Rollbacks:", metrics.Rollbacks)
		fmt.Fprintf(out, "  %-24s %d\n", "Artifacts removed:", metrics.ArtifactsRemoved)

		if len(metrics.TransitionsByStatus) > 0 {
			fmt.Fprintln(out, "\n  Transitions by target status:")
			statuses := make([]string, 0, len(metrics.TransitionsByStatus))
			for s := range metrics.TransitionsByStatus {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(out, "    %-22s %d\n", s+":", metrics.TransitionsByStatus[s])
			}
		}

		if metrics.OldestEvent != nil && metrics.NewestEvent != nil {
			fmt.Fprintf(out, "\n  Event range: %s to %s\n",
				metrics.OldestEvent.Format("2006-01-02 15:04"),
				metrics.NewestEvent.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", observability.DefaultSince, "Time window (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
