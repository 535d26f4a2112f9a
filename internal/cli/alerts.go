package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	alertsNotify bool
	alertsJSON   bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions against the event log and display any triggered alerts.

Alerts check for tasks blocked too long, stale in-progress tasks, repeated
verification failures and tracks that lean on overrides. With --notify the
alerts are also posted to the configured Slack webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
		})

		out := cmd.OutOrStdout()
		if alertsJSON {
			if err := writeJSON(out, alerts); err != nil {
				return err
			}
		} else if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
		} else {
			fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
			for _, alert := range alerts {
				severity := strings.ToUpper(string(alert.Severity))
				fmt.Fprintf(out, "  [%s] %s\n", styleForSeverity(string(alert.Severity)).Render(severity), alert.Message)
				fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
			}
		}

		if !alertsNotify || len(alerts) == 0 {
			return nil
		}
		if Notifier == nil {
			return fmt.Errorf("notifications are not configured (set notifications.enabled and notifications.slack.webhook_url)")
		}
		if err := Notifier.Notify(cmd.Context(), alerts); err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		if !alertsJSON {
			fmt.Fprintf(out, "Sent %d alert(s) to Slack.\n", len(alerts))
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post active alerts to the configured webhook")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}
