package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

var (
	failReason     string
	overrideReason string
)

var startCmd = &cobra.Command{
	Use:   "start <task>",
	Short: "Start a ready task",
	Long: `Move a ready task to in_progress. 'next' starts tasks in resolver order;
use 'start' to pick a different ready task, for example one from a later
parallel wave.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.TaskReady),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		task, err := tm.Start(cmd.Context(), trackID, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s: %s\n", task.ID, task.Title)
		printTaskTargets(cmd.OutOrStdout(), *task)
		return nil
	},
}

var failCmd = &cobra.Command{
	Use:   "fail <task>",
	Short: "Mark an in-progress task as failed",
	Long: `Mark an in-progress task as failed, for example when the approach was
abandoned. A failed task keeps its dependents waiting until 'retry'.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.TaskInProgress),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		task, err := tm.Fail(cmd.Context(), trackID, args[0], failReason)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s marked %s.\n", task.ID, task.Status)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:               "retry <task>",
	Short:             "Return a failed task to ready",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.TaskFailed),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		task, err := tm.Retry(cmd.Context(), trackID, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s is %s again.\n", task.ID, task.Status)
		return nil
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override <task>",
	Short: "Force a blocked task to completed",
	Long: `Force a blocked task to completed despite its verification gaps. The
override is recorded in the verification log with the given reason and the
task stays marked as overridden in status output.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.TaskBlocked),
	RunE: func(cmd *cobra.Command, args []string) error {
		if overrideReason == "" {
			return fmt.Errorf("--reason is required")
		}
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		result, err := tm.Override(cmd.Context(), trackID, args[0], overrideReason)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Task %s completed by override.\n", result.TaskID)
		for _, gap := range result.Gaps {
			fmt.Fprintf(out, "  accepted gap: %s\n", gap)
		}
		return nil
	},
}

func init() {
	failCmd.Flags().StringVar(&failReason, "reason", "", "Why the task failed")
	overrideCmd.Flags().StringVar(&overrideReason, "reason", "", "Why the verification gaps are acceptable (required)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(failCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(overrideCmd)
}
