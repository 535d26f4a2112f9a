package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

var cleanupTasks []string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the target artifacts of reverted tasks",
	Long: `Remove the target artifacts of tasks that were reverted to pending.
Paths must resolve inside the workspace root. Task state is not changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cleanupTasks) == 0 {
			return fmt.Errorf("pass at least one --task")
		}
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		removed, err := tm.CleanupArtifacts(cmd.Context(), trackID, cleanupTasks)
		out := cmd.OutOrStdout()
		for _, p := range removed {
			fmt.Fprintf(out, "removed %s\n", p)
		}
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			fmt.Fprintln(out, "No artifacts to remove.")
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringSliceVar(&cleanupTasks, "task", nil, "Pending task whose artifacts to remove (repeatable)")
	_ = cleanupCmd.RegisterFlagCompletionFunc("task", completeTaskIDs(models.TaskPending))
	rootCmd.AddCommand(cleanupCmd)
}
