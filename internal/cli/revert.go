package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

var (
	revertTask            string
	revertPhase           string
	revertTrack           bool
	revertDeleteArtifacts bool
	revertRestoreBaseline bool
	revertJSON            bool
)

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Reset a task, phase or track to pending",
	Long: `Revert tasks back to pending. With --task the task and every task that
transitively depends on it are reset; --phase resets every task in the
phase plus their dependents; --track-wide resets the whole track.

Statuses and verification results are cleared by default. Workspace files
are only touched with --delete-artifacts (remove target artifacts) or
--restore-baseline (check target artifacts out from the track's baseline
ref). Restoring a whole track from a protected ref such as main is refused.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, id, err := revertTarget()
		if err != nil {
			return err
		}
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}
		if scope == core.ScopeTrack {
			id = trackID
		}

		res, err := tm.Revert(cmd.Context(), trackID, scope, id, core.RollbackOptions{
			DeleteArtifacts: revertDeleteArtifacts,
			RestoreBaseline: revertRestoreBaseline,
		})
		if err != nil {
			var protected *core.ProtectedBaselineError
			if errors.As(err, &protected) {
				return fmt.Errorf("%w (%s)", err, protectedHint(protected))
			}
			return err
		}

		out := cmd.OutOrStdout()
		if revertJSON {
			return writeJSON(out, res)
		}
		if len(res.Affected) == 0 {
			fmt.Fprintf(out, "Nothing to revert for %s %s.\n", res.Scope, res.Target)
			return nil
		}
		fmt.Fprintf(out, "Reverted %d task(s) to %s: %v\n", len(res.Affected), models.TaskPending, res.Affected)
		for _, p := range res.Deleted {
			fmt.Fprintf(out, "  deleted: %s\n", p)
		}
		for _, p := range res.Restored {
			fmt.Fprintf(out, "  restored from %s: %s\n", res.BaselineRef, p)
		}
		return nil
	},
}

// revertTarget maps the exclusive scope flags to a rollback scope.
func revertTarget() (core.RollbackScope, string, error) {
	set := 0
	for _, ok := range []bool{revertTask != "", revertPhase != "", revertTrack} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return "", "", fmt.Errorf("pass exactly one of --task, --phase or --track-wide")
	}
	switch {
	case revertTask != "":
		return core.ScopeTask, revertTask, nil
	case revertPhase != "":
		return core.ScopePhase, revertPhase, nil
	default:
		return core.ScopeTrack, "", nil
	}
}

func init() {
	revertCmd.Flags().StringVar(&revertTask, "task", "", "Revert this task and its dependents")
	revertCmd.Flags().StringVar(&revertPhase, "phase", "", "Revert every task in this phase and their dependents")
	revertCmd.Flags().BoolVar(&revertTrack, "track-wide", false, "Revert the whole track")
	revertCmd.Flags().BoolVar(&revertDeleteArtifacts, "delete-artifacts", false, "Delete target artifacts of reverted tasks")
	revertCmd.Flags().BoolVar(&revertRestoreBaseline, "restore-baseline", false, "Restore target artifacts from the baseline ref")
	revertCmd.Flags().BoolVar(&revertJSON, "json", false, "Output the rollback result as JSON")
	revertCmd.MarkFlagsMutuallyExclusive("task", "phase", "track-wide")
	revertCmd.MarkFlagsMutuallyExclusive("delete-artifacts", "restore-baseline")
	_ = revertCmd.RegisterFlagCompletionFunc("task", completeTaskIDs())
	_ = revertCmd.RegisterFlagCompletionFunc("phase", completePhaseIDs)
	rootCmd.AddCommand(revertCmd)
}

// protectedHint suggests a way around a refused rollback. A protected ref
// only blocks --restore-baseline; a path outside the workspace blocks both
// file options.
func protectedHint(e *core.ProtectedBaselineError) string {
	if e.Ref != "" {
		return "use --delete-artifacts or revert a narrower scope"
	}
	return "fix the task's target_artifacts or revert without --delete-artifacts and --restore-baseline"
}
