package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

var (
	nextPeek   bool
	checkTasks []string
	checkAll   bool
	checkJSON  bool
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Verify the current task and start the next one",
	Long: `Verify the task in progress against the workspace. If every check passes
it is completed, otherwise it is blocked and the gaps are listed. Tasks
whose dependencies are now complete become ready, and the first ready task
in resolver order is started.

With --peek the verification still runs but the next task is only shown,
not started.`,
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

		res, err := tm.Next(cmd.Context(), trackID, nextPeek)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.Verified != nil {
			printVerification(out, *res.Verified)
			fmt.Fprintln(out)
		}
		switch {
		case res.TrackComplete:
			fmt.Fprintf(out, "Track %s is complete.\n", trackID)
		case res.Next == nil:
			fmt.Fprintln(out, "No task is ready. Resolve blocked or failed tasks first (see 'status').")
		case res.Started:
			fmt.Fprintf(out, "Started %s: %s\n", res.Next.ID, res.Next.Title)
			printTaskTargets(out, *res.Next)
		case res.Next.Status == models.TaskReady:
			fmt.Fprintf(out, "Next: %s: %s\n", res.Next.ID, res.Next.Title)
			printTaskTargets(out, *res.Next)
		default:
			fmt.Fprintf(out, "Still working on %s: %s\n", res.Next.ID, res.Next.Title)
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify tasks without changing their status",
	Long: `Run the verification checks for the given tasks, or for every task with
--all, and print the gaps. Statuses are not changed; results are appended
to the verification log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(checkTasks) == 0 && !checkAll {
			return fmt.Errorf("pass --task ID (repeatable) or --all")
		}
		if len(checkTasks) > 0 && checkAll {
			return fmt.Errorf("--task and --all are mutually exclusive")
		}
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		results, err := tm.Check(cmd.Context(), trackID, checkTasks)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if checkJSON {
			return writeJSON(out, results)
		}
		passed := 0
		for _, r := range results {
			printVerification(out, r)
			if r.Passed {
				passed++
			}
		}
		fmt.Fprintf(out, "\n%d of %d task(s) pass verification.\n", passed, len(results))
		return nil
	},
}

// printVerification prints one verification result with its gaps.
func printVerification(out io.Writer, r models.VerificationResult) {
	verdict := "PASS"
	switch {
	case r.Override:
		verdict = "OVERRIDE"
	case !r.Passed:
		verdict = "GAPS"
	}
	fmt.Fprintf(out, "[%s] %s\n", verdict, r.TaskID)

	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "ok"
		if !r.Checks[name] {
			mark = "--"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, name)
	}
	for _, gap := range r.Gaps {
		fmt.Fprintf(out, "  gap: %s\n", gap)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if r.Reason != "" {
		fmt.Fprintf(out, "  reason: %s\n", r.Reason)
	}
}

// printTaskTargets lists what a task is expected to produce.
func printTaskTargets(out io.Writer, t models.Task) {
	if len(t.TargetArtifacts) > 0 {
		fmt.Fprintf(out, "  artifacts: %s\n", strings.Join(t.TargetArtifacts, ", "))
	}
	for _, c := range t.AcceptanceCriteria {
		fmt.Fprintf(out, "  criterion: %s\n", c)
	}
	if t.Testable {
		fmt.Fprintln(out, "  tests required")
	}
}

func init() {
	nextCmd.Flags().BoolVar(&nextPeek, "peek", false, "Show the next task without starting it")

	checkCmd.Flags().StringSliceVar(&checkTasks, "task", nil, "Task to verify (repeatable)")
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "Verify every task in the track")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output results as JSON")
	_ = checkCmd.RegisterFlagCompletionFunc("task", completeTaskIDs())

	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(checkCmd)
}
