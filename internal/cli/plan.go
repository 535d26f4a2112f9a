package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
)

var planCmd = &cobra.Command{
	Use:   "plan <file.yaml>",
	Short: "Create a track from a YAML plan file",
	Long: `Read a plan file, build and validate its dependency graph and persist a
new track. Tasks without an id get a generated one (T-001, T-002, ...).

The track id comes from --track, else the plan's 'track' key, else the
configured default track. Planning fails if the track already exists or the
graph has a cycle, an unknown dependency or a task without exactly one
primary concern.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		doc, err := core.NewPlanFileGenerator(args[0]).Generate(cmd.Context())
		if err != nil {
			return err
		}
		if trackFlag != "" || doc.Track == "" {
			if doc.Track, err = currentTrack(); err != nil {
				return err
			}
		}

		res, err := tm.Plan(cmd.Context(), doc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Planned track %s with %d task(s) in %d phase(s).\n",
			res.Track.ID, len(res.Tasks), len(res.Track.Phases))
		if res.Track.BaselineRef != "" {
			fmt.Fprintf(out, "Baseline: %s\n", res.Track.BaselineRef)
		}
		fmt.Fprintln(out)
		printWaves(out, res.Resolution)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <file.yaml>",
	Short: "Add tasks from a plan file to an existing track",
	Long: `Append the tasks of a plan file to an existing track. Only the 'tasks'
and 'phases' keys are read. The whole graph is revalidated and nothing is
saved if any part of it is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		doc, err := core.NewPlanFileGenerator(args[0]).Generate(cmd.Context())
		if err != nil {
			return err
		}
		trackID := doc.Track
		if trackFlag != "" || trackID == "" {
			if trackID, err = currentTrack(); err != nil {
				return err
			}
		}

		added, err := tm.AddTasks(cmd.Context(), trackID, doc)
		if err != nil {
			return err
		}

		ids := make([]string, len(added))
		for i, t := range added {
			ids[i] = t.ID
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d task(s) to %s: %s\n", len(added), trackID, strings.Join(ids, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(addCmd)
}
