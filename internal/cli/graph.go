package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
)

var graphJSON bool

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the dependency graph, parallel waves and critical path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		trackID, err := currentTrack()
		if err != nil {
			return err
		}

		report, err := tm.Graph(cmd.Context(), trackID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if graphJSON {
			return writeJSON(out, report)
		}

		fmt.Fprintln(out, headerStyle.Render("Track "+report.TrackID))
		for _, t := range report.Tasks {
			indent := strings.Repeat("  ", t.Level)
			fmt.Fprintf(out, "%s%s [%s] %s\n", indent, t.ID, styleForStatus(string(t.Status)).Render(string(t.Status)), t.Title)
			if len(t.Dependencies) > 0 {
				fmt.Fprintf(out, "%s    after: %s\n", indent, strings.Join(t.Dependencies, ", "))
			}
		}
		fmt.Fprintln(out)
		printWaves(out, report.Resolution)
		return nil
	},
}

// printWaves prints the execution order, the parallel waves and the
// critical path of a resolution.
func printWaves(out io.Writer, res core.Resolution) {
	if len(res.Order) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return
	}
	fmt.Fprintf(out, "Order: %s\n", strings.Join(res.Order, " -> "))
	for i, wave := range res.ParallelGroups {
		fmt.Fprintf(out, "Wave %d: %s\n", i+1, strings.Join(wave, ", "))
	}
	if len(res.CriticalPath) > 0 {
		fmt.Fprintf(out, "Critical path (%d): %s\n", len(res.CriticalPath), strings.Join(res.CriticalPath, " -> "))
	}
}

func init() {
	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "Output the graph as JSON")
	rootCmd.AddCommand(graphCmd)
}
