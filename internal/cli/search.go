package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit int
	searchJSON  bool
	logTask     string
	logJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over tasks, criteria and gaps of every track",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		hits, err := tm.Search(cmd.Context(), query, searchLimit)
		if err != nil {
			return fmt.Errorf("searching for %q: %w", query, err)
		}

		out := cmd.OutOrStdout()
		if searchJSON {
			return writeJSON(out, hits)
		}
		if len(hits) == 0 {
			fmt.Fprintf(out, "No matches for %q.\n", query)
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(out, "%s/%s (%s) %s\n", h.TrackID, h.Ref, h.Kind, h.Title)
			if h.Snippet != "" {
				fmt.Fprintf(out, "    %s\n", h.Snippet)
			}
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the verification history of a track or task",
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

		results, err := tm.Log(cmd.Context(), trackID, logTask)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if logJSON {
			return writeJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No verifications recorded.")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s  ", r.Timestamp.Format("2006-01-02 15:04:05"))
			printVerification(out, r)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of hits")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output hits as JSON")

	logCmd.Flags().StringVar(&logTask, "task", "", "Only show results for this task")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Output results as JSON")
	_ = logCmd.RegisterFlagCompletionFunc("task", completeTaskIDs())

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(logCmd)
}
