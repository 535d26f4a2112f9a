package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tracksJSON bool

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "List every planned track",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		tracks, err := tm.ListTracks(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if tracksJSON {
			return writeJSON(out, tracks)
		}
		if len(tracks) == 0 {
			fmt.Fprintln(out, "No tracks planned yet. Run 'trackforge plan <file.yaml>'.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TRACK\tSTATUS\tDONE\tUPDATED\tTITLE")
		for _, t := range tracks {
			marker := ""
			if t.ID == DefaultTrack {
				marker = "*"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%d/%d\t%s\t%s\n",
				t.ID, marker, t.Status, t.Completed, t.Total, t.Updated.Format("2006-01-02 15:04"), t.Title)
		}
		return w.Flush()
	},
}

func init() {
	tracksCmd.Flags().BoolVar(&tracksJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(tracksCmd)
}
