package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// trackFlag is the --track persistent flag shared by every track-scoped
// command.
var trackFlag string

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "trackforge",
	Short: "Task orchestration and verification engine",
	Long: `trackforge turns a plan into a dependency graph of tasks, walks it in a
deterministic order and refuses to mark a task complete until its claimed
artifacts exist in the workspace.

A track is a named unit of work made of phases and tasks. Use 'plan' to
create one from a YAML plan file, 'next' to verify and advance, 'status'
to see progress and 'revert' to roll work back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "trackforge %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&trackFlag, "track", "", "Track id (defaults to defaults.track in .trackconfig)")
	_ = rootCmd.RegisterFlagCompletionFunc("track", completeTrackIDs)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// trackManager returns the wired engine or an error when the app did not
// initialize it.
func trackManager() (core.TrackManager, error) {
	if Tracks == nil {
		return nil, fmt.Errorf("track manager not initialized")
	}
	return Tracks, nil
}

// currentTrack resolves the track a command operates on: --track, then the
// configured default.
func currentTrack() (string, error) {
	if trackFlag != "" {
		return trackFlag, nil
	}
	if DefaultTrack != "" {
		return DefaultTrack, nil
	}
	return "", fmt.Errorf("no track selected: pass --track or set defaults.track in .trackconfig")
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
