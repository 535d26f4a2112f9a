package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	tfmcp "github.com/valter-silva-au/trackforge/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the trackforge MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trackforge MCP server on stdio",
	Long: `Start the trackforge MCP server on stdio transport.

The server lets AI coding assistants drive a track: next_task, check_task,
track_status, override_task, revert, search, list_tracks, get_metrics and
get_alerts. Tools default to --track, then defaults.track.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := trackManager()
		if err != nil {
			return err
		}
		defaultTrack := trackFlag
		if defaultTrack == "" {
			defaultTrack = DefaultTrack
		}

		srv := tfmcp.NewServer(tm, MetricsCalc, AlertEngine, defaultTrack, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
