package cli

import (
	"context"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

type completionFunc func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)

// completeTaskIDs returns a completion function that lists task IDs of the
// current track, restricted to the given statuses when any are passed.
func completeTaskIDs(statuses ...models.TaskStatus) completionFunc {
	return func(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		report, ok := completionStatus(cmd)
		if !ok {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var ids []string
		for _, task := range report.Tasks {
			if len(statuses) > 0 && !slices.Contains(statuses, task.Status) {
				continue
			}
			if toComplete == "" || strings.HasPrefix(task.ID, toComplete) {
				ids = append(ids, task.ID+"\t"+string(task.Status)+": "+task.Title)
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completePhaseIDs lists the phases of the current track.
func completePhaseIDs(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	report, ok := completionStatus(cmd)
	if !ok {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var ids []string
	for _, p := range report.Track.Phases {
		if toComplete == "" || strings.HasPrefix(p.ID, toComplete) {
			ids = append(ids, p.ID+"\t"+p.Title)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeTrackIDs lists every planned track.
func completeTrackIDs(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Tracks == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	tracks, err := Tracks.ListTracks(completionContext(cmd))
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var ids []string
	for _, t := range tracks {
		if toComplete == "" || strings.HasPrefix(t.ID, toComplete) {
			ids = append(ids, t.ID+"\t"+string(t.Status)+": "+t.Title)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func completionStatus(cmd *cobra.Command) (*core.StatusReport, bool) {
	if Tracks == nil {
		return nil, false
	}
	trackID, err := currentTrack()
	if err != nil {
		return nil, false
	}
	report, err := Tracks.Status(completionContext(cmd), trackID)
	if err != nil {
		return nil, false
	}
	return report, true
}

func completionContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
