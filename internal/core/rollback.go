package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// RollbackScope selects what a rollback targets.
type RollbackScope string

const (
	ScopeTask  RollbackScope = "task"
	ScopePhase RollbackScope = "phase"
	ScopeTrack RollbackScope = "track"
)

// DefaultProtectedRefs are baseline refs a track-wide restore refuses to use.
var DefaultProtectedRefs = []string{"main", "master"}

// RollbackOptions widens a rollback beyond the default state-only reset.
type RollbackOptions struct {
	DeleteArtifacts bool
	RestoreBaseline bool
}

// RollbackResult describes an applied rollback.
type RollbackResult struct {
	TrackID     string       `json:"track_id"`
	Scope       string       `json:"scope"`
	Target      string       `json:"target"`
	Affected    []string     `json:"affected"`
	Transitions []Transition `json:"transitions"`
	Deleted     []string     `json:"deleted,omitempty"`
	Restored    []string     `json:"restored,omitempty"`
	BaselineRef string       `json:"baseline_ref,omitempty"`
}

// RollbackConfig bounds what a rollback may touch outside the track state.
type RollbackConfig struct {
	WorkspaceRoot string
	ProtectedRefs []string
	Now           func() time.Time
}

// RollbackManager reverts tasks, and everything that depends on them, to
// pending.
type RollbackManager interface {
	Rollback(ctx context.Context, trackID string, scope RollbackScope, id string, opts RollbackOptions) (*RollbackResult, error)
	CleanupArtifacts(ctx context.Context, trackID string, taskIDs []string) ([]string, error)
}

type rollbackManager struct {
	store    TrackStore
	builder  GraphBuilder
	resolver Resolver
	sm       StateMachine
	restorer BaselineRestorer
	cfg      RollbackConfig
}

// NewRollbackManager creates a RollbackManager. restorer may be nil, in
// which case baseline restores are refused.
func NewRollbackManager(store TrackStore, builder GraphBuilder, resolver Resolver, sm StateMachine, restorer BaselineRestorer, cfg RollbackConfig) RollbackManager {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "."
	}
	if cfg.ProtectedRefs == nil {
		cfg.ProtectedRefs = DefaultProtectedRefs
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &rollbackManager{
		store:    store,
		builder:  builder,
		resolver: resolver,
		sm:       sm,
		restorer: restorer,
		cfg:      cfg,
	}
}

func (rm *rollbackManager) Rollback(ctx context.Context, trackID string, scope RollbackScope, id string, opts RollbackOptions) (*RollbackResult, error) {
	result := &RollbackResult{TrackID: trackID, Scope: string(scope), Target: id}
	var artifacts []string

	err := rm.store.Update(ctx, trackID, func(tx *TrackTx) error {
		g, err := buildTaskGraph(rm.builder, tx.Tasks)
		if err != nil {
			return fmt.Errorf("rebuilding graph: %w", err)
		}

		targets, err := rollbackTargets(tx, scope, id)
		if err != nil {
			return err
		}
		affected := rm.resolver.Impact(g, targets)
		artifacts = artifactsOf(tx.Tasks, affected)

		if err := rm.checkSafe(tx.Track, scope, opts, artifacts); err != nil {
			return err
		}

		for _, taskID := range affected {
			tr, err := rm.sm.Apply(tx.Tasks, taskID, EventReset)
			if err != nil {
				return err
			}
			result.Transitions = append(result.Transitions, tr)
		}
		result.Affected = affected
		result.BaselineRef = tx.Track.BaselineRef

		res, err := rm.resolver.Resolve(g)
		if err != nil {
			return err
		}
		refreshTrack(tx, rm.cfg.Now(), res.Order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.DeleteArtifacts {
		deleted, err := removeArtifacts(rm.cfg.WorkspaceRoot, artifacts)
		result.Deleted = deleted
		if err != nil {
			return result, fmt.Errorf("deleting artifacts: %w", err)
		}
	}
	if opts.RestoreBaseline && len(artifacts) > 0 {
		if err := rm.restorer.Restore(ctx, result.BaselineRef, artifacts); err != nil {
			return result, fmt.Errorf("restoring baseline %s: %w", result.BaselineRef, err)
		}
		result.Restored = artifacts
	}
	return result, nil
}

func rollbackTargets(tx *TrackTx, scope RollbackScope, id string) ([]string, error) {
	switch scope {
	case ScopeTask:
		if taskIndex(tx.Tasks, id) < 0 {
			return nil, &TaskNotFoundError{TrackID: tx.Track.ID, TaskID: id}
		}
		return []string{id}, nil
	case ScopePhase:
		ph := tx.Track.PhaseByID(id)
		if ph == nil {
			return nil, &PhaseNotFoundError{TrackID: tx.Track.ID, PhaseID: id}
		}
		return ph.TaskIDs, nil
	case ScopeTrack:
		return tx.Track.TaskOrder, nil
	}
	return nil, fmt.Errorf("unknown rollback scope %q", scope)
}

// checkSafe refuses a rollback that would reach beyond the managed scope.
// It runs before any state changes.
func (rm *rollbackManager) checkSafe(track models.Track, scope RollbackScope, opts RollbackOptions, artifacts []string) error {
	if opts.RestoreBaseline {
		if rm.restorer == nil {
			return errors.New("baseline restore is not available")
		}
		if track.BaselineRef == "" {
			return fmt.Errorf("track %s has no baseline reference to restore", track.ID)
		}
		if scope == ScopeTrack && rm.isProtected(track.BaselineRef) {
			return &ProtectedBaselineError{
				Ref:    track.BaselineRef,
				Reason: "restoring the whole track onto it would revert work outside this track",
			}
		}
	}
	if opts.DeleteArtifacts || opts.RestoreBaseline {
		if err := checkArtifactsInside(rm.cfg.WorkspaceRoot, artifacts); err != nil {
			return err
		}
	}
	return nil
}

func (rm *rollbackManager) isProtected(ref string) bool {
	ref = strings.TrimPrefix(ref, "refs/heads/")
	for _, p := range rm.cfg.ProtectedRefs {
		if ref == p {
			return true
		}
	}
	return false
}

func checkArtifactsInside(root string, artifacts []string) error {
	for _, a := range artifacts {
		if !insideRoot(root, a) || samePath(root, a) {
			return &ProtectedBaselineError{Path: a, Reason: "refusing to touch files outside the workspace root"}
		}
	}
	return nil
}

func samePath(root, p string) bool {
	return resolvePath(root, p) == resolvePath(root, ".")
}

// CleanupArtifacts deletes the target artifacts of pending tasks. It is the
// explicit follow-up to a state-only rollback.
func (rm *rollbackManager) CleanupArtifacts(ctx context.Context, trackID string, taskIDs []string) ([]string, error) {
	_, tasks, err := rm.store.Load(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("loading track %s: %w", trackID, err)
	}
	for _, id := range taskIDs {
		i := taskIndex(tasks, id)
		if i < 0 {
			return nil, &TaskNotFoundError{TrackID: trackID, TaskID: id}
		}
		if tasks[i].Status != models.TaskPending {
			return nil, fmt.Errorf("task %s is %s; revert it before cleaning up its artifacts", id, tasks[i].Status)
		}
	}

	artifacts := artifactsOf(tasks, taskIDs)
	if err := checkArtifactsInside(rm.cfg.WorkspaceRoot, artifacts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return removeArtifacts(rm.cfg.WorkspaceRoot, artifacts)
}

// artifactsOf lists the distinct target artifacts of ids, in id order.
func artifactsOf(tasks []models.Task, ids []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		i := taskIndex(tasks, id)
		if i < 0 {
			continue
		}
		for _, a := range tasks[i].TargetArtifacts {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// removeArtifacts deletes the artifacts that exist and returns those it
// removed.
func removeArtifacts(root string, artifacts []string) ([]string, error) {
	var removed []string
	for _, a := range artifacts {
		p := resolvePath(root, a)
		if _, err := os.Lstat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("removing %s: %w", a, err)
		}
		removed = append(removed, a)
	}
	return removed, nil
}

// refreshTrack recomputes the derived track fields after a mutation. order
// is the resolver order of the track's tasks.
func refreshTrack(tx *TrackTx, now time.Time, order []string) {
	tx.Track.Status = models.DeriveTrackStatus(tx.Tasks)
	tx.Track.UpdatedAt = now
	tx.Track.CurrentPhase = currentPhase(tx.Track, firstActive(tx.Tasks, order))
}
