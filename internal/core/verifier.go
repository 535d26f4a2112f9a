package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/trackforge/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Verification defaults.
const (
	DefaultMinArtifactBytes = 16
	DefaultVerifyWorkers    = 4
)

// DefaultTestPatterns are the globs tests_present looks for.
var DefaultTestPatterns = []string{
	"**/*_test.go",
	"**/test_*.py",
	"**/*.test.ts",
	"**/*.spec.ts",
}

// VerifierOptions configures a Verifier.
type VerifierOptions struct {
	WorkspaceRoot    string
	MinArtifactBytes int
	TestPatterns     []string
	CriteriaBlocking bool
	Workers          int
	Now              func() time.Time
	NewID            func() string
}

// Verifier checks a task's claims against the workspace. It never writes to
// the workspace. Gaps are data in the result; the error return is reserved
// for cancellation and unexpected I/O.
type Verifier interface {
	Verify(ctx context.Context, task models.Task) (models.VerificationResult, error)
	VerifyAll(ctx context.Context, tasks []models.Task) ([]models.VerificationResult, error)
}

type fsVerifier struct {
	opts VerifierOptions
}

// NewVerifier creates a Verifier. Zero option values fall back to the
// package defaults.
func NewVerifier(opts VerifierOptions) Verifier {
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = "."
	}
	if opts.MinArtifactBytes <= 0 {
		opts.MinArtifactBytes = DefaultMinArtifactBytes
	}
	if len(opts.TestPatterns) == 0 {
		opts.TestPatterns = DefaultTestPatterns
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultVerifyWorkers
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &fsVerifier{opts: opts}
}

func (v *fsVerifier) Verify(ctx context.Context, task models.Task) (models.VerificationResult, error) {
	result := models.VerificationResult{
		TaskID: task.ID,
		Checks: make(map[string]bool, 4),
		Gaps:   []string{},
	}
	root := v.opts.WorkspaceRoot

	// 1. artifacts_exist
	existing := make([]string, 0, len(task.TargetArtifacts))
	result.Checks[models.CheckArtifactsExist] = true
	for _, artifact := range task.TargetArtifacts {
		if err := ctx.Err(); err != nil {
			return models.VerificationResult{}, err
		}
		_, err := os.Stat(resolvePath(root, artifact))
		switch {
		case err == nil:
			existing = append(existing, artifact)
		case errors.Is(err, os.ErrNotExist):
			result.Checks[models.CheckArtifactsExist] = false
			result.Gaps = append(result.Gaps, "missing: "+artifact)
		default:
			return models.VerificationResult{}, fmt.Errorf("checking artifact %s: %w", artifact, err)
		}
	}

	// 2. artifacts_nontrivial
	result.Checks[models.CheckArtifactsNontrivial] = true
	for _, artifact := range existing {
		if err := ctx.Err(); err != nil {
			return models.VerificationResult{}, err
		}
		n, err := contentSize(resolvePath(root, artifact), v.opts.MinArtifactBytes)
		if err != nil {
			return models.VerificationResult{}, fmt.Errorf("measuring artifact %s: %w", artifact, err)
		}
		if n < v.opts.MinArtifactBytes {
			result.Checks[models.CheckArtifactsNontrivial] = false
			result.Gaps = append(result.Gaps, fmt.Sprintf("trivial: %s (%d bytes)", artifact, n))
		}
	}

	// 3. tests_present
	if err := ctx.Err(); err != nil {
		return models.VerificationResult{}, err
	}
	testsOK := true
	if task.Testable {
		found, err := v.testsPresent(ctx, task)
		if err != nil {
			return models.VerificationResult{}, err
		}
		if !found {
			testsOK = false
			result.Gaps = append(result.Gaps, "no tests found for task "+task.ID)
		}
	}
	result.Checks[models.CheckTestsPresent] = testsOK

	// 4. acceptance_criteria
	criteriaOK := true
	for _, raw := range task.AcceptanceCriteria {
		if err := ctx.Err(); err != nil {
			return models.VerificationResult{}, err
		}
		c, ok := parseCriterion(raw)
		if !ok {
			result.Warnings = append(result.Warnings, "unverifiable: "+raw)
			continue
		}
		met, err := c.evaluate(root)
		if err != nil {
			return models.VerificationResult{}, fmt.Errorf("evaluating criterion %q: %w", raw, err)
		}
		if !met {
			criteriaOK = false
			result.Gaps = append(result.Gaps, "criterion not met: "+raw)
		}
	}
	result.Checks[models.CheckAcceptanceCriteria] = criteriaOK

	result.Passed = result.Checks[models.CheckArtifactsExist] &&
		result.Checks[models.CheckArtifactsNontrivial] &&
		result.Checks[models.CheckTestsPresent] &&
		(criteriaOK || !v.opts.CriteriaBlocking)

	result.ID = v.opts.NewID()
	result.Timestamp = v.opts.Now()
	return result, nil
}

// testsPresent looks for a test file under the directory of any target
// artifact, or anywhere in the workspace when the task names no artifacts.
func (v *fsVerifier) testsPresent(ctx context.Context, task models.Task) (bool, error) {
	root := v.opts.WorkspaceRoot
	dirs := []string{root}
	if len(task.TargetArtifacts) > 0 {
		dirs = dirs[:0]
		seen := make(map[string]bool)
		for _, artifact := range task.TargetArtifacts {
			p := resolvePath(root, artifact)
			dir := filepath.Dir(p)
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				dir = p
			}
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}

	for _, dir := range dirs {
		for _, pattern := range v.opts.TestPatterns {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			found, err := anyMatch(dir, pattern)
			if err != nil {
				return false, err
			}
			if found {
				return true, nil
			}
		}
	}
	return false, nil
}

// contentSize measures an artifact: non-whitespace bytes for a file, entry
// count for a directory. Counting stops once limit is reached.
func contentSize(path string, limit int) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return 0, err
		}
		return len(entries), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	n := 0
	for n < limit {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		switch b {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			n++
		}
	}
	return n, nil
}

// VerifyAll verifies tasks concurrently on a bounded pool. Tasks whose
// target artifacts overlap share a worker and run one after another.
// Results come back in input order.
func (v *fsVerifier) VerifyAll(ctx context.Context, tasks []models.Task) ([]models.VerificationResult, error) {
	results := make([]models.VerificationResult, len(tasks))
	groups := overlapGroups(tasks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)
	for _, group := range groups {
		g.Go(func() error {
			for _, i := range group {
				r, err := v.Verify(gctx, tasks[i])
				if err != nil {
					return fmt.Errorf("verifying task %s: %w", tasks[i].ID, err)
				}
				results[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// overlapGroups partitions task indices so that tasks with overlapping
// target artifacts land in the same group. Groups and their members keep
// input order.
func overlapGroups(tasks []models.Task) [][]int {
	parent := make([]int, len(tasks))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range tasks {
		for j := i + 1; j < len(tasks); j++ {
			if artifactsOverlap(tasks[i].TargetArtifacts, tasks[j].TargetArtifacts) {
				ri, rj := find(i), find(j)
				if ri != rj {
					if rj < ri {
						ri, rj = rj, ri
					}
					parent[rj] = ri
				}
			}
		}
	}

	byRoot := make(map[int]int)
	var groups [][]int
	for i := range tasks {
		r := find(i)
		k, ok := byRoot[r]
		if !ok {
			k = len(groups)
			byRoot[r] = k
			groups = append(groups, nil)
		}
		groups[k] = append(groups[k], i)
	}
	return groups
}

func artifactsOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if pathsOverlap(x, y) {
				return true
			}
		}
	}
	return false
}
