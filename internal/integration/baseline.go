// Package integration connects trackforge to external tools. Today that is
// git, which supplies the baseline a rollback can restore files from.
package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitBaseline reads the current git ref of a workspace and restores
// workspace paths to their content at a ref.
type GitBaseline interface {
	CurrentRef(ctx context.Context) (string, error)
	Restore(ctx context.Context, ref string, paths []string) error
}

type gitBaseline struct {
	workDir string
}

// NewGitBaseline creates a GitBaseline for the git work tree at workDir.
func NewGitBaseline(workDir string) GitBaseline {
	return &gitBaseline{workDir: workDir}
}

func (b *gitBaseline) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = b.workDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CurrentRef returns the checked-out branch name, or the commit hash when
// HEAD is detached.
func (b *gitBaseline) CurrentRef(ctx context.Context) (string, error) {
	ref, err := b.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("reading current ref: %w", err)
	}
	if ref != "HEAD" {
		return ref, nil
	}
	sha, err := b.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("reading detached HEAD: %w", err)
	}
	return sha, nil
}

// Restore puts every path back to its content at ref. Paths that did not
// exist at ref are removed from the work tree.
func (b *gitBaseline) Restore(ctx context.Context, ref string, paths []string) error {
	if ref == "" {
		return fmt.Errorf("restore needs a ref")
	}
	if _, err := b.git(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}"); err != nil {
		return fmt.Errorf("unknown ref %s: %w", ref, err)
	}

	var tracked []string
	for _, p := range paths {
		rel, err := b.relative(p)
		if err != nil {
			return err
		}
		if _, err := b.git(ctx, "cat-file", "-e", ref+":./"+filepath.ToSlash(rel)); err != nil {
			if err := os.RemoveAll(filepath.Join(b.workDir, rel)); err != nil {
				return fmt.Errorf("removing %s: %w", rel, err)
			}
			continue
		}
		tracked = append(tracked, rel)
	}
	if len(tracked) == 0 {
		return nil
	}

	args := append([]string{"checkout", ref, "--"}, tracked...)
	if _, err := b.git(ctx, args...); err != nil {
		return fmt.Errorf("restoring from %s: %w", ref, err)
	}
	return nil
}

// relative makes p relative to the work tree and rejects paths outside it.
func (b *gitBaseline) relative(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.workDir, p)
	}
	rel, err := filepath.Rel(b.workDir, p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the work tree", p)
	}
	return rel, nil
}
