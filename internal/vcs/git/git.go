// Package git provides a git implementation of the vcs.VCS interface.
package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/atlas/internal/vcs"
)

// logFormat renders one commit as fields separated by vcs.FieldSeparator.
const logFormat = "--format=%H%x1f%an%x1f%ae%x1f%aI%x1f%s"

// Git implements vcs.VCS for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string
}

// New creates a Git instance for the repository containing path.
func New(path string) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	output, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, absPath, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, vcs.ErrNotInVCS
	}
	root := strings.TrimSpace(string(output))
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Git{repoRoot: filepath.FromSlash(root)}, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, vcs.DefaultTimeout, g.repoRoot, "git", args...)
}

// CurrentRevision returns the HEAD commit hash.
func (g *Git) CurrentRevision(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: %v", vcs.ErrNoHistory, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ChangedPathsSince lists paths that differ between rev and the working
// tree (committed, staged and unstaged), plus untracked files.
func (g *Git) ChangedPathsSince(ctx context.Context, rev string) ([]string, error) {
	if rev == "" {
		return nil, vcs.ErrUnknownRevision
	}
	if _, err := g.run(ctx, "cat-file", "-e", rev+"^{commit}"); err != nil {
		return nil, fmt.Errorf("%s: %w", rev, vcs.ErrUnknownRevision)
	}

	diff, err := g.run(ctx, "diff", "--name-only", "--no-renames", rev, "--")
	if err != nil {
		return nil, err
	}
	untracked, err := g.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return vcs.MergePaths(vcs.ParseLines(diff), vcs.ParseLines(untracked)), nil
}

// LastChange returns the latest commit touching path.
func (g *Git) LastChange(ctx context.Context, path string) (*vcs.ChangeInfo, error) {
	output, err := g.run(ctx, "log", "-1", logFormat, "--", path)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(output))
	if line == "" {
		return nil, nil
	}
	return vcs.ParseChangeLine(line, vcs.FieldSeparator)
}
