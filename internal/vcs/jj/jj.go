// Package jj implements the vcs.VCS interface for Jujutsu (jj).
//
// jj snapshots the working copy on every command, so the working-copy
// commit id is a usable fingerprint: diffing from it later shows exactly
// what changed in between.
package jj

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/atlas/internal/vcs"
)

// fieldSeparator is used in jj templates; jj string literals support \t.
const fieldSeparator = "\t"

const changeTemplate = `commit_id ++ "\t" ++ author.name() ++ "\t" ++ author.email() ++ "\t" ++ ` +
	`author.timestamp().format("%Y-%m-%dT%H:%M:%S%:z") ++ "\t" ++ description.first_line() ++ "\n"`

// JJ implements vcs.VCS for Jujutsu repositories.
type JJ struct {
	// repoRoot is the repository root directory
	repoRoot string

	// isColocated indicates if this is a colocated repo (.jj + .git)
	isColocated bool
}

// New creates a JJ instance for the given repository root.
// The repository must already be initialized with jj (have a .jj directory).
func New(repoRoot string) (*JJ, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	if _, err := os.Stat(filepath.Join(absRoot, ".jj")); err != nil {
		return nil, vcs.ErrNotInVCS
	}
	_, gitErr := os.Stat(filepath.Join(absRoot, ".git"))

	return &JJ{
		repoRoot:    absRoot,
		isColocated: gitErr == nil,
	}, nil
}

// Name returns "jj" for non-colocated repos, "colocate" for colocated repos.
func (j *JJ) Name() vcs.Type {
	if j.isColocated {
		return vcs.TypeColocate
	}
	return vcs.TypeJJ
}

// RepoRoot returns the repository root directory.
func (j *JJ) RepoRoot() (string, error) {
	return j.repoRoot, nil
}

func (j *JJ) run(ctx context.Context, args ...string) ([]byte, error) {
	args = append([]string{"--no-pager", "--color=never"}, args...)
	return vcs.ExecContext(ctx, vcs.DefaultTimeout, j.repoRoot, "jj", args...)
}

// CurrentRevision returns the commit id of the working-copy change.
func (j *JJ) CurrentRevision(ctx context.Context) (string, error) {
	output, err := j.run(ctx, "log", "-r", "@", "--no-graph", "-T", "commit_id")
	if err != nil {
		return "", err
	}
	rev := strings.TrimSpace(string(output))
	if rev == "" {
		return "", vcs.ErrNoHistory
	}
	return rev, nil
}

// ChangedPathsSince lists paths that differ between rev and the working copy.
// jj tracks new files automatically, so no separate untracked listing is needed.
func (j *JJ) ChangedPathsSince(ctx context.Context, rev string) ([]string, error) {
	if rev == "" {
		return nil, vcs.ErrUnknownRevision
	}
	output, err := j.run(ctx, "diff", "--from", rev, "--to", "@", "--name-only")
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%s: %w", rev, vcs.ErrUnknownRevision)
		}
		return nil, err
	}
	return vcs.MergePaths(vcs.ParseLines(output)), nil
}

// LastChange returns the latest ancestor of @ touching path.
func (j *JJ) LastChange(ctx context.Context, path string) (*vcs.ChangeInfo, error) {
	revset := fmt.Sprintf("latest(::@ & files(%q))", path)
	output, err := j.run(ctx, "log", "-r", revset, "--no-graph", "-T", changeTemplate)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(output))
	if line == "" {
		return nil, nil
	}
	return vcs.ParseChangeLine(line, fieldSeparator)
}
