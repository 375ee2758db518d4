// Package vcs gives atlas a narrow, read-only view of the version control
// system hosting the project.
//
// atlas needs three things from version control:
//   - a revision fingerprint taken when a work unit starts
//   - the list of paths changed since that fingerprint when it completes
//   - the last author and message for a path, used to attribute drift
//
// Every caller treats a missing repository or a failing command as
// degradation, never as a fatal error.
//
// # Usage
//
//	v, err := vcs.GetForPath(root)
//	if errors.Is(err, vcs.ErrNotInVCS) {
//	    // continue without attribution
//	}
//	rev, err := v.CurrentRevision(ctx)
//
// # Implementations
//
//   - internal/vcs/git: git CLI
//   - internal/vcs/jj: Jujutsu CLI (also used for colocated repositories)
package vcs

import (
	"context"
	"time"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git-only repository
	TypeGit Type = "git"

	// TypeJJ indicates a jj-only repository (non-colocated)
	TypeJJ Type = "jj"

	// TypeColocate indicates a colocated repository (jj + git together)
	TypeColocate Type = "colocate"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// VCS is the read-only surface atlas uses.
type VCS interface {
	// Name returns the VCS type (git, jj, or colocate)
	Name() Type

	// RepoRoot returns the repository root directory path.
	RepoRoot() (string, error)

	// CurrentRevision returns an identifier for the current state that can
	// later be passed to ChangedPathsSince.
	CurrentRevision(ctx context.Context) (string, error)

	// ChangedPathsSince returns repository-relative, slash-separated paths
	// that differ between rev and the working copy, including files that
	// are new and untracked.
	ChangedPathsSince(ctx context.Context, rev string) ([]string, error)

	// LastChange returns the most recent change touching path, or nil if
	// the path has no history.
	LastChange(ctx context.Context, path string) (*ChangeInfo, error)
}

// ChangeInfo describes one commit or change.
type ChangeInfo struct {
	Revision string    `json:"revision"`
	Author   string    `json:"author"`
	Email    string    `json:"email,omitempty"`
	When     time.Time `json:"when"`
	Message  string    `json:"message"`
}

// DefaultTimeout bounds every VCS command atlas runs.
const DefaultTimeout = 10 * time.Second
