package vcs

import "errors"

// Common errors returned by VCS operations.
//
//	if errors.Is(err, vcs.ErrNotInVCS) {
//	    // Handle case where we're outside any VCS repository
//	}
var (
	// ErrNotInVCS is returned when no repository contains the path.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the required VCS binary
	// (git or jj) is not installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrUnknownRevision is returned when a fingerprint no longer resolves,
	// for example after history was rewritten.
	ErrUnknownRevision = errors.New("unknown revision")

	// ErrNoHistory is returned when the repository has no commits yet.
	ErrNoHistory = errors.New("repository has no history")

	// ErrTimeout is returned when a VCS command exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsFatal returns true if no VCS operation can succeed for this project,
// so callers should stop asking and degrade for the rest of the session.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInVCS) || errors.Is(err, ErrVCSNotAvailable)
}
