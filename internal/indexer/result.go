package indexer

import (
	"fmt"

	"github.com/steveyegge/atlas/internal/schema"
)

// SkipError records a file that was not indexed in a pass.
type SkipError struct {
	Path string
	Err  error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped %s: %v", e.Path, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// Result describes what a build run changed.
type Result struct {
	// Summary is the summary written by the run, or the last one on disk
	// for a no-op run.
	Summary *schema.Summary

	// Modules holds every module document the run wrote. A full run
	// writes all of them.
	Modules map[string]*schema.ModuleIndex

	// RemovedModules lists module documents that were deleted.
	RemovedModules []string

	// Touched lists re-indexed paths; Removed lists paths dropped from the
	// index.
	Touched []string
	Removed []string

	Skipped []*SkipError

	// Full is set for Rebuild results; the cache replaces its snapshot.
	Full bool

	// NoOp is set when nothing needed indexing and nothing was written.
	NoOp bool

	// Annotations counts pending entries consumed.
	Annotations int
}

// Changed reports whether the run wrote anything.
func (r *Result) Changed() bool {
	return !r.NoOp && (len(r.Modules) > 0 || len(r.RemovedModules) > 0)
}
