package indexer

import "context"

// Indexer runs full and incremental index builds. The daemon's event
// handlers depend on this interface rather than on Builder.
type Indexer interface {
	// Rebuild re-indexes every source file and rewrites every document.
	Rebuild(ctx context.Context) (*Result, error)

	// Update re-indexes the changed paths plus any staged or drifted paths.
	// Paths may be absolute or root-relative.
	Update(ctx context.Context, changed []string) (*Result, error)
}

var _ Indexer = (*Builder)(nil)
