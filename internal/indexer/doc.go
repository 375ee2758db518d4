// Package indexer builds and incrementally maintains the structural index.
//
// # Overview
//
// The Builder turns source files into ModuleIndex documents:
//
//	source tree ──discover──▶ paths ──parser (N workers)──▶ StructuralRecords
//	                                                              │
//	pending.jsonl ──────────────────────annotations──────────────▶│
//	                                                              ▼
//	                                        index/<module>.json + index/summary.json
//
// A full run (Rebuild) re-parses everything and rewrites every document.
// An incremental run (Update) touches only the changed paths, the paths named
// by staged annotations and the paths the drift detector reports, and
// rewrites only the module documents that changed.
//
// # Annotation precedence
//
// Annotations are merged field by field: direct staging wins over
// work-derived staging, which wins over whatever the entry already carried.
//
// # Error handling
//
// The Builder is resilient to individual file failures:
//
//   - Files with unsupported extensions are ignored
//   - Files that fail to parse are logged and skipped for this pass
//   - Store errors are returned to the caller
//
// # Usage
//
//	b, err := indexer.New(cfg, st, parser.New(), detector, logger)
//	if err != nil {
//	    return err
//	}
//	res, err := b.Update(ctx, []string{"src/services/auth.ts"})
//	if err != nil {
//	    return err
//	}
//	cache.Refresh(res)
package indexer
