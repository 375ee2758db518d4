// Package schema defines the JSON documents atlas keeps under its state
// directory.
//
// # Index documents
//
// Each module bucket is persisted as index/<module>.json:
//
//	{
//	  "module": "services",
//	  "updated_at": "2026-01-10T07:36:29Z",
//	  "files": {
//	    "src/services/auth.ts": {
//	      "path": "src/services/auth.ts",
//	      "module": "services",
//	      "record": {"language": "typescript", "lines": 120, ...},
//	      "semantic": {"description": "session handling"},
//	      "indexed_at": "2026-01-10T07:36:29Z",
//	      "source_mtime": "2026-01-10T07:30:00Z"
//	    }
//	  }
//	}
//
// index/summary.json carries the aggregate counts, alerts and health score
// of the last Builder run.
//
// # Staging and workflow documents
//
// pending.jsonl holds one PendingAnnotation per line. workflow.json holds
// the WorkflowState. baselines/<participant>.json marks in-flight work and
// is the idempotency guard for completion signals. sessions/<id>.json
// accumulates per-session counters.
//
// All paths stored in these documents are relative to the project root and
// use forward slashes.
package schema
