// Package queue serializes automation events onto a single consumer.
//
// Enqueue never blocks, so handlers may enqueue follow-up events while they
// run. Events are processed strictly in enqueue order; a failing or
// panicking handler is recorded as a failed Outcome and the loop continues.
package queue

import (
	"time"

	"github.com/steveyegge/atlas/internal/schema"
)

// Type names an event.
type Type string

const (
	WorkUnitStart    Type = "work-unit-start"
	WorkUnitComplete Type = "work-unit-complete"
	GroupComplete    Type = "group-complete"
	StageComplete    Type = "stage-complete"
	SourceChanged    Type = "source-changed"
	SessionEnd       Type = "session-end"

	GroupRegister   Type = "group-register"
	StageStart      Type = "stage-start"
	StageBlock      Type = "stage-block"
	FullRebuild     Type = "full-rebuild"
	SessionActivity Type = "session-activity"
	CacheFlush      Type = "cache-flush"
)

// Event is one unit of work for the consumer. Fields beyond Type are
// interpreted per type.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       Type      `json:"type"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	Participant string   `json:"participant,omitempty"`
	Group       string   `json:"group,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Session     string   `json:"session,omitempty"`
	Name        string   `json:"name,omitempty"`
	Expected    []string `json:"expected,omitempty"`
	Blockers    []string `json:"blockers,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Paths       []string `json:"paths,omitempty"`
	Summary     string   `json:"summary,omitempty"`

	Annotations map[string]schema.SemanticAnnotation `json:"annotations,omitempty"`

	Tool      string `json:"tool,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	TokensIn  int64  `json:"tokens_in,omitempty"`
	TokensOut int64  `json:"tokens_out,omitempty"`
}

// Outcome records how an event was handled.
type Outcome struct {
	Seq         uint64        `json:"seq"`
	Event       Type          `json:"event"`
	Participant string        `json:"participant,omitempty"`
	Group       string        `json:"group,omitempty"`
	Stage       string        `json:"stage,omitempty"`
	OK          bool          `json:"ok"`
	Detail      string        `json:"detail,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}
