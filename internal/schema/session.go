package schema

import (
	"fmt"
	"time"
)

// Baseline marks a work unit in flight. Its existence is what allows a
// completion signal to be processed.
type Baseline struct {
	Participant string    `json:"participant"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Group       string    `json:"group,omitempty"`
	Session     string    `json:"session,omitempty"`
}

// Validate checks required fields.
func (b *Baseline) Validate() error {
	if b.Participant == "" {
		return fmt.Errorf("participant is required")
	}
	if b.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	return nil
}

// WorkRecord is the persisted result of one completed work unit.
type WorkRecord struct {
	Participant  string                        `json:"participant"`
	Group        string                        `json:"group,omitempty"`
	Stage        string                        `json:"stage,omitempty"`
	Session      string                        `json:"session,omitempty"`
	StartedAt    time.Time                     `json:"started_at"`
	CompletedAt  time.Time                     `json:"completed_at"`
	FromRevision string                        `json:"from_revision,omitempty"`
	ToRevision   string                        `json:"to_revision,omitempty"`
	Files        []string                      `json:"files,omitempty"`
	Summary      string                        `json:"summary,omitempty"`
	Annotations  map[string]SemanticAnnotation `json:"annotations,omitempty"`
	Degraded     string                        `json:"degraded,omitempty"`
}

// SessionState accumulates counters for one daemon session.
type SessionState struct {
	ID              string         `json:"id"`
	StartedAt       time.Time      `json:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ToolUses        map[string]int `json:"tool_uses,omitempty"`
	ToolFailures    int            `json:"tool_failures"`
	TokensIn        int64          `json:"tokens_in"`
	TokensOut       int64          `json:"tokens_out"`
	EventsProcessed int            `json:"events_processed"`
	WorkCompleted   int            `json:"work_completed"`
}

// RecordToolUse adds one tool invocation to the counters.
func (s *SessionState) RecordToolUse(tool string, failed bool, tokensIn, tokensOut int64) {
	if s.ToolUses == nil {
		s.ToolUses = make(map[string]int)
	}
	if tool != "" {
		s.ToolUses[tool]++
	}
	if failed {
		s.ToolFailures++
	}
	s.TokensIn += tokensIn
	s.TokensOut += tokensOut
}

// DaemonMarker is written to daemon.pid while a daemon is alive.
type DaemonMarker struct {
	PID       int       `json:"pid"`
	SessionID string    `json:"session_id"`
	Socket    string    `json:"socket"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version,omitempty"`
}
