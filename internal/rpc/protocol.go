// Package rpc is the daemon's query protocol: one JSON object per line over
// a unix socket.
//
// Each request is {"method": ..., "params": {...}} and receives exactly one
// response line holding either the result fields or {"error": "..."}.
//
//	→ {"method":"find","params":{"keyword":"login"}}
//	← {"keyword":"login","hits":[{"type":"method","name":"AuthController.handleLogin",...}]}
package rpc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/steveyegge/atlas/internal/cache"
)

// Methods.
const (
	MethodFind   = "find"
	MethodScope  = "scope"
	MethodStatus = "status"
	MethodNotify = "notify"
)

var (
	// ErrUnknownMethod is returned for methods outside the protocol.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrBadParams is returned when params do not decode for the method.
	ErrBadParams = errors.New("invalid params")

	// ErrUnreachable is returned by the client when no daemon answers.
	ErrUnreachable = errors.New("daemon unreachable")
)

// Request is one request line.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorResponse is the response line for a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FindParams are the params of find.
type FindParams struct {
	Keyword string `json:"keyword"`
}

// FindResult is the result of find.
type FindResult struct {
	Keyword string      `json:"keyword"`
	Hits    []cache.Hit `json:"hits"`
}

// ScopeParams are the params of scope.
type ScopeParams struct {
	Paths []string `json:"paths"`
}

// ScopeResult is the result of scope.
type ScopeResult struct {
	Files []cache.FileScope `json:"files"`
}

// StatusResult is the result of status.
type StatusResult struct {
	cache.Stats
	Session    string    `json:"session,omitempty"`
	QueueDepth int       `json:"queue_depth"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Source     string    `json:"source"` // daemon or disk
}

// NotifyParams are the params of notify. Which fields matter depends on
// Event.
type NotifyParams struct {
	Event       string   `json:"event"`
	Session     string   `json:"session,omitempty"`
	Participant string   `json:"participant,omitempty"`
	Group       string   `json:"group,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Name        string   `json:"name,omitempty"`
	Expected    []string `json:"expected,omitempty"`
	Blockers    []string `json:"blockers,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Paths       []string `json:"paths,omitempty"`
	Summary     string   `json:"summary,omitempty"`

	// WorkAnnotations are staged as work-derived annotations when the work
	// unit completes, keyed by path.
	WorkAnnotations map[string]NotifyAnnotation `json:"annotations,omitempty"`

	// tool-use counters
	Tool      string `json:"tool,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	TokensIn  int64  `json:"tokens_in,omitempty"`
	TokensOut int64  `json:"tokens_out,omitempty"`
}

// NotifyAnnotation is an annotation carried by a work-complete signal.
type NotifyAnnotation struct {
	Description string `json:"description,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

// NotifyAck acknowledges a notify request. Ignored signals are accepted
// but not queued.
type NotifyAck struct {
	Accepted bool   `json:"accepted"`
	Event    string `json:"event"`
	Queued   int    `json:"queued"`
	Ignored  bool   `json:"ignored,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Notify event names accepted from signal sources.
const (
	NotifyWorkStart     = "work-start"
	NotifyWorkComplete  = "work-complete"
	NotifyGroupRegister = "group-register"
	NotifyStageStart    = "stage-start"
	NotifyStageBlock    = "stage-block"
	NotifySourceChanged = "source-changed"
	NotifySessionEnd    = "session-end"
	NotifyToolUse       = "tool-use"
	NotifyRebuild       = "rebuild"
)

// NotifyEvents lists every accepted notify event name.
var NotifyEvents = []string{
	NotifyWorkStart,
	NotifyWorkComplete,
	NotifyGroupRegister,
	NotifyStageStart,
	NotifyStageBlock,
	NotifySourceChanged,
	NotifySessionEnd,
	NotifyToolUse,
	NotifyRebuild,
}
