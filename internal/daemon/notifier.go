package daemon

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/schema"
)

// Enqueuer is the part of the event queue the notifier needs.
type Enqueuer interface {
	Enqueue(ev queue.Event) (uint64, error)
	Depth() int
}

// Notifier turns notify requests from signal sources into queue events.
// Signals naming another session are stale and acknowledged without being
// queued. Once session-end is accepted every further signal is refused.
type Notifier struct {
	queue     Enqueuer
	cache     *cache.Cache
	sessionID string
	logger    *log.Logger
	ended     atomic.Bool
}

var _ rpc.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier for sessionID. c may be nil.
func NewNotifier(q Enqueuer, c *cache.Cache, sessionID string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return &Notifier{queue: q, cache: c, sessionID: sessionID, logger: logger}
}

// SessionID returns the daemon's session id.
func (n *Notifier) SessionID() string { return n.sessionID }

// QueueDepth returns the number of events waiting to be processed.
func (n *Notifier) QueueDepth() int { return n.queue.Depth() }

// Notify validates p and enqueues the matching event.
func (n *Notifier) Notify(p *rpc.NotifyParams) rpc.NotifyAck {
	ack := rpc.NotifyAck{Event: p.Event}

	ev, err := toEvent(p)
	if err != nil {
		ack.Reason = err.Error()
		return ack
	}

	if p.Session != "" && p.Session != n.sessionID {
		n.logger.Printf("Ignoring %s from stale session %s (current %s)", p.Event, p.Session, n.sessionID)
		ack.Accepted = true
		ack.Ignored = true
		ack.Reason = fmt.Sprintf("stale session %s", p.Session)
		return ack
	}
	if n.ended.Load() {
		ack.Reason = "session has ended"
		return ack
	}

	if ev.Type == queue.SourceChanged && n.cache != nil {
		n.cache.UpdateFiles(ev.Paths)
	}

	if _, err := n.queue.Enqueue(ev); err != nil {
		if errors.Is(err, queue.ErrStopped) {
			ack.Reason = "daemon is shutting down"
		} else {
			ack.Reason = err.Error()
		}
		return ack
	}
	if ev.Type == queue.SessionEnd {
		n.ended.Store(true)
	}

	ack.Accepted = true
	ack.Queued = n.queue.Depth()
	return ack
}

// toEvent maps a notify request onto a queue event, rejecting requests that
// are missing the fields their event needs.
func toEvent(p *rpc.NotifyParams) (queue.Event, error) {
	ev := queue.Event{
		Participant: p.Participant,
		Group:       p.Group,
		Stage:       p.Stage,
		Session:     p.Session,
		Name:        p.Name,
		Expected:    p.Expected,
		Blockers:    p.Blockers,
		Reason:      p.Reason,
		Paths:       p.Paths,
		Summary:     p.Summary,
	}

	switch p.Event {
	case rpc.NotifyWorkStart:
		ev.Type = queue.WorkUnitStart
	case rpc.NotifyWorkComplete:
		ev.Type = queue.WorkUnitComplete
		if len(p.WorkAnnotations) > 0 {
			ev.Annotations = make(map[string]schema.SemanticAnnotation, len(p.WorkAnnotations))
			for path, a := range p.WorkAnnotations {
				ev.Annotations[path] = schema.SemanticAnnotation{
					Description: a.Description,
					Pattern:     a.Pattern,
					Tag:         a.Tag,
				}
			}
		}
	case rpc.NotifyGroupRegister:
		ev.Type = queue.GroupRegister
	case rpc.NotifyStageStart:
		ev.Type = queue.StageStart
	case rpc.NotifyStageBlock:
		ev.Type = queue.StageBlock
	case rpc.NotifySourceChanged:
		ev.Type = queue.SourceChanged
	case rpc.NotifySessionEnd:
		ev.Type = queue.SessionEnd
	case rpc.NotifyToolUse:
		ev.Type = queue.SessionActivity
		ev.Tool = p.Tool
		ev.Failed = p.Failed
		ev.TokensIn = p.TokensIn
		ev.TokensOut = p.TokensOut
	case rpc.NotifyRebuild:
		ev.Type = queue.FullRebuild
	default:
		return ev, fmt.Errorf("unknown notify event %q", p.Event)
	}

	switch {
	case (ev.Type == queue.WorkUnitStart || ev.Type == queue.WorkUnitComplete) && p.Participant == "":
		return ev, fmt.Errorf("%s requires a participant", p.Event)
	case ev.Type == queue.GroupRegister && p.Group == "":
		return ev, fmt.Errorf("%s requires a group", p.Event)
	case ev.Type == queue.StageStart && p.Stage == "":
		return ev, fmt.Errorf("%s requires a stage", p.Event)
	}
	return ev, nil
}
