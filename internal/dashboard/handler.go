package dashboard

import (
	"github.com/steveyegge/atlas/internal/queue"
)

// Handler forwards queue outcomes to the dashboard.
type Handler struct {
	server *Server
}

var _ queue.Sink = (*Handler)(nil)

// NewHandler creates a sink broadcasting through server.
func NewHandler(server *Server) *Handler {
	return &Handler{server: server}
}

// Record implements queue.Sink. Successful builds are followed by fresh
// statistics.
func (h *Handler) Record(o queue.Outcome) {
	h.server.BroadcastData(MessageTypeOutcome, o)
	if !o.OK || h.server.stats == nil {
		return
	}
	switch o.Event {
	case queue.SourceChanged, queue.FullRebuild:
		h.server.BroadcastData(MessageTypeStats, h.server.stats())
	}
}
