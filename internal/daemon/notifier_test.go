package daemon

import (
	"strings"
	"sync"
	"testing"

	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/store"
)

type fakeQueue struct {
	mu      sync.Mutex
	events  []queue.Event
	stopped bool
}

func (f *fakeQueue) Enqueue(ev queue.Event) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return 0, queue.ErrStopped
	}
	f.events = append(f.events, ev)
	return uint64(len(f.events)), nil
}

func (f *fakeQueue) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeQueue) types() []queue.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queue.Type
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestNotifier_MapsEvents(t *testing.T) {
	tests := []struct {
		params rpc.NotifyParams
		want   queue.Type
	}{
		{rpc.NotifyParams{Event: rpc.NotifyWorkStart, Participant: "a"}, queue.WorkUnitStart},
		{rpc.NotifyParams{Event: rpc.NotifyWorkComplete, Participant: "a"}, queue.WorkUnitComplete},
		{rpc.NotifyParams{Event: rpc.NotifyGroupRegister, Group: "G1", Expected: []string{"a"}}, queue.GroupRegister},
		{rpc.NotifyParams{Event: rpc.NotifyStageStart, Stage: "build"}, queue.StageStart},
		{rpc.NotifyParams{Event: rpc.NotifyStageBlock, Blockers: []string{"review"}}, queue.StageBlock},
		{rpc.NotifyParams{Event: rpc.NotifySourceChanged, Paths: []string{"a.go"}}, queue.SourceChanged},
		{rpc.NotifyParams{Event: rpc.NotifyToolUse, Tool: "edit"}, queue.SessionActivity},
		{rpc.NotifyParams{Event: rpc.NotifyRebuild}, queue.FullRebuild},
		{rpc.NotifyParams{Event: rpc.NotifySessionEnd}, queue.SessionEnd},
	}

	for _, tt := range tests {
		t.Run(tt.params.Event, func(t *testing.T) {
			q := &fakeQueue{}
			n := NewNotifier(q, nil, "s1", quietLogger())
			p := tt.params
			ack := n.Notify(&p)
			if !ack.Accepted || ack.Ignored {
				t.Fatalf("Notify() = %+v, want accepted", ack)
			}
			if ack.Queued != 1 {
				t.Errorf("Queued = %d, want 1", ack.Queued)
			}
			if got := q.types(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("queued %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestNotifier_CarriesPayload(t *testing.T) {
	q := &fakeQueue{}
	n := NewNotifier(q, nil, "s1", quietLogger())

	n.Notify(&rpc.NotifyParams{
		Event:       rpc.NotifyWorkComplete,
		Session:     "s1",
		Participant: "a",
		Paths:       []string{"src/a.ts"},
		Summary:     "done",
		WorkAnnotations: map[string]rpc.NotifyAnnotation{
			"src/a.ts": {Description: "auth entry", Tag: "api"},
		},
	})
	n.Notify(&rpc.NotifyParams{Event: rpc.NotifyToolUse, Tool: "bash", Failed: true, TokensIn: 10, TokensOut: 4})

	if len(q.events) != 2 {
		t.Fatalf("queued %d events, want 2", len(q.events))
	}
	done := q.events[0]
	if done.Participant != "a" || done.Summary != "done" || len(done.Paths) != 1 {
		t.Errorf("work-complete event = %+v", done)
	}
	if a := done.Annotations["src/a.ts"]; a.Description != "auth entry" || a.Tag != "api" {
		t.Errorf("annotation = %+v", a)
	}
	tool := q.events[1]
	if tool.Tool != "bash" || !tool.Failed || tool.TokensIn != 10 || tool.TokensOut != 4 {
		t.Errorf("tool-use event = %+v", tool)
	}
}

func TestNotifier_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params rpc.NotifyParams
		reason string
	}{
		{"unknown event", rpc.NotifyParams{Event: "explode"}, "unknown notify event"},
		{"work-start without participant", rpc.NotifyParams{Event: rpc.NotifyWorkStart}, "requires a participant"},
		{"group-register without group", rpc.NotifyParams{Event: rpc.NotifyGroupRegister}, "requires a group"},
		{"stage-start without stage", rpc.NotifyParams{Event: rpc.NotifyStageStart}, "requires a stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			n := NewNotifier(q, nil, "s1", quietLogger())
			ack := n.Notify(&tt.params)
			if ack.Accepted {
				t.Fatalf("Notify() accepted %+v", tt.params)
			}
			if !strings.Contains(ack.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", ack.Reason, tt.reason)
			}
			if q.Depth() != 0 {
				t.Error("rejected signal was queued")
			}
		})
	}
}

func TestNotifier_StaleSessionIgnored(t *testing.T) {
	q := &fakeQueue{}
	n := NewNotifier(q, nil, "s1", quietLogger())

	ack := n.Notify(&rpc.NotifyParams{Event: rpc.NotifyWorkStart, Session: "old", Participant: "a"})
	if !ack.Accepted || !ack.Ignored {
		t.Fatalf("Notify() = %+v, want accepted and ignored", ack)
	}
	if q.Depth() != 0 {
		t.Error("stale signal was queued")
	}
}

func TestNotifier_RefusesAfterSessionEnd(t *testing.T) {
	q := &fakeQueue{}
	n := NewNotifier(q, nil, "s1", quietLogger())

	if ack := n.Notify(&rpc.NotifyParams{Event: rpc.NotifySessionEnd, Session: "s1"}); !ack.Accepted {
		t.Fatalf("session-end not accepted: %+v", ack)
	}
	ack := n.Notify(&rpc.NotifyParams{Event: rpc.NotifyWorkStart, Participant: "a"})
	if ack.Accepted {
		t.Errorf("Notify() after session-end = %+v, want refused", ack)
	}
	if q.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1", q.Depth())
	}
}

func TestNotifier_StoppedQueue(t *testing.T) {
	q := &fakeQueue{stopped: true}
	n := NewNotifier(q, nil, "s1", quietLogger())

	ack := n.Notify(&rpc.NotifyParams{Event: rpc.NotifyRebuild})
	if ack.Accepted || ack.Reason != "daemon is shutting down" {
		t.Errorf("Notify() = %+v, want shutting-down refusal", ack)
	}
}

func TestNotifier_SourceChangedMarksDirty(t *testing.T) {
	c, err := cache.New(store.New(t.TempDir(), quietLogger()), quietLogger())
	if err != nil {
		t.Fatalf("cache.New() failed: %v", err)
	}
	n := NewNotifier(&fakeQueue{}, c, "s1", quietLogger())

	n.Notify(&rpc.NotifyParams{Event: rpc.NotifySourceChanged, Paths: []string{"src/a.go", "src/b.go"}})
	if got := c.DirtyCount(); got != 2 {
		t.Errorf("DirtyCount() = %d, want 2", got)
	}
}
