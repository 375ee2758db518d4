package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("queue stopped")

// defaultRingSize is how many outcomes Recent can return.
const defaultRingSize = 256

// Handler processes one event and returns a short description of what it
// did.
type Handler interface {
	Handle(ctx context.Context, ev *Event) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *Event) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev *Event) (string, error) {
	return f(ctx, ev)
}

// Sink receives every outcome, on the consumer goroutine.
type Sink interface {
	Record(o Outcome)
}

// Queue is a FIFO event queue with one consumer goroutine.
type Queue struct {
	handler Handler
	logger  *log.Logger

	mu      sync.Mutex
	items   []*Event
	seq     uint64
	busy    bool
	stopped bool
	waiters []chan struct{}
	sinks   []Sink
	ring    []Outcome
	ringPos int

	signal chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a queue that hands events to handler.
func New(handler Handler, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		handler: handler,
		logger:  logger,
		ring:    make([]Outcome, 0, defaultRingSize),
		signal:  make(chan struct{}, 1),
	}
}

// SetHandler replaces the handler. It must be called before Start.
func (q *Queue) SetHandler(h Handler) {
	q.handler = h
}

// AddSink registers a sink for outcomes.
func (q *Queue) AddSink(s Sink) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sinks = append(q.sinks, s)
}

// Start launches the consumer goroutine.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.run(ctx)
}

// Stop halts the consumer after the event in progress. Events still queued
// are discarded; call WaitIdle first to drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	dropped := len(q.items)
	q.items = nil
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
	if dropped > 0 {
		q.logger.Printf("Warning: discarded %d queued event(s) on stop", dropped)
	}
	q.releaseWaiters()
}

// Enqueue appends ev and returns its sequence number. It never blocks.
func (q *Queue) Enqueue(ev Event) (uint64, error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return 0, ErrStopped
	}
	q.seq++
	ev.Seq = q.seq
	if ev.EnqueuedAt.IsZero() {
		ev.EnqueuedAt = time.Now()
	}
	q.items = append(q.items, &ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return ev.Seq, nil
}

// Depth returns the number of queued events, counting one in progress.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.busy {
		n++
	}
	return n
}

// WaitIdle blocks until the queue is empty and no event is in progress,
// including follow-ups enqueued by handlers.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped || (len(q.items) == 0 && !q.busy) {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recent returns up to n of the latest outcomes, oldest first.
func (q *Queue) Recent(n int) []Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	size := len(q.ring)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Outcome, 0, n)
	// ringPos is the oldest entry once the ring is full.
	start := 0
	if size == cap(q.ring) {
		start = q.ringPos
	}
	for i := size - n; i < size; i++ {
		out = append(out, q.ring[(start+i)%size])
	}
	return out
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		if ctx.Err() != nil {
			return
		}
		ev := q.next()
		if ev == nil {
			q.releaseWaiters()
			select {
			case <-ctx.Done():
				return
			case <-q.signal:
			}
			continue
		}
		q.process(ctx, ev)
	}
}

// next pops the head of the queue and marks the consumer busy.
func (q *Queue) next() *Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		q.busy = false
		return nil
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.busy = true
	return ev
}

func (q *Queue) releaseWaiters() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.stopped && (len(q.items) > 0 || q.busy) {
		return
	}
	for _, ch := range q.waiters {
		close(ch)
	}
	q.waiters = nil
}

func (q *Queue) process(ctx context.Context, ev *Event) {
	o := Outcome{
		Seq:         ev.Seq,
		Event:       ev.Type,
		Participant: ev.Participant,
		Group:       ev.Group,
		Stage:       ev.Stage,
		StartedAt:   time.Now(),
	}

	detail, err := q.invoke(ctx, ev)
	o.Duration = time.Since(o.StartedAt)
	o.Detail = detail
	if err != nil {
		o.Error = err.Error()
		q.logger.Printf("Event %d %s failed: %v", ev.Seq, ev.Type, err)
	} else {
		o.OK = true
	}
	q.record(o)
}

func (q *Queue) invoke(ctx context.Context, ev *Event) (detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", ev.Type, r)
			q.logger.Printf("%v\n%s", err, debug.Stack())
		}
	}()
	if q.handler == nil {
		return "", fmt.Errorf("no handler for %s", ev.Type)
	}
	return q.handler.Handle(ctx, ev)
}

func (q *Queue) record(o Outcome) {
	q.mu.Lock()
	if len(q.ring) < cap(q.ring) {
		q.ring = append(q.ring, o)
	} else {
		q.ring[q.ringPos] = o
		q.ringPos = (q.ringPos + 1) % cap(q.ring)
	}
	sinks := append([]Sink(nil), q.sinks...)
	q.mu.Unlock()

	for _, s := range sinks {
		s.Record(o)
	}
}
