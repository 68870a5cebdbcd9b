package connector

import (
	"sync"
	"time"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
)

// ContextState is an OutboundContext's lifecycle state.
type ContextState int

const (
	Pending ContextState = iota
	InFlight
	Answered
	Failed
)

// OutboundContext is one outbound request bundled with the metadata
// needed to correlate and, if necessary, resend it (§3).
type OutboundContext struct {
	ID             string
	Message        gwmessage.Envelope
	CreatedAt      time.Time
	ResendDeadline time.Time
	Attempts       int

	mu       sync.Mutex
	state    ContextState
	result   gwmessage.Envelope
	resultErr error
	awaiter  chan struct{}
}

func newOutboundContext(id string, msg gwmessage.Envelope) *OutboundContext {
	return &OutboundContext{
		ID:        id,
		Message:   msg,
		CreatedAt: time.Now(),
		state:     Pending,
		awaiter:   make(chan struct{}),
	}
}

// State returns the context's current lifecycle state.
func (c *OutboundContext) State() ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the context reaches Answered or Failed, returning the
// server's answer envelope or the terminal error.
func (c *OutboundContext) Wait() (gwmessage.Envelope, error) {
	<-c.awaiter
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.resultErr
}

func (c *OutboundContext) answer(env gwmessage.Envelope) {
	c.mu.Lock()
	if c.state == Answered || c.state == Failed {
		c.mu.Unlock()
		return
	}
	c.state = Answered
	c.result = env
	c.mu.Unlock()
	close(c.awaiter)
}

func (c *OutboundContext) fail(err error) {
	c.mu.Lock()
	if c.state == Answered || c.state == Failed {
		c.mu.Unlock()
		return
	}
	c.state = Failed
	c.resultErr = err
	c.mu.Unlock()
	close(c.awaiter)
}

// OutputQueue is the FIFO of in-progress outbound contexts described in
// §4.8. It is the sender's only source of outbound work besides pings.
type OutputQueue struct {
	mu    sync.Mutex
	items []*OutboundContext
	ready chan struct{}
}

// NewOutputQueue creates an empty queue.
func NewOutputQueue() *OutputQueue {
	return &OutputQueue{ready: make(chan struct{}, 1)}
}

// Enqueue appends ctx and signals any blocked Dequeue.
func (q *OutputQueue) Enqueue(ctx *OutboundContext) {
	q.mu.Lock()
	q.items = append(q.items, ctx)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue pops the oldest context, blocking up to timeout if the queue is
// empty. It returns (nil, false) on timeout.
func (q *OutputQueue) Dequeue(timeout time.Duration) (*OutboundContext, bool) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ctx := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ctx, true
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		select {
		case <-q.ready:
		case <-time.After(remaining):
			return nil, false
		}
	}
}

// Len returns the number of queued, not-yet-sent contexts.
func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every context still waiting to be sent. Used
// on shutdown to fail contexts the sender never got to dequeue — Track'd
// (already-sent) contexts are a separate population, handled by
// ContextPoll.StopAll.
func (q *OutputQueue) Drain() []*OutboundContext {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
