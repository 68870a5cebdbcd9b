package connector

import (
	"sync"
	"time"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
)

const pollTickInterval = 100 * time.Millisecond

// ContextPoll is the request-id → pending-context correlation table
// described in §4.9: on send, the sender inserts the context with a
// resend deadline; on deadline expiry it is resent up to maxAttempts,
// then failed; on a matching server answer it is completed and removed.
type ContextPoll struct {
	mu      sync.Mutex
	entries map[string]*OutboundContext

	resendTimeout time.Duration
	maxAttempts   int
	queue         *OutputQueue
	logger        *logging.Logger

	stop chan struct{}
	done chan struct{}
}

// NewContextPoll creates a poll that resends through queue.
func NewContextPoll(queue *OutputQueue, resendTimeout time.Duration, maxAttempts int, logger *logging.Logger) *ContextPoll {
	if logger == nil {
		logger = logging.Default()
	}
	p := &ContextPoll{
		entries:       make(map[string]*OutboundContext),
		resendTimeout: resendTimeout,
		maxAttempts:   maxAttempts,
		queue:         queue,
		logger:        logger.With("component", "contextpoll"),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go p.run()
	return p
}

// Track registers ctx as in flight, starting its resend deadline.
func (p *ContextPoll) Track(ctx *OutboundContext) {
	ctx.mu.Lock()
	ctx.state = InFlight
	ctx.Attempts++
	ctx.ResendDeadline = time.Now().Add(p.resendTimeout)
	ctx.mu.Unlock()

	p.mu.Lock()
	p.entries[ctx.ID] = ctx
	p.mu.Unlock()
}

// Complete answers the pending context for requestID, if any, and removes
// it from the poll. An answer with no matching pending context is logged
// and dropped (§4.9).
func (p *ContextPoll) Complete(requestID string, env gwmessage.Envelope) {
	p.mu.Lock()
	ctx, ok := p.entries[requestID]
	if ok {
		delete(p.entries, requestID)
	}
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("answer for unknown request id", "request_id", requestID)
		return
	}
	ctx.answer(env)
}

// Len returns the number of in-flight contexts.
func (p *ContextPoll) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// StopAll fails every in-flight context with err and empties the poll.
// Used when the connector is stopped (§5 cancellation).
func (p *ContextPoll) StopAll(err error) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*OutboundContext)
	p.mu.Unlock()

	for _, ctx := range entries {
		ctx.fail(err)
	}
}

// Close stops the deadline-checking goroutine.
func (p *ContextPoll) Close() {
	close(p.stop)
	<-p.done
}

func (p *ContextPoll) run() {
	defer close(p.done)
	ticker := time.NewTicker(pollTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.checkDeadlines()
		}
	}
}

func (p *ContextPoll) checkDeadlines() {
	now := time.Now()

	var expired []*OutboundContext
	p.mu.Lock()
	for id, ctx := range p.entries {
		if now.After(ctx.ResendDeadline) {
			expired = append(expired, ctx)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, ctx := range expired {
		ctx.mu.Lock()
		attempts := ctx.Attempts
		ctx.mu.Unlock()

		if attempts >= p.maxAttempts {
			ctx.fail(ErrTimeout)
			continue
		}
		p.queue.Enqueue(ctx)
	}
}
