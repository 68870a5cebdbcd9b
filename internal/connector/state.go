package connector

import "sync"

// State is the connector's connection state, shared between the sender
// and receiver loops (§3, §4.6-4.7). The sender is the only component
// that advances it; the receiver may only demote it to Disconnected.
type State int

const (
	Disconnected State = iota
	Connecting
	Registering
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Registering:
		return "registering"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// sharedState is the single condition variable whose predicate is the
// connection state, replacing the source's AtomicCounter-style flags per
// §9's design note. The sender reads and writes it; the receiver may only
// demote it to Disconnected.
type sharedState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current State
	closed  bool
}

func newSharedState() *sharedState {
	s := &sharedState{current: Disconnected}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sharedState) set(to State) {
	s.mu.Lock()
	s.current = to
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *sharedState) get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// waitReadyOrClosed blocks until the state becomes Ready or the connector
// is closed, returning false in the latter case.
func (s *sharedState) waitReadyOrClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.current != Ready && !s.closed {
		s.cond.Wait()
	}
	return !s.closed
}

func (s *sharedState) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
