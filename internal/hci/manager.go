package hci

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
)

// AdapterManager is the process-wide registry of Adapter Sessions keyed by
// adapter name (C5). Per §9's design note it is an explicitly-constructed
// object passed through dependency injection, not a global singleton; its
// lifetime is meant to equal the process's.
type AdapterManager struct {
	bus      *dbus.Conn
	detector ClassicDetector
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*AdapterSession
}

// NewAdapterManager creates a manager that constructs sessions lazily on
// Lookup, using the given system bus connection for every adapter it
// creates. Timing is supplied per-adapter at Lookup time, since spec.md §6
// allows each adapter its own RSSI/unavailability/artificial-availability
// knobs.
func NewAdapterManager(bus *dbus.Conn, detector ClassicDetector, logger *logging.Logger) *AdapterManager {
	return &AdapterManager{
		bus:      bus,
		detector: detector,
		logger:   logger,
		sessions: make(map[string]*AdapterSession),
	}
}

// Lookup returns the cached session for name, constructing one with timing
// if this is the first request. Session lifetimes equal process lifetime;
// there is no eviction, and timing is ignored on subsequent calls for an
// already-constructed adapter.
func (m *AdapterManager) Lookup(name string, timing AdapterTiming) (*AdapterSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[name]; ok {
		return session, nil
	}

	session, err := NewAdapterSession(m.bus, name, timing, m.detector, m.logger)
	if err != nil {
		return nil, fmt.Errorf("hci: lookup adapter %s: %w", name, err)
	}
	m.sessions[name] = session
	return session, nil
}

// Close tears down every session the manager has constructed.
func (m *AdapterManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		session.Close()
	}
}
