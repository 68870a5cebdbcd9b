package hci

import (
	"errors"
	"testing"

	"github.com/outpost-iot/btgateway/internal/model"
)

type fakeClassicDetector struct{}

func (fakeClassicDetector) Detect(model.MAC) (bool, error) { return false, nil }

func TestAdapterManager_LookupValidatesTimingBeforeTouchingTheBus(t *testing.T) {
	// Timing is validated before any bus call is made, so an invalid
	// timing is rejected even with no real system bus connection — this
	// is the only Lookup path exercisable without BlueZ present.
	m := NewAdapterManager(nil, fakeClassicDetector{}, nil)

	if _, err := m.Lookup("hci0", AdapterTiming{LEMaxAgeRSSI: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Lookup() error = %v, want ErrInvalidArgument", err)
	}
	if len(m.sessions) != 0 {
		t.Fatalf("sessions cached a failed construction: %v", m.sessions)
	}
}

func TestAdapterManager_CloseOnEmptyManager(t *testing.T) {
	m := NewAdapterManager(nil, fakeClassicDetector{}, nil)
	m.Close() // must not panic with no sessions constructed
}
