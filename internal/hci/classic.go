package hci

import (
	"sync"
	"time"

	"github.com/outpost-iot/btgateway/internal/model"
)

// ClassicDetector is the external Classic HCI driver capability contract:
// it performs one blocking inquiry for mac and reports whether the device
// answered. The core does not implement device-class detection itself.
type ClassicDetector interface {
	Detect(mac model.MAC) (bool, error)
}

// classicTracker implements §4.3's artificial availability window for
// Classic devices that do not advertise continuously: once a device has
// answered at least once, a subsequent negative detect is still reported
// present until classicArtificialAvailabilityTimeout has elapsed since the
// last positive detect.
type classicTracker struct {
	mu      sync.Mutex
	seen    map[model.MAC]time.Time
	timeout time.Duration
	now     func() time.Time
}

func newClassicTracker(timeout time.Duration, now func() time.Time) *classicTracker {
	if now == nil {
		now = time.Now
	}
	return &classicTracker{
		seen:    make(map[model.MAC]time.Time),
		timeout: timeout,
		now:     now,
	}
}

// detect applies the artificial-availability rule described in §4.1 and
// verified by invariant 4 in §8: true iff the driver answered true now, or
// the elapsed time since the last positive detect is within timeout.
func (t *classicTracker) detect(mac model.MAC, driverResult bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if driverResult {
		t.seen[mac] = now
		return true
	}

	last, ok := t.seen[mac]
	if !ok {
		return false
	}
	return now.Sub(last) <= t.timeout
}
