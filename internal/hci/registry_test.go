package hci

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/outpost-iot/btgateway/internal/model"
)

func mustMAC(t *testing.T, s string) model.MAC {
	t.Helper()
	mac, err := model.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return mac
}

func TestRegistry_PutGetRemove(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")

	if _, ok := r.Get(mac); ok {
		t.Fatal("expected empty registry to not contain mac")
	}

	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})
	if _, ok := r.Get(mac); !ok {
		t.Fatal("expected registry to contain mac after Put")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	r.Remove(mac)
	if _, ok := r.Get(mac); ok {
		t.Fatal("expected mac to be gone after Remove")
	}
}

func TestRegistry_RemoveCallsCancelRSSI(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")

	cancelled := false
	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() { cancelled = true }})
	r.Remove(mac)

	if !cancelled {
		t.Fatal("expected Remove to invoke cancelRSSI")
	}
}

func TestRegistry_WatchUnwatch(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")
	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})

	var got []byte
	calls := 0
	ok := r.Watch(mac, func() {}, func(m model.MAC, data []byte) {
		calls++
		got = data
	})
	if !ok {
		t.Fatal("expected Watch on existing entry to succeed")
	}
	if !r.IsWatched(mac) {
		t.Fatal("expected IsWatched true after Watch")
	}

	r.dispatchManufacturerData(mac, []byte{1, 2, 3})
	if calls != 1 {
		t.Fatalf("expected exactly 1 callback invocation, got %d", calls)
	}
	if string(got) != "\x01\x02\x03" {
		t.Fatalf("unexpected payload: %v", got)
	}

	r.Unwatch(mac)
	if r.IsWatched(mac) {
		t.Fatal("expected IsWatched false after Unwatch")
	}

	r.dispatchManufacturerData(mac, []byte{4, 5, 6})
	if calls != 1 {
		t.Fatalf("expected no further callback invocations after Unwatch, got %d total", calls)
	}
}

func TestRegistry_WatchAlreadyWatchedIsNoOp(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")
	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})

	firstCancelled := false
	r.Watch(mac, func() { firstCancelled = true }, func(model.MAC, []byte) {})
	r.Watch(mac, func() {}, func(model.MAC, []byte) {})

	if firstCancelled {
		t.Fatal("re-watching an already-watched entry must not cancel the existing subscription")
	}
}

func TestRegistry_UnwatchAbsentOrUnwatchedIsNoOp(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")

	r.Unwatch(mac) // absent entry: must not panic

	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})
	r.Unwatch(mac) // never watched: must not panic
}

func TestRegistry_TouchRSSIMonotonic(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")
	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})

	t1 := time.Unix(100, 0)
	t2 := time.Unix(200, 0)

	r.TouchRSSI(mac, -50, t1)
	entry, _ := r.Get(mac)
	lastSeen, _ := entry.snapshotRSSI()
	if !lastSeen.Equal(t1) {
		t.Fatalf("LastSeen = %v, want %v", lastSeen, t1)
	}

	r.TouchRSSI(mac, -40, t2)
	entry, _ = r.Get(mac)
	lastSeen, rssi := entry.snapshotRSSI()
	if !lastSeen.Equal(t2) {
		t.Fatalf("LastSeen = %v, want %v", lastSeen, t2)
	}
	if rssi != -40 {
		t.Fatalf("RSSI = %d, want -40", rssi)
	}
}

func TestRegistry_ConcurrentWatchInstallsExactlyOneSubscription(t *testing.T) {
	r := NewRegistry()
	mac := mustMAC(t, "AA:BB:CC:DD:EE:FF")
	r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})

	const n = 50
	var installed int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			r.Watch(mac, func() {}, func(model.MAC, []byte) {
				atomic.AddInt32(&installed, 1)
			})
		}()
	}
	wg.Wait()

	if !r.IsWatched(mac) {
		t.Fatal("expected mac to be watched after concurrent Watch calls")
	}

	r.dispatchManufacturerData(mac, []byte{1})
	if installed != 1 {
		t.Fatalf("dispatchManufacturerData invoked %d callbacks, want exactly 1 (the check-and-set in Watch must be atomic per entry)", installed)
	}
}

func TestRegistry_RangeVisitsAllEntries(t *testing.T) {
	r := NewRegistry()
	macs := []model.MAC{
		mustMAC(t, "AA:AA:AA:AA:AA:AA"),
		mustMAC(t, "BB:BB:BB:BB:BB:BB"),
		mustMAC(t, "CC:CC:CC:CC:CC:CC"),
	}
	for _, mac := range macs {
		r.Put(mac, &DeviceEntry{MAC: mac, cancelRSSI: func() {}})
	}

	seen := make(map[model.MAC]bool)
	r.Range(func(mac model.MAC, entry *DeviceEntry) bool {
		seen[mac] = true
		return true
	})

	if len(seen) != len(macs) {
		t.Fatalf("Range visited %d entries, want %d", len(seen), len(macs))
	}
}
