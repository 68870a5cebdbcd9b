package hci

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/godbus/dbus/v5"

	"github.com/outpost-iot/btgateway/internal/model"
)

// WatchCallback receives one manufacturer-data notification: the
// advertising device's MAC and the inner byte payload for a single
// manufacturer entry.
type WatchCallback func(mac model.MAC, data []byte)

// watch is the standing subscription installed by Watch: a cancel func for
// the underlying property-change match, and the callback to invoke.
type watch struct {
	cancel   func()
	callback WatchCallback
}

// DeviceEntry is the registry's record for one Bluetooth device, as
// described in the data model: a device-bus proxy, its RSSI subscription,
// the last time RSSI was observed, and an optional manufacturer-data watch.
//
// The hashmap backing Registry only guarantees atomicity of its own
// Get/Set/Del; it says nothing about the fields of the *DeviceEntry it
// returns. The event-loop goroutine (TouchRSSI, dispatchManufacturerData)
// runs concurrently with external Watch/Unwatch callers (§5), so
// lastSeen, rssi and watch are guarded by mu rather than read or written
// as plain fields.
type DeviceEntry struct {
	MAC    model.MAC
	Name   string
	Handle dbus.BusObject

	mu       sync.Mutex
	lastSeen time.Time
	rssi     int16
	watch    *watch

	// cancelRSSI releases this entry's property-change subscription. It is
	// always non-nil for a live entry and is called exactly once, on the
	// same path that removes the entry from the registry. Only ever touched
	// from Remove, which the caller is responsible for not racing with
	// itself, so it needs no lock of its own.
	cancelRSSI func()
}

// snapshotRSSI returns the entry's last-seen time and RSSI together, under
// lock, so a reader never observes one field updated and the other not.
func (e *DeviceEntry) snapshotRSSI() (time.Time, int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen, e.rssi
}

// staleAndUnwatched reports whether the entry is unwatched and has not
// been seen for longer than maxUnavailability (§8: a watched device is
// never evicted), read under a single lock acquisition.
func (e *DeviceEntry) staleAndUnwatched(now time.Time, maxUnavailability time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watch == nil && now.Sub(e.lastSeen) > maxUnavailability
}

// Registry is the thread-safe MAC → DeviceEntry map described in §4.2. It
// is backed by a lock-free concurrent map so that connect can look up an
// entry and then issue its blocking bus call without holding any lock, and
// so that lescan and evict_stale can range over the table concurrently with
// event-loop writes.
type Registry struct {
	// entries is keyed by the MAC's string encoding rather than model.MAC
	// itself: model.MAC is a [6]byte array, which does not satisfy the
	// hashmap library's hashable constraint (scalar/string types only).
	// The string encoding is a bijective function of the 6-byte value, so
	// keying on it is equivalent to keying on the MAC itself.
	entries *hashmap.Map[string, *DeviceEntry]
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{entries: hashmap.New[string, *DeviceEntry]()}
}

// Get returns the entry for mac, if present.
func (r *Registry) Get(mac model.MAC) (*DeviceEntry, bool) {
	return r.entries.Get(mac.String())
}

// Put installs or replaces the entry for mac.
func (r *Registry) Put(mac model.MAC, entry *DeviceEntry) {
	r.entries.Set(mac.String(), entry)
}

// Remove releases the entry's RSSI subscription (if any remains) and drops
// it from the table. Removing an absent MAC is a no-op.
func (r *Registry) Remove(mac model.MAC) {
	entry, ok := r.entries.Get(mac.String())
	if !ok {
		return
	}
	if entry.cancelRSSI != nil {
		entry.cancelRSSI()
	}
	r.entries.Del(mac.String())
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return int(r.entries.Len())
}

// Range calls fn for every entry, in unspecified order. fn returning false
// stops iteration early. Range tolerates concurrent Put/Remove.
func (r *Registry) Range(fn func(mac model.MAC, entry *DeviceEntry) bool) {
	r.entries.Range(func(_ string, entry *DeviceEntry) bool {
		return fn(entry.MAC, entry)
	})
}

// TouchRSSI records a fresh RSSI observation for mac, if it is present.
// last_seen only ever moves forward: a caller sending observations out of
// arrival order would violate the monotonicity invariant, so this method
// trusts the caller (the event-loop goroutine, which applies updates for a
// single device in arrival order) rather than re-checking here.
func (r *Registry) TouchRSSI(mac model.MAC, rssi int16, at time.Time) {
	entry, ok := r.entries.Get(mac.String())
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.lastSeen = at
	entry.rssi = rssi
	entry.mu.Unlock()
}

// Watch installs a manufacturer-data callback for mac. If mac is already
// watched, the existing watch is kept and cancel and cb are ignored. It
// returns false only if mac has no entry. The check-and-set happens under the entry's own
// lock, so two concurrent Watch calls for the same mac cannot both install
// a subscription: whichever loses the race sees a non-nil watch and
// no-ops instead of clobbering the winner's.
func (r *Registry) Watch(mac model.MAC, cancel func(), cb WatchCallback) bool {
	entry, ok := r.entries.Get(mac.String())
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.watch != nil {
		return true // already watched: no-op per §4.1
	}
	entry.watch = &watch{cancel: cancel, callback: cb}
	return true
}

// Unwatch removes and cancels mac's manufacturer-data subscription, if any.
// Once Unwatch returns, no further invocations of that watch's callback
// will occur (invariant 2, §8): the watch pointer is cleared under lock
// before cancel runs, so a dispatchManufacturerData that acquires the lock
// afterward always observes a nil watch.
func (r *Registry) Unwatch(mac model.MAC) {
	entry, ok := r.entries.Get(mac.String())
	if !ok {
		return
	}
	entry.mu.Lock()
	w := entry.watch
	entry.watch = nil
	entry.mu.Unlock()
	if w != nil {
		w.cancel()
	}
}

// IsWatched reports whether mac currently has a manufacturer-data watch.
func (r *Registry) IsWatched(mac model.MAC) bool {
	entry, ok := r.entries.Get(mac.String())
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.watch != nil
}

func (r *Registry) dispatchManufacturerData(mac model.MAC, data []byte) {
	entry, ok := r.entries.Get(mac.String())
	if !ok {
		return
	}
	entry.mu.Lock()
	w := entry.watch
	entry.mu.Unlock()
	if w == nil {
		return
	}
	w.callback(mac, data)
}
