package hci

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
	"github.com/outpost-iot/btgateway/internal/model"
)

const (
	bluezService       = "org.bluez"
	adapter1Iface      = "org.bluez.Adapter1"
	device1Iface       = "org.bluez.Device1"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"

	// inProgressErrorName is the D-Bus error name BlueZ reports when an
	// operation (usually StartDiscovery/Powered) is already under way.
	// §4.1 and §9 open question 1: always recovered locally, never
	// surfaced to the caller.
	inProgressErrorName = "org.bluez.Error.InProgress"

	powerPollAttempts = 5
	powerPollInterval = 200 * time.Millisecond
)

// AdapterTiming holds the three strictly-positive timing parameters
// required by §4.1's construction contract.
type AdapterTiming struct {
	LEMaxAgeRSSI                          time.Duration
	LEMaxUnavailabilityTime               time.Duration
	ClassicArtificialAvailabilityTimeout time.Duration
}

func (t AdapterTiming) validate() error {
	if t.LEMaxAgeRSSI <= 0 || t.LEMaxUnavailabilityTime <= 0 || t.ClassicArtificialAvailabilityTimeout <= 0 {
		return fmt.Errorf("hci: adapter timing parameters must be strictly positive: %w", ErrInvalidArgument)
	}
	return nil
}

// AdapterSession owns one Bluetooth adapter (C1): it brings the adapter up
// or down, runs discovery, and owns the device registry. One background
// goroutine drives the system bus event loop; all property-changed and
// object-added callbacks execute on it.
type AdapterSession struct {
	name        string
	adapterPath dbus.ObjectPath

	bus     *dbus.Conn
	bluez   dbus.BusObject
	adapter dbus.BusObject

	timing   AdapterTiming
	registry *Registry
	classic  *classicTracker
	detector ClassicDetector
	logger   *logging.Logger

	// statusMu guards Powered transitions. Lock order: statusMu >
	// discoveryMu > (registry is lock-free) > classic's own mutex.
	statusMu sync.Mutex

	discoveryMu  sync.Mutex
	discoverying bool
	// resetCh is closed and replaced under discoveryMu every time discovery
	// resets (Down). Waiting on the channel captured at the start of a
	// LEScan call, rather than parking a goroutine on a sync.Cond, lets a
	// select with a timeout abandon the wait with nothing left to clean up.
	resetCh chan struct{}

	signals chan *dbus.Signal
	stop    chan struct{}
	done    chan struct{}
}

// NewAdapterSession constructs a session for the named adapter (e.g.
// "hci0"), enumerates its already-known devices, and starts the
// background event loop. detector may be nil if Classic detection is not
// used by this adapter.
func NewAdapterSession(bus *dbus.Conn, name string, timing AdapterTiming, detector ClassicDetector, logger *logging.Logger) (*AdapterSession, error) {
	if err := timing.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &AdapterSession{
		name:        name,
		adapterPath: dbus.ObjectPath("/org/bluez/" + name),
		bus:         bus,
		bluez:       bus.Object(bluezService, dbus.ObjectPath("/")),
		timing:      timing,
		registry:    NewRegistry(),
		classic:     newClassicTracker(timing.ClassicArtificialAvailabilityTimeout, nil),
		detector:    detector,
		logger:      logger.With("adapter", name),
		signals:     make(chan *dbus.Signal, 32),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.adapter = bus.Object(bluezService, s.adapterPath)
	s.resetCh = make(chan struct{})

	objects, err := s.managedObjects()
	if err != nil {
		return nil, fmt.Errorf("hci: enumerate %s: %w: %v", name, ErrIO, err)
	}
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(s.adapterPath)+"/") {
			continue
		}
		dev, ok := ifaces[device1Iface]
		if !ok {
			continue
		}
		s.addDeviceLocked(path, dev)
	}

	if err := s.bus.AddMatchSignal(
		dbus.WithMatchObjectPath(dbus.ObjectPath("/")),
		dbus.WithMatchInterface(objectManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, fmt.Errorf("hci: subscribe object-added: %w: %v", ErrIO, err)
	}
	if err := s.bus.AddMatchSignal(
		dbus.WithMatchInterface(dbusPropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, fmt.Errorf("hci: subscribe property-changed: %w: %v", ErrIO, err)
	}
	s.bus.Signal(s.signals)

	go s.eventLoop()

	return s, nil
}

func (s *AdapterSession) managedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := s.bluez.Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	return objects, err
}

func (s *AdapterSession) addDeviceLocked(path dbus.ObjectPath, props map[string]dbus.Variant) {
	addr, _ := props["Address"].Value().(string)
	mac, err := model.ParseMAC(addr)
	if err != nil {
		s.logger.Warn("device with unparsable address", "path", path, "address", addr)
		return
	}
	name, _ := props["Name"].Value().(string)
	rssi, _ := props["RSSI"].Value().(int16)

	entry := &DeviceEntry{
		MAC:        mac,
		Name:       name,
		Handle:     s.bus.Object(bluezService, path),
		cancelRSSI: func() {},
	}
	entry.lastSeen = time.Now()
	entry.rssi = rssi
	s.registry.Put(mac, entry)
}

// Up brings the adapter into the powered, LE-discovering state. §4.1: if
// already powered, power-on is skipped; otherwise it polls for the change
// up to powerPollAttempts times, failing with ErrTimeout if it never
// completes.
func (s *AdapterSession) Up() error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	powered, err := s.getPoweredProperty()
	if err != nil {
		return err
	}
	if !powered {
		if err := s.setPowered(true); err != nil {
			return err
		}
		if err := s.pollPowered(true); err != nil {
			return err
		}
	}

	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("le")}
	call := s.adapter.Call(adapter1Iface+".SetDiscoveryFilter", 0, filter)
	if call.Err != nil && !isInProgress(call.Err) {
		return fmt.Errorf("hci: set discovery filter: %w: %v", ErrIO, call.Err)
	}

	call = s.adapter.Call(adapter1Iface+".StartDiscovery", 0)
	if call.Err != nil && !isInProgress(call.Err) {
		return fmt.Errorf("hci: start discovery: %w: %v", ErrIO, call.Err)
	}

	s.discoveryMu.Lock()
	s.discoverying = true
	s.discoveryMu.Unlock()

	return nil
}

// Down powers the adapter off, unblocking any in-progress LEScan wait.
func (s *AdapterSession) Down() error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.discoveryMu.Lock()
	s.discoverying = false
	close(s.resetCh)
	s.resetCh = make(chan struct{})
	s.discoveryMu.Unlock()

	powered, err := s.getPoweredProperty()
	if err != nil {
		return err
	}
	if !powered {
		return nil
	}

	if err := s.setPowered(false); err != nil {
		return err
	}
	return s.pollPowered(false)
}

// Reset is Down followed by Up.
func (s *AdapterSession) Reset() error {
	if err := s.Down(); err != nil {
		return err
	}
	return s.Up()
}

func (s *AdapterSession) getPoweredProperty() (bool, error) {
	v, err := s.adapter.GetProperty(adapter1Iface + ".Powered")
	if err != nil {
		return false, fmt.Errorf("hci: read Powered: %w: %v", ErrIO, err)
	}
	powered, _ := v.Value().(bool)
	return powered, nil
}

func (s *AdapterSession) setPowered(on bool) error {
	call := s.adapter.Call(dbusPropertiesIface+".Set", 0, adapter1Iface, "Powered", dbus.MakeVariant(on))
	if call.Err != nil && !isInProgress(call.Err) {
		return fmt.Errorf("hci: set Powered=%v: %w: %v", on, ErrIO, call.Err)
	}
	return nil
}

func (s *AdapterSession) pollPowered(want bool) error {
	for i := 0; i < powerPollAttempts; i++ {
		got, err := s.getPoweredProperty()
		if err == nil && got == want {
			return nil
		}
		time.Sleep(powerPollInterval)
	}
	return fmt.Errorf("hci: waiting for Powered=%v: %w", want, ErrTimeout)
}

func isInProgress(err error) bool {
	dbusErr, ok := err.(dbus.Error)
	return ok && dbusErr.Name == inProgressErrorName
}

// Detect performs a Classic presence check for mac, applying the
// artificial-availability window documented in §4.1 and verified by
// invariant 4 (§8).
func (s *AdapterSession) Detect(mac model.MAC) (bool, error) {
	if s.detector == nil {
		return false, fmt.Errorf("hci: no classic detector configured: %w", ErrInvalidArgument)
	}
	result, err := s.detector.Detect(mac)
	if err != nil {
		return false, fmt.Errorf("hci: classic detect %s: %w: %v", mac, ErrIO, err)
	}
	return s.classic.detect(mac, result), nil
}

// Scan performs a single Classic inquiry with no post-processing.
func (s *AdapterSession) Scan(mac model.MAC) (bool, error) {
	if s.detector == nil {
		return false, fmt.Errorf("hci: no classic detector configured: %w", ErrInvalidArgument)
	}
	ok, err := s.detector.Detect(mac)
	if err != nil {
		return false, fmt.Errorf("hci: classic scan %s: %w: %v", mac, ErrIO, err)
	}
	return ok, nil
}

// ScanResult is one entry returned by LEScan: a MAC, its cached name, and
// its last-observed RSSI.
type ScanResult struct {
	MAC  model.MAC
	Name string
	RSSI int16
}

// LEScan starts discovery if it is not already running, then waits for a
// reset signal (from Down, or a timeout) before returning the subset of
// the registry whose last_seen is within leMaxAgeRSSI and whose RSSI is
// non-zero (§4.1, boundary behaviors in §8). It finishes by calling
// EvictStale.
func (s *AdapterSession) LEScan(timeout time.Duration) ([]ScanResult, error) {
	s.discoveryMu.Lock()
	if !s.discoverying {
		s.discoveryMu.Unlock()
		if err := s.Up(); err != nil {
			return nil, err
		}
		s.discoveryMu.Lock()
	}
	reset := s.resetCh
	s.discoveryMu.Unlock()

	select {
	case <-reset:
	case <-time.After(timeout):
	}

	results := freshScanResults(s.registry, time.Now(), s.timing.LEMaxAgeRSSI)

	s.EvictStale()
	return results, nil
}

// freshScanResults returns every registry entry with a non-zero RSSI last
// seen within maxAge of now (§4.1, boundary behaviors in §8). Split out
// from LEScan so the filter predicate can be tested against a
// directly-populated *Registry with no bus connection involved.
func freshScanResults(registry *Registry, now time.Time, maxAge time.Duration) []ScanResult {
	var results []ScanResult
	registry.Range(func(mac model.MAC, entry *DeviceEntry) bool {
		lastSeen, rssi := entry.snapshotRSSI()
		if rssi != 0 && now.Sub(lastSeen) <= maxAge {
			results = append(results, ScanResult{MAC: mac, Name: entry.Name, RSSI: rssi})
		}
		return true
	})
	return results
}

// Connect looks up the device entry for mac, issues a synchronous GATT
// connect if not already connected, and returns a fresh HciConnection
// bound to the device handle. InProgress is not an error (§4.1).
func (s *AdapterSession) Connect(mac model.MAC, timeout time.Duration) (*HciConnection, error) {
	entry, ok := s.registry.Get(mac)
	if !ok {
		return nil, fmt.Errorf("hci: connect %s: %w", mac, ErrNotFound)
	}

	// entry.Handle is cheap to share (it is a dbus.BusObject value holding
	// only a connection pointer and a path), so the blocking Connect call
	// below runs without holding any registry lock.
	connected, err := entry.Handle.GetProperty(device1Iface + ".Connected")
	if err == nil {
		if v, ok := connected.Value().(bool); ok && v {
			return &HciConnection{bus: s.bus, device: entry.Handle.Path(), locator: s, mac: mac}, nil
		}
	}

	call := entry.Handle.Call(device1Iface+".Connect", 0)
	if call.Err != nil && !isInProgress(call.Err) {
		return nil, fmt.Errorf("hci: connect %s: %w: %v", mac, ErrIO, call.Err)
	}

	return &HciConnection{bus: s.bus, device: entry.Handle.Path(), locator: s, mac: mac}, nil
}

// Watch installs cb to receive every manufacturer-data notification for
// mac. Watching an already-watched device is a no-op. The check-and-set
// happens under the entry's own lock inside Registry.Watch, so two
// concurrent Watch calls for the same mac cannot both install a watch.
func (s *AdapterSession) Watch(mac model.MAC, cb WatchCallback) error {
	if !s.registry.Watch(mac, func() {}, cb) {
		return fmt.Errorf("hci: watch %s: %w", mac, ErrNotFound)
	}
	return nil
}

// Unwatch removes mac's manufacturer-data watch, if any. Unwatching an
// absent or unwatched device is a no-op.
func (s *AdapterSession) Unwatch(mac model.MAC) {
	s.registry.Unwatch(mac)
}

// EvictStale removes registry entries that are unwatched and older than
// LEMaxUnavailabilityTime, best-effort asking the adapter to forget the
// underlying device. A watched device is never evicted (§8 boundary
// behaviors).
func (s *AdapterSession) EvictStale() {
	stale := staleUnwatchedMACs(s.registry, time.Now(), s.timing.LEMaxUnavailabilityTime)

	for _, mac := range stale {
		entry, ok := s.registry.Get(mac)
		if !ok {
			continue
		}
		path := entry.Handle.Path()
		s.registry.Remove(mac)
		if call := s.adapter.Call(adapter1Iface+".RemoveDevice", 0, path); call.Err != nil {
			s.logger.Warn("remove device failed", "mac", mac.String(), "error", call.Err)
		}
	}
}

// staleUnwatchedMACs returns every registry entry that is unwatched and has
// not been seen for longer than maxUnavailability (§8: a watched device is
// never evicted). Split out from EvictStale for the same reason as
// freshScanResults: no bus connection is needed to test this predicate.
func staleUnwatchedMACs(registry *Registry, now time.Time, maxUnavailability time.Duration) []model.MAC {
	var stale []model.MAC
	registry.Range(func(mac model.MAC, entry *DeviceEntry) bool {
		if entry.staleAndUnwatched(now, maxUnavailability) {
			stale = append(stale, mac)
		}
		return true
	})
	return stale
}

// characteristicPath implements characteristicLocator by enumerating the
// object tree under device and matching GattCharacteristic1.UUID.
func (s *AdapterSession) characteristicPath(device dbus.ObjectPath, uuid model.UUID) (dbus.ObjectPath, error) {
	objects, err := s.managedObjects()
	if err != nil {
		return "", fmt.Errorf("hci: enumerate characteristics: %w: %v", ErrIO, err)
	}
	target := strings.ToLower(uuid.String())
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(device)+"/") {
			continue
		}
		props, ok := ifaces[gattCharacteristicIface]
		if !ok {
			continue
		}
		if u, _ := props["UUID"].Value().(string); strings.ToLower(u) == target {
			return path, nil
		}
	}
	return "", fmt.Errorf("hci: characteristic %s under %s: %w", uuid, device, ErrNotFound)
}

// eventLoop drives object-added and property-changed dispatch, as
// described in §4.1. It is the session's only writer of registry RSSI
// updates and the only source of watch-callback invocations.
func (s *AdapterSession) eventLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			s.handleSignal(sig)
		}
	}
}

func (s *AdapterSession) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case objectManagerIface + ".InterfacesAdded":
		s.handleInterfacesAdded(sig)
	case dbusPropertiesIface + ".PropertiesChanged":
		s.handlePropertiesChanged(sig)
	}
}

func (s *AdapterSession) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok || !strings.HasPrefix(string(path), string(s.adapterPath)+"/") {
		return
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	dev, ok := ifaces[device1Iface]
	if !ok {
		return
	}
	s.addDeviceLocked(path, dev)
}

func (s *AdapterSession) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != device1Iface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	obj := s.bus.Object(bluezService, sig.Path)
	addrVariant, err := obj.GetProperty(device1Iface + ".Address")
	if err != nil {
		return
	}
	addr, _ := addrVariant.Value().(string)
	mac, err := model.ParseMAC(addr)
	if err != nil {
		return
	}

	if rssiVariant, ok := changed["RSSI"]; ok {
		rssi, _ := rssiVariant.Value().(int16)
		s.registry.TouchRSSI(mac, rssi, time.Now())
	}

	if mdVariant, ok := changed["ManufacturerData"]; ok && s.registry.IsWatched(mac) {
		s.dispatchManufacturerData(mac, mdVariant)
	}
}

// dispatchManufacturerData decodes the a{qv} ManufacturerData variant
// (§6): outer key is a 16-bit manufacturer id, inner variant is a byte
// array. The watch callback is invoked once per outer entry.
func (s *AdapterSession) dispatchManufacturerData(mac model.MAC, v dbus.Variant) {
	entries, ok := v.Value().(map[uint16]dbus.Variant)
	if !ok {
		return
	}
	for _, inner := range entries {
		data, ok := inner.Value().([]byte)
		if !ok {
			continue
		}
		s.registry.dispatchManufacturerData(mac, data)
	}
}

// Close tears the session down: stops discovery, quits the event loop,
// and joins its goroutine. Errors during teardown are logged, not
// returned, per §4.1's swallow-and-log contract.
func (s *AdapterSession) Close() {
	if err := s.Down(); err != nil {
		s.logger.Warn("teardown: adapter down failed", "error", err)
	}
	close(s.stop)
	s.bus.RemoveSignal(s.signals)
	<-s.done
}
