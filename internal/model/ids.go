package model

import (
	"fmt"
	"time"
)

// ModuleType identifies the kind of sensor or actuator data a module
// carries (e.g. temperature, on/off state, brightness). It is opaque to
// the core: drivers define and interpret their own module types.
type ModuleType struct {
	id string
}

// NewModuleType constructs a ModuleType from its stable string id.
func NewModuleType(id string) ModuleType { return ModuleType{id: id} }

// String returns the stable string form.
func (t ModuleType) String() string { return t.id }

// Less gives ModuleType a total ordering on its string id.
func (t ModuleType) Less(other ModuleType) bool { return t.id < other.id }

// ModuleID identifies one data-carrying module within a device (a single
// GATT characteristic's logical slot, e.g. "brightness" or "power-switch").
type ModuleID struct {
	id string
}

// NewModuleID constructs a ModuleID from its stable string id.
func NewModuleID(id string) ModuleID { return ModuleID{id: id} }

func (m ModuleID) String() string { return m.id }

func (m ModuleID) Less(other ModuleID) bool { return m.id < other.id }

// DevicePrefix names the device class that owns a DeviceID's ident space.
// The prefix determines which manager handles the device (invariant from
// spec.md §3).
type DevicePrefix string

const (
	// PrefixBLE identifies a Bluetooth Low Energy device, managed by an
	// hci.AdapterSession in "le" discovery mode.
	PrefixBLE DevicePrefix = "ble"

	// PrefixClassic identifies a Classic (BR/EDR) Bluetooth device,
	// managed by an hci.AdapterSession's classic detect/scan path.
	PrefixClassic DevicePrefix = "classic"

	// PrefixVirtual identifies a simulated device produced by an external
	// virtual-device generator (not specified here; see spec.md §1).
	PrefixVirtual DevicePrefix = "virtual"
)

// DeviceID is an opaque, totally-ordered identifier for one device,
// composed of a class prefix and an opaque ident (typically a MAC's
// string form for BLE/Classic devices).
type DeviceID struct {
	Prefix DevicePrefix
	Ident  string
}

// NewDeviceID builds a DeviceID from its prefix and ident.
func NewDeviceID(prefix DevicePrefix, ident string) DeviceID {
	return DeviceID{Prefix: prefix, Ident: ident}
}

// DeviceIDFromMAC builds a DeviceID for a BLE or Classic device from its
// MAC address.
func DeviceIDFromMAC(prefix DevicePrefix, mac MAC) DeviceID {
	return DeviceID{Prefix: prefix, Ident: mac.String()}
}

// String renders the stable "prefix:ident" form.
func (d DeviceID) String() string {
	return fmt.Sprintf("%s:%s", d.Prefix, d.Ident)
}

// Less gives DeviceID a total ordering: first by prefix, then by ident.
func (d DeviceID) Less(other DeviceID) bool {
	if d.Prefix != other.Prefix {
		return d.Prefix < other.Prefix
	}
	return d.Ident < other.Ident
}

// RefreshTime is either "none" (the device is not pollable) or a positive
// polling interval.
type RefreshTime struct {
	d    time.Duration
	none bool
}

// NoRefresh returns a RefreshTime representing an unpollable device.
func NoRefresh() RefreshTime { return RefreshTime{none: true} }

// NewRefreshTime returns a RefreshTime for the given positive interval.
// Panics if d is not strictly positive; callers validate user input
// before calling this constructor.
func NewRefreshTime(d time.Duration) RefreshTime {
	if d <= 0 {
		panic("model: refresh time must be strictly positive")
	}
	return RefreshTime{d: d}
}

// IsNone reports whether the device is not pollable.
func (r RefreshTime) IsNone() bool { return r.none }

// Duration returns the polling interval. Panics if IsNone is true.
func (r RefreshTime) Duration() time.Duration {
	if r.none {
		panic("model: refresh time is none")
	}
	return r.d
}
