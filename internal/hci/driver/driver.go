// Package driver defines the capability contracts external collaborators
// must fulfil to plug into the adapter session and connector core: vendor
// GATT device drivers and the Classic HCI driver. Per spec, their internal
// decoding logic (Revogi et al., IQRF byte-decoding) is out of scope here —
// only the seams they attach to are defined, plus a logging shim and test
// doubles for exercising the seams.
package driver

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outpost-iot/btgateway/internal/model"
)

// DeviceDescription is the DTO a GATT device driver reports about the
// device it drives: vendor, product name, the module types it exposes,
// and whether (and how often) it should be polled.
type DeviceDescription struct {
	DeviceID    model.DeviceID
	Vendor      string
	ProductName string
	DataTypes   []model.ModuleType
	RefreshTime model.RefreshTime
}

// SupportsRefreshTime reports whether the device is pollable.
func (d DeviceDescription) SupportsRefreshTime() bool {
	return !d.RefreshTime.IsNone()
}

// GattConnection is the narrow slice of HciConnection a device driver
// needs: read/write/notified-write against GATT characteristics. Drivers
// depend on this interface rather than the concrete hci type so they can
// be tested against a fake.
type GattConnection interface {
	Read(uuid model.UUID) ([]byte, error)
	Write(uuid model.UUID, payload []byte) error
	NotifiedWrite(notifyUUID, writeUUID model.UUID, payload []byte, timeout time.Duration) ([]byte, error)
}

// GattDeviceDriver is the capability contract a vendor smart-device driver
// (light bulb, plug, candle) implements: describe itself, and poll its
// current sensor/actuator state over a connection the core provides.
type GattDeviceDriver interface {
	Describe() DeviceDescription
	Poll(conn GattConnection) (model.SensorData, error)
}

// ClassicDetectFunc is the raw external Classic HCI inquiry: one blocking
// detect for mac.
type ClassicDetectFunc func(mac model.MAC) (bool, error)

// LoggingClassicDriver wraps an external Classic HCI driver call with
// logrus-based logging. Vendor driver integrations sit outside the
// gateway's own slog-based structured logging, so this boundary uses the
// logging library the driver ecosystem in this pack already reaches for.
type LoggingClassicDriver struct {
	detect ClassicDetectFunc
	log    *logrus.Logger
}

// NewLoggingClassicDriver wraps detect with logging. If log is nil, a
// default logrus logger is used.
func NewLoggingClassicDriver(detect ClassicDetectFunc, log *logrus.Logger) *LoggingClassicDriver {
	if log == nil {
		log = logrus.New()
	}
	return &LoggingClassicDriver{detect: detect, log: log}
}

// Detect satisfies the classic detector contract hci.AdapterSession
// depends on (structurally, no import cycle).
func (d *LoggingClassicDriver) Detect(mac model.MAC) (bool, error) {
	d.log.WithField("mac", mac.String()).Debug("classic detect")

	ok, err := d.detect(mac)
	if err != nil {
		d.log.WithFields(logrus.Fields{"mac": mac.String(), "error": err}).Warn("classic detect failed")
		return false, err
	}
	return ok, nil
}
