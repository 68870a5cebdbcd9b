package hci

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/outpost-iot/btgateway/internal/model"
)

const (
	gattCharacteristicIface = "org.bluez.GattCharacteristic1"
	dbusPropertiesIface     = "org.freedesktop.DBus.Properties"
)

// characteristicLocator resolves a GATT characteristic UUID to its object
// path under one device, carved out of the adapter session's object
// manager so HciConnection does not need to know about discovery at all.
type characteristicLocator interface {
	characteristicPath(device dbus.ObjectPath, uuid model.UUID) (dbus.ObjectPath, error)
}

// HciConnection is the short-lived, per-interaction GATT handle described
// in §4.3. It is returned by AdapterSession.Connect and carries no
// discovery state of its own.
type HciConnection struct {
	bus     *dbus.Conn
	device  dbus.ObjectPath
	locator characteristicLocator
	mac     model.MAC
}

// Read performs a GATT characteristic read. Any bus failure surfaces as
// ErrIO, per §7.
func (c *HciConnection) Read(uuid model.UUID) ([]byte, error) {
	obj, err := c.characteristic(uuid)
	if err != nil {
		return nil, err
	}

	var value []byte
	call := obj.Call(gattCharacteristicIface+".ReadValue", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, fmt.Errorf("hci: read %s: %w: %v", uuid, ErrIO, call.Err)
	}
	if err := call.Store(&value); err != nil {
		return nil, fmt.Errorf("hci: read %s: %w: %v", uuid, ErrIO, err)
	}
	return value, nil
}

// Write performs a GATT characteristic write.
func (c *HciConnection) Write(uuid model.UUID, payload []byte) error {
	obj, err := c.characteristic(uuid)
	if err != nil {
		return err
	}

	call := obj.Call(gattCharacteristicIface+".WriteValue", 0, payload, map[string]dbus.Variant{})
	if call.Err != nil {
		return fmt.Errorf("hci: write %s: %w: %v", uuid, ErrIO, call.Err)
	}
	return nil
}

// NotifiedWrite enables notifications on notifyUUID, writes payload to
// writeUUID, waits for exactly one notification (or times out), disables
// notifications, and returns the received payload. This is the
// write-then-await-response pattern GATT devices use for command/ack
// exchanges.
func (c *HciConnection) NotifiedWrite(notifyUUID, writeUUID model.UUID, payload []byte, timeout time.Duration) ([]byte, error) {
	notifyObj, err := c.characteristic(notifyUUID)
	if err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, 1)
	c.bus.Signal(signals)
	defer c.bus.RemoveSignal(signals)

	matchRule := fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged',path='%s'",
		dbusPropertiesIface, notifyObj.Path())
	if err := c.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		return nil, fmt.Errorf("hci: subscribe notify %s: %w: %v", notifyUUID, ErrIO, err)
	}
	defer c.bus.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, matchRule)

	if call := notifyObj.Call(gattCharacteristicIface+".StartNotify", 0); call.Err != nil {
		return nil, fmt.Errorf("hci: start notify %s: %w: %v", notifyUUID, ErrIO, call.Err)
	}
	defer notifyObj.Call(gattCharacteristicIface+".StopNotify", 0)

	if err := c.Write(writeUUID, payload); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case sig := <-signals:
			if sig.Path != notifyObj.Path() || len(sig.Body) < 2 {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			v, ok := changed["Value"]
			if !ok {
				continue
			}
			value, ok := v.Value().([]byte)
			if !ok {
				continue
			}
			return value, nil
		case <-deadline.C:
			return nil, fmt.Errorf("hci: notify %s: %w", notifyUUID, ErrTimeout)
		}
	}
}

func (c *HciConnection) characteristic(uuid model.UUID) (dbus.BusObject, error) {
	path, err := c.locator.characteristicPath(c.device, uuid)
	if err != nil {
		return nil, err
	}
	return c.bus.Object("org.bluez", path), nil
}
