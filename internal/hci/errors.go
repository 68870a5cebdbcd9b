package hci

import "errors"

// Sentinel errors returned by the adapter session, registry and connection
// types. Callers should compare with errors.Is, never string matching.
var (
	// ErrNotFound is returned when a MAC address has no registry entry, or
	// a GATT characteristic UUID is not found under a device.
	ErrNotFound = errors.New("hci: not found")

	// ErrTimeout is returned when a power change or a GATT notified write
	// does not complete within its deadline. An LEScan wait that reaches
	// its timeout is a normal return, not an error.
	ErrTimeout = errors.New("hci: timeout")

	// ErrIO is returned when the underlying system bus or GATT transport
	// fails.
	ErrIO = errors.New("hci: io error")

	// ErrInvalidArgument is returned when a timing parameter passed to
	// NewAdapterSession is not strictly positive.
	ErrInvalidArgument = errors.New("hci: invalid argument")
)
