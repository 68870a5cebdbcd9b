package connector

import "errors"

// Sentinel errors returned by the transport, output queue, context poll
// and command router.
var (
	// ErrNotFound is the not-found kind for request ids. No code path in
	// this package returns it: ContextPoll.Complete logs and drops an
	// answer whose request id has no pending context.
	ErrNotFound = errors.New("connector: not found")

	// ErrTimeout is returned when an outbound context exhausts its resend
	// attempts without an answer.
	ErrTimeout = errors.New("connector: timeout")

	// ErrIO is returned when the underlying socket fails.
	ErrIO = errors.New("connector: io error")

	// ErrProtocol is returned for a frame exceeding max_message_size, any
	// other non-network read failure, or a rejected registration handshake
	// — all of which trigger a reconnect rather than propagating to the
	// caller. A malformed inbound frame on a Ready connection is logged and
	// dropped, not reported as ErrProtocol.
	ErrProtocol = errors.New("connector: protocol error")

	// ErrStopped is the terminal error given to every context poll
	// awaiter when the connector is stopped.
	ErrStopped = errors.New("connector: stopped")
)
