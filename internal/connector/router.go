package connector

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
)

// CommandKind identifies one of the three commands the Router translates
// into outbound server messages (§4.10), grounded on the original
// CommandHandler Accept/Handle contract.
type CommandKind int

const (
	// CommandNewDeviceAnnouncement reports a freshly discovered device.
	CommandNewDeviceAnnouncement CommandKind = iota
	// CommandServerDeviceList asks the server which devices are paired.
	CommandServerDeviceList
	// CommandLastValue asks the server for a module's last known value.
	CommandLastValue
)

// Command is the input to the Router: a kind discriminator plus the
// payload appropriate to that kind (NewDeviceAnnouncement,
// ServerDeviceListRequest or LastValueRequest).
type Command struct {
	Kind    CommandKind
	Payload any
}

// Router is the Command Router (C11): it accepts the three outbound
// command kinds, wraps each in an OutboundContext, and enqueues it on the
// output queue, blocking the caller until the server answers or the
// context fails (resend attempts exhausted, or shutdown). A disconnect
// alone does not fail the context: it stays queued or in flight and is
// resent.
type Router struct {
	queue *OutputQueue
}

func newRouter(queue *OutputQueue) *Router {
	return &Router{queue: queue}
}

// Accept reports whether the Router can handle cmd.
func (r *Router) Accept(cmd Command) bool {
	switch cmd.Kind {
	case CommandNewDeviceAnnouncement, CommandServerDeviceList, CommandLastValue:
		return true
	default:
		return false
	}
}

// Handle encodes cmd's payload, enqueues it, and blocks until the server
// answers. The returned Envelope is the server's reply; callers decode
// its Payload with gwmessage.DecodePayload for the expected response
// type (ServerDeviceListResponse or LastValueResponse). A new device
// announcement has no response type to decode, but Handle still blocks
// until the server answers it or the context fails.
func (r *Router) Handle(cmd Command) (gwmessage.Envelope, error) {
	envType, err := envelopeType(cmd)
	if err != nil {
		return gwmessage.Envelope{}, err
	}

	payload, err := gwmessage.EncodePayload(cmd.Payload)
	if err != nil {
		return gwmessage.Envelope{}, fmt.Errorf("connector: router: %w", err)
	}

	id := uuid.NewString()
	msg := gwmessage.Envelope{ID: id, Type: envType, Payload: payload}
	ctx := newOutboundContext(id, msg)

	r.queue.Enqueue(ctx)

	return ctx.Wait()
}

func envelopeType(cmd Command) (gwmessage.Type, error) {
	switch cmd.Kind {
	case CommandNewDeviceAnnouncement:
		return gwmessage.TypeNewDeviceAnnouncement, nil
	case CommandServerDeviceList:
		return gwmessage.TypeServerDeviceListRequest, nil
	case CommandLastValue:
		return gwmessage.TypeLastValueRequest, nil
	default:
		return "", fmt.Errorf("connector: router: unknown command kind %d", cmd.Kind)
	}
}
