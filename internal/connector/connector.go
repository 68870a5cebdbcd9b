// Package connector implements the server connector: a two-goroutine
// sender/receiver pair over a reconnecting WebSocket (C6-C8), a FIFO
// output queue with resend-on-timeout (C9), an in-flight request
// correlator (C10), and a command router (C11) translating gateway
// commands into outbound messages.
package connector

import (
	"github.com/outpost-iot/btgateway/internal/gwmessage"
	"github.com/outpost-iot/btgateway/internal/infrastructure/config"
	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
)

// Connector wires together the transport, sender, receiver, output
// queue, context poll and command router into the single long-lived
// object the rest of the gateway depends on.
type Connector struct {
	transport *Transport
	queue     *OutputQueue
	poll      *ContextPoll
	state     *sharedState
	sender    *Sender
	receiver  *Receiver
	Router    *Router
}

// New constructs a Connector from cfg but does not start it; call Start.
func New(cfg config.ConnectorConfig, logger *logging.Logger) *Connector {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "connector")

	transport := NewTransport(cfg, logger)
	queue := NewOutputQueue()
	poll := NewContextPoll(queue, cfg.ResendTimeout, cfg.MaxResendAttempts, logger)
	state := newSharedState()

	sender := newSender(cfg, transport, queue, poll, state, logger)
	receiver := newReceiver(cfg, transport, poll, state, logger)
	router := newRouter(queue)

	return &Connector{
		transport: transport,
		queue:     queue,
		poll:      poll,
		state:     state,
		sender:    sender,
		receiver:  receiver,
		Router:    router,
	}
}

// Start begins the sender and receiver loops.
func (c *Connector) Start() {
	c.sender.start()
	c.receiver.start()
}

// Stop flips the stop flag, unsticks the sender and receiver, fails every
// context poll awaiter with ErrStopped, and joins both goroutines (§4.6
// shutdown contract). Contexts still sitting in the output queue — enqueued
// by Router.Handle but never dequeued by the sender — are a population
// ContextPoll.StopAll cannot see, since they are only Track'd once sent;
// Drain fails those too so no caller of Router.Handle blocks forever on a
// stopped connector.
func (c *Connector) Stop() {
	c.state.markClosed()
	c.sender.close()
	c.receiver.close()
	for _, ctx := range c.queue.Drain() {
		ctx.fail(ErrStopped)
	}
	c.poll.StopAll(ErrStopped)
	c.poll.Close()
	c.transport.Close()
}

// State returns the current connection state.
func (c *Connector) State() State {
	return c.state.get()
}

// RegisterGatewayFromConfig builds the register-gateway payload from the
// connector's configured gateway identity.
func RegisterGatewayFromConfig(cfg config.ConnectorConfig) gwmessage.RegisterGateway {
	return gwmessage.RegisterGateway{
		Gateway: gwmessage.GatewayInfo{
			ID:      cfg.GatewayInfo.ID,
			Variant: cfg.GatewayInfo.Variant,
			Version: cfg.GatewayInfo.Version,
		},
	}
}
