package connector

import (
	"time"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
	"github.com/outpost-iot/btgateway/internal/infrastructure/config"
	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
)

// Receiver is the Receiver Loop (C8): it blocks until the connection is
// Ready, then polls for frames, dispatches them to the context poll, and
// demotes the shared state to Disconnected on any transport error or
// silence past the receive timeout. It never advances the state forward.
type Receiver struct {
	cfg       config.ConnectorConfig
	transport *Transport
	poll      *ContextPoll
	state     *sharedState
	logger    *logging.Logger

	stop chan struct{}
	done chan struct{}
}

func newReceiver(cfg config.ConnectorConfig, transport *Transport, poll *ContextPoll, state *sharedState, logger *logging.Logger) *Receiver {
	return &Receiver{
		cfg:       cfg,
		transport: transport,
		poll:      poll,
		state:     state,
		logger:    logger.With("component", "receiver"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (r *Receiver) start() {
	go r.run()
}

func (r *Receiver) close() {
	close(r.stop)
	<-r.done
}

func (r *Receiver) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		if !r.state.waitReadyOrClosed() {
			return
		}

		r.pollLoop()
	}
}

// pollLoop runs while the connection is Ready: poll(poll_timeout), and if
// ready, receive and dispatch; any transport error or silence past the
// receive timeout marks the connection disconnected and returns to the
// outer wait (§4.7).
func (r *Receiver) pollLoop() {
	lastActivity := time.Now()

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		if r.state.get() != Ready {
			return
		}

		if !r.transport.Poll(r.cfg.PollTimeout) {
			if time.Since(lastActivity) > r.cfg.ReceiveTimeout {
				r.markDisconnected("receive timeout")
				return
			}
			continue
		}

		frame, err := r.transport.Receive()
		if err != nil {
			r.markDisconnected(err.Error())
			return
		}
		lastActivity = time.Now()

		r.dispatch(frame)
	}
}

func (r *Receiver) dispatch(frame []byte) {
	env, err := gwmessage.Decode(frame)
	if err != nil {
		r.logger.Warn("malformed frame", "error", err)
		return
	}
	if env.ID == "" {
		r.logger.Debug("ignoring frame with no request id", "type", env.Type)
		return
	}
	r.poll.Complete(env.ID, env)
}

func (r *Receiver) markDisconnected(reason string) {
	r.logger.Warn("connection lost", "reason", reason)
	r.transport.Close()
	r.state.set(Disconnected)
}
