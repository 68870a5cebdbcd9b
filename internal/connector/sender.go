package connector

import (
	"context"
	"time"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
	"github.com/outpost-iot/btgateway/internal/infrastructure/config"
	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
)

// Sender is the Sender Loop (C7): connect, register, drain the output
// queue, and heartbeat while idle. It owns the reconnect policy and is
// the only component that advances the shared connection state forward.
type Sender struct {
	cfg       config.ConnectorConfig
	transport *Transport
	queue     *OutputQueue
	poll      *ContextPoll
	state     *sharedState
	logger    *logging.Logger

	stop chan struct{}
	done chan struct{}
}

func newSender(cfg config.ConnectorConfig, transport *Transport, queue *OutputQueue, poll *ContextPoll, state *sharedState, logger *logging.Logger) *Sender {
	return &Sender{
		cfg:       cfg,
		transport: transport,
		queue:     queue,
		poll:      poll,
		state:     state,
		logger:    logger.With("component", "sender"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Sender) start() {
	go s.run()
}

func (s *Sender) close() {
	close(s.stop)
	<-s.done
}

func (s *Sender) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		switch s.state.get() {
		case Ready:
			s.readyLoop()
		default:
			s.state.set(Disconnected)
			if !s.connectAndRegister() {
				return // stop was requested mid-reconnect
			}
		}
	}
}

// connectAndRegister runs the Disconnected -> Connecting -> Registering ->
// Ready transitions, sleeping retry_connect_timeout and looping on any
// failure, per the sender FSM table in §4.6. It returns false only if the
// connector was stopped while waiting.
func (s *Sender) connectAndRegister() bool {
	for {
		select {
		case <-s.stop:
			return false
		default:
		}

		s.state.set(Connecting)

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
		err := s.transport.Connect(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("connect failed", "error", err)
			s.state.set(Disconnected)
			if !s.sleepInterruptible(s.cfg.RetryConnectTimeout) {
				return false
			}
			continue
		}

		s.state.set(Registering)
		if err := s.register(); err != nil {
			s.logger.Warn("registration failed", "error", err)
			s.transport.Close()
			s.state.set(Disconnected)
			if !s.sleepInterruptible(s.cfg.RetryConnectTimeout) {
				return false
			}
			continue
		}

		s.state.set(Ready)
		return true
	}
}

func (s *Sender) register() error {
	payload, err := gwmessage.EncodePayload(RegisterGatewayFromConfig(s.cfg))
	if err != nil {
		return err
	}
	frame, err := gwmessage.Encode(gwmessage.Envelope{Type: gwmessage.TypeRegisterGateway, Payload: payload})
	if err != nil {
		return err
	}
	if err := s.transport.Send(frame); err != nil {
		return err
	}

	reply, err := s.transport.Receive()
	if err != nil {
		return err
	}
	env, err := gwmessage.Decode(reply)
	if err != nil {
		return err
	}
	if env.Type != gwmessage.TypeRegisterAccept {
		return ErrProtocol
	}
	var result gwmessage.RegisterResult
	if err := gwmessage.DecodePayload(env.Payload, &result); err != nil {
		return err
	}
	if !result.Accepted {
		return ErrProtocol
	}
	return nil
}

// readyLoop implements the Ready rows of the FSM table: work-available
// sends the next queued context and tracks it in the context poll;
// idle-timeout emits a ping. It returns as soon as the state is demoted
// out of Ready by the receiver, or the connector is stopped.
func (s *Sender) readyLoop() {
	idlePing := s.cfg.ResendTimeout / 2
	if idlePing <= 0 {
		idlePing = s.cfg.SendTimeout
	}

	for {
		select {
		case <-s.stop:
			s.transport.Close()
			s.state.set(Disconnected)
			return
		default:
		}

		if s.state.get() != Ready {
			return
		}

		ctx, ok := s.queue.Dequeue(idlePing)
		if !ok {
			if err := s.transport.Ping(); err != nil {
				s.logger.Warn("ping failed", "error", err)
				s.transport.Close()
				s.state.set(Disconnected)
				return
			}
			continue
		}

		frame, err := gwmessage.Encode(ctx.Message)
		if err != nil {
			ctx.fail(err)
			continue
		}
		if err := s.transport.Send(frame); err != nil {
			s.logger.Warn("send failed", "error", err, "request_id", ctx.ID)
			s.queue.Enqueue(ctx)
			s.transport.Close()
			s.state.set(Disconnected)
			return
		}
		s.poll.Track(ctx)
	}
}

func (s *Sender) sleepInterruptible(d time.Duration) bool {
	select {
	case <-s.stop:
		return false
	case <-time.After(d):
		return true
	}
}
