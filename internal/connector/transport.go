package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/outpost-iot/btgateway/internal/infrastructure/config"
	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
)

// Transport is the WebSocket Transport (C6): a single outbound socket,
// TLS-capable, with framed message I/O and receive-timeout polling. It is
// the connector's only component that speaks to the network.
//
// gorilla/websocket's usual pattern is a server accepting connections with
// a background reader goroutine feeding a channel; this dials outbound
// instead but keeps that same shape: Poll and Receive both read from the
// channel the reader goroutine fills. Poll holds the peek lock while it
// waits, so a concurrent Receive blocks until that Poll returns.
type Transport struct {
	cfg    config.ConnectorConfig
	logger *logging.Logger

	conn   *websocket.Conn
	sendMu sync.Mutex

	incoming   chan []byte
	readErr    chan error
	peekMu     sync.Mutex
	hasPeeked  bool
	peekedData []byte
	peekedErr  error
}

// NewTransport creates a Transport bound to cfg. Connect must be called
// before Send/Poll/Receive/Ping.
func NewTransport(cfg config.ConnectorConfig, logger *logging.Logger) *Transport {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transport{cfg: cfg, logger: logger.With("component", "transport")}
}

// Connect opens the TCP+TLS+WebSocket handshake at "/" (§4.5/§6) and
// starts the background reader.
func (t *Transport) Connect(ctx context.Context) error {
	scheme := "ws"
	if t.cfg.TLS.Enabled {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port), Path: "/"}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.SendTimeout,
		TLSClientConfig:  t.tlsConfig(),
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connector: dial %s: %w: %v", u.String(), ErrIO, err)
	}
	conn.SetReadLimit(int64(t.cfg.MaxMessageSize))

	t.conn = conn
	t.incoming = make(chan []byte, 8)
	t.readErr = make(chan error, 1)
	t.hasPeeked = false

	go t.readLoop()

	return nil
}

func (t *Transport) tlsConfig() *tls.Config {
	if !t.cfg.TLS.Enabled {
		return nil
	}
	cfg := &tls.Config{InsecureSkipVerify: t.cfg.TLS.InsecureSkipVerify} //nolint:gosec // explicit opt-in via config
	if t.cfg.TLS.CAFile == "" {
		return cfg
	}
	pool := x509.NewCertPool()
	if pem, err := os.ReadFile(t.cfg.TLS.CAFile); err == nil {
		pool.AppendCertsFromPEM(pem)
		cfg.RootCAs = pool
	} else {
		t.logger.Warn("could not read connector TLS CA file", "path", t.cfg.TLS.CAFile, "error", err)
	}
	return cfg
}

func (t *Transport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.readErr <- fmt.Errorf("connector: receive: %w: %v", classifyReadError(err), err)
			return
		}
		t.incoming <- data
	}
}

func classifyReadError(err error) error {
	if websocket.IsUnexpectedCloseError(err) {
		return ErrIO
	}
	if _, ok := err.(*websocket.CloseError); ok {
		return ErrIO
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrIO
	}
	return ErrProtocol
}

// Send writes one already-encoded frame atomically under the send lock.
// §8 invariant 5: while Ready, exactly one frame is in flight at any
// instant, enforced by this lock.
func (t *Transport) Send(frame []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.SendTimeout)); err != nil {
		return fmt.Errorf("connector: send deadline: %w: %v", ErrIO, err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("connector: send: %w: %v", ErrIO, err)
	}
	return nil
}

// Poll reports whether a frame (or a read error) is pending, waiting up
// to timeout. A true result is consumed by the next Receive call.
func (t *Transport) Poll(timeout time.Duration) bool {
	t.peekMu.Lock()
	defer t.peekMu.Unlock()

	if t.hasPeeked {
		return true
	}

	select {
	case data := <-t.incoming:
		t.peekedData, t.hasPeeked = data, true
		return true
	case err := <-t.readErr:
		t.peekedErr, t.hasPeeked = err, true
		return true
	case <-time.After(timeout):
		return false
	}
}

// Receive reads one message, blocking up to the configured receive
// timeout if Poll has not already found one waiting.
func (t *Transport) Receive() ([]byte, error) {
	t.peekMu.Lock()
	if t.hasPeeked {
		data, err := t.peekedData, t.peekedErr
		t.peekedData, t.peekedErr, t.hasPeeked = nil, nil, false
		t.peekMu.Unlock()
		return data, err
	}
	t.peekMu.Unlock()

	select {
	case data := <-t.incoming:
		return data, nil
	case err := <-t.readErr:
		return nil, err
	case <-time.After(t.cfg.ReceiveTimeout):
		return nil, fmt.Errorf("connector: receive: %w", ErrTimeout)
	}
}

// Ping sends a WebSocket ping frame.
func (t *Transport) Ping() error {
	deadline := time.Now().Add(t.cfg.SendTimeout)
	if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("connector: ping: %w: %v", ErrIO, err)
	}
	return nil
}

// Close is best-effort, per §4.5.
func (t *Transport) Close() {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close()
}
