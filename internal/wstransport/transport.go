// Package wstransport implements the concrete WebSocket Transport (C9) that
// hubconn.TransportFactory closures construct. It is a separate package so
// applications that supply their own Transport never have to link
// gorilla/websocket.
package wstransport

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	hubconn "github.com/hubconn/hubconn-go"
)

// Transport is a gorilla/websocket-backed implementation of hubconn.Transport.
// One instance handles exactly one connection attempt; the owning
// HttpConnection discards it on close and asks the factory for a fresh one
// on reconnect.
type Transport struct {
	logger *zap.SugaredLogger

	mu        sync.Mutex
	conn      *websocket.Conn
	delegate  hubconn.TransportDelegate
	closeOnce sync.Once

	writeMu sync.Mutex
}

// New constructs a Transport. logger may be nil.
func New(logger *zap.SugaredLogger) *Transport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Transport{logger: logger}
}

// NewFactory returns a hubconn.TransportFactory that always selects the
// WebSockets entry from the negotiated transport list, erroring if the
// server never offered one.
func NewFactory(logger *zap.SugaredLogger) hubconn.TransportFactory {
	return func(available []hubconn.AvailableTransport) (hubconn.Transport, error) {
		for _, t := range available {
			if strings.EqualFold(t.Transport, "WebSockets") {
				return New(logger), nil
			}
		}
		return nil, errors.New("wstransport: server did not offer a WebSockets transport")
	}
}

func (t *Transport) Start(ctx context.Context, rawURL string, opts hubconn.TransportConnectOptions, delegate hubconn.TransportDelegate) error {
	wsURL, err := toWebSocketURL(rawURL)
	if err != nil {
		return err
	}

	dialer := *websocket.DefaultDialer
	if opts.AuthenticationChallengeHandler != nil {
		dialer.TLSClientConfig = &tls.Config{
			GetClientCertificate: opts.AuthenticationChallengeHandler,
		}
	}

	header := http.Header{}
	for k, values := range opts.Headers {
		for _, v := range values {
			header.Add(k, v)
		}
	}
	if opts.AccessTokenProvider != nil {
		token, terr := opts.AccessTokenProvider()
		if terr != nil {
			return errors.Wrap(terr, "wstransport: access token provider failed")
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return errors.Wrap(err, "wstransport: dial failed")
	}
	if opts.MaximumMessageSize > 0 {
		conn.SetReadLimit(int64(opts.MaximumMessageSize))
	}

	t.mu.Lock()
	t.conn = conn
	t.delegate = delegate
	t.mu.Unlock()

	delegate.TransportDidOpen()
	go t.readPump()
	return nil
}

func (t *Transport) readPump() {
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.finish(err)
			return
		}
		t.mu.Lock()
		delegate := t.delegate
		t.mu.Unlock()
		delegate.TransportDidReceiveData(data)
	}
}

// finish runs exactly once per Transport: it tears the socket down and
// reports the outcome to the delegate, normalising a clean server-initiated
// close to a nil error.
func (t *Transport) finish(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		conn := t.conn
		delegate := t.delegate
		t.conn = nil
		t.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			err = nil
		}
		if delegate != nil {
			delegate.TransportDidClose(err)
		}
	})
}

func (t *Transport) Send(data []byte, cb func(err error)) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		go cb(errors.New("wstransport: send on a closed transport"))
		return
	}
	go func() {
		t.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		t.writeMu.Unlock()
		cb(err)
	}()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	t.writeMu.Unlock()
	t.finish(nil)
	return nil
}

// InherentKeepAlive reports false: unlike e.g. gRPC's HTTP/2 pings, a plain
// WebSocket connection produces no traffic of its own, so the hub-level
// keep-alive ping (keepalive.go) is still needed.
func (t *Transport) InherentKeepAlive() bool { return false }

func toWebSocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "wstransport: invalid URL")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already correct
	default:
		return "", errors.Errorf("wstransport: unsupported URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}
