package hubconn

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hubconn/hubconn-go/internal/negotiate"
	"github.com/hubconn/hubconn-go/internal/serialqueue"
)

// HttpConnectionDelegate receives the one-way notifications an HttpConnection
// emits (spec §4.1). Implementations must not call back into the
// HttpConnection from inside these methods.
type HttpConnectionDelegate interface {
	ConnectionDidFailToOpen(err error)
	TransportConnectionDidOpen()
	ConnectionDidReceiveData(data []byte)
	ConnectionDidClose(err error)
}

// HttpConnectionOptions configures an HttpConnection (spec §6's
// configuration surface, the slice of it owned by C2).
type HttpConnectionOptions struct {
	SkipNegotiation                bool
	TransportFactory               TransportFactory
	AccessTokenProvider            AccessTokenProvider
	Headers                        http.Header
	HTTPClientFactory              HTTPClientFactory
	MaximumWebsocketMessageSize    int
	AuthenticationChallengeHandler func(*tls.CertificateRequestInfo) (*tls.Certificate, error)
	Executor                       Executor
	Logger                         *zap.SugaredLogger
}

// HttpConnection owns one transport attempt: negotiation, transport start,
// connected, stop (C2). It is single-use: once Stopped it never runs again.
// A fresh instance is created by ReconnectableConnection's factory for each
// connection attempt.
type HttpConnection struct {
	url    string
	opts   HttpConnectionOptions
	logger *zap.SugaredLogger

	negotiateClient *negotiate.Client

	state *stateBox[ConnectionState]

	mu           sync.Mutex
	transport    Transport
	connectionID string
	startGate    *serialqueue.Barrier
	stopError    error
	everStarted  bool

	delegate HttpConnectionDelegate
	executor Executor
}

// NewHttpConnection constructs an HttpConnection targeting url. delegate
// receives lifecycle callbacks; it is not invoked until Start is called.
func NewHttpConnection(url string, opts HttpConnectionOptions, delegate HttpConnectionDelegate) *HttpConnection {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	executor := opts.Executor
	if executor == nil {
		executor = defaultExecutor
	}
	return &HttpConnection{
		url:      url,
		opts:     opts,
		logger:   logger,
		state:    newStateBox(StateInitial),
		delegate: delegate,
		executor: executor,
		negotiateClient: &negotiate.Client{
			HTTPClientFactory:   opts.HTTPClientFactory,
			Headers:             opts.Headers,
			AccessTokenProvider: opts.AccessTokenProvider,
		},
	}
}

// State returns the current connection state.
func (c *HttpConnection) State() ConnectionState { return c.state.get() }

// Start begins negotiation (unless skipped) followed by transport dial.
// resetRetryAttempts is accepted for signature symmetry with
// ReconnectableConnection.Start (which actually consumes it to reset its own
// retry counter); a single HttpConnection has no retry state of its own, so
// the value is otherwise unused here.
func (c *HttpConnection) Start(ctx context.Context, resetRetryAttempts bool) {
	initial := StateInitial
	if _, ok := c.state.transition(&initial, StateConnecting); !ok {
		c.dispatchFailToOpen(ErrInvalidState)
		return
	}

	c.mu.Lock()
	c.everStarted = true
	gate := serialqueue.NewBarrier()
	c.startGate = gate
	c.mu.Unlock()

	go c.runStart(ctx, gate)
}

func (c *HttpConnection) runStart(ctx context.Context, gate *serialqueue.Barrier) {
	defer gate.Open()

	transport, connectionID, connectURL, err := c.negotiateAndBuildTransport(ctx)
	if err != nil {
		connecting := StateConnecting
		if _, ok := c.state.transition(&connecting, StateStopped); ok {
			c.dispatchFailToOpen(err)
		}
		return
	}

	c.mu.Lock()
	c.transport = transport
	c.connectionID = connectionID
	c.mu.Unlock()

	connectOpts := TransportConnectOptions{
		Headers:                        c.opts.Headers,
		AccessTokenProvider:            c.opts.AccessTokenProvider,
		MaximumMessageSize:             c.opts.MaximumWebsocketMessageSize,
		AuthenticationChallengeHandler: c.opts.AuthenticationChallengeHandler,
	}
	if startErr := transport.Start(ctx, connectURL, connectOpts, c); startErr != nil {
		connecting := StateConnecting
		if _, ok := c.state.transition(&connecting, StateStopped); ok {
			c.dispatchFailToOpen(startErr)
		}
		return
	}
	// Remaining transitions happen via the TransportDelegate callbacks
	// (TransportDidOpen / TransportDidClose), which also call
	// c.leaveStartGate(). The deferred gate.Open() above runs on this path
	// too, as soon as transport.Start has returned; only the first Open has
	// any effect.
}

// negotiateAndBuildTransport runs spec §4.1's negotiation algorithm and
// returns a constructed (but not yet started) Transport plus the URL it
// should connect to.
func (c *HttpConnection) negotiateAndBuildTransport(ctx context.Context) (Transport, string, string, error) {
	if c.opts.SkipNegotiation {
		factory := c.opts.TransportFactory
		if factory == nil {
			return nil, "", "", errors.New("hubconn: skipNegotiation requires a TransportFactory")
		}
		transport, err := factory([]AvailableTransport{
			{Transport: "WebSockets", TransferFormats: []string{"Text", "Binary"}},
		})
		if err != nil {
			// spec §9 Open Question #2: this must propagate, not be
			// swallowed, unlike the source this is grounded on.
			return nil, "", "", err
		}
		return transport, "", c.url, nil
	}

	result, err := c.negotiateClient.Negotiate(ctx, c.url)
	if err != nil {
		var statusErr *NegotiationStatusError
		if errors.As(err, &statusErr) {
			return nil, "", "", errWebError(statusErr.StatusCode)
		}
		return nil, "", "", err
	}
	if result.Response == nil {
		return nil, "", "", errInvalidNegotiationResponse("negotiate returned neither a redirection nor a response")
	}

	c.url = result.URL
	if result.AccessToken != "" {
		token := result.AccessToken
		c.opts.AccessTokenProvider = func() (string, error) { return token, nil }
	}

	factory := c.opts.TransportFactory
	if factory == nil {
		return nil, "", "", errors.New("hubconn: negotiation succeeded but no TransportFactory was configured")
	}
	transport, err := factory(result.Response.AvailableTransports)
	if err != nil {
		return nil, "", "", err
	}

	connectionToken := result.Response.ConnectionToken
	if connectionToken == "" {
		connectionToken = result.Response.ConnectionID
	}
	startURL := c.url
	if connectionToken != "" {
		startURL = appendIDQueryParam(startURL, connectionToken)
	}

	return transport, result.Response.ConnectionID, startURL, nil
}

func appendIDQueryParam(rawURL, id string) string {
	sep := "?"
	if containsQuery(rawURL) {
		sep = "&"
	}
	return rawURL + sep + "id=" + id
}

func containsQuery(rawURL string) bool {
	for _, r := range rawURL {
		if r == '?' {
			return true
		}
	}
	return false
}

// Send writes data over the current transport. Valid only once Connected;
// otherwise cb observes ErrInvalidState asynchronously, never synchronously
// (spec §4.1).
func (c *HttpConnection) Send(data []byte, cb func(err error)) {
	if c.state.get() != StateConnected {
		c.executor.Execute(func() { cb(ErrInvalidState) })
		return
	}
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		c.executor.Execute(func() { cb(ErrInvalidState) })
		return
	}
	transport.Send(data, cb)
}

// Stop idempotently tears the connection down. If Start is still racing to
// open a transport, Stop blocks on the single-latch start gate so teardown
// never observes a half-initialised transport (spec §4.1, §9).
func (c *HttpConnection) Stop(err error) {
	c.mu.Lock()
	started := c.everStarted
	gate := c.startGate
	c.mu.Unlock()

	if !started {
		c.logger.Debug("hubconn: stop called on a connection that was never started")
		return
	}

	previous, ok := c.state.transition(nil, StateStopped)
	if !ok || previous == StateStopped {
		c.logger.Debug("hubconn: stop called on an already-stopped connection")
		return
	}

	c.mu.Lock()
	c.stopError = err
	c.mu.Unlock()

	if gate != nil {
		gate.Wait()
	}

	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
		return
	}

	// No transport ever came up (e.g. Stop raced negotiation); dispatch the
	// close notification directly since TransportDidClose will never fire.
	c.dispatchClose(err)
}

func (c *HttpConnection) dispatchFailToOpen(err error) {
	c.executor.Execute(func() { c.delegate.ConnectionDidFailToOpen(err) })
}

func (c *HttpConnection) dispatchClose(err error) {
	c.executor.Execute(func() { c.delegate.ConnectionDidClose(err) })
}

// --- TransportDelegate ---

func (c *HttpConnection) TransportDidOpen() {
	connecting := StateConnecting
	if _, ok := c.state.transition(&connecting, StateConnected); !ok {
		// We raced a Stop: state is already Stopped. Leave the gate (the
		// caller blocked in Stop is waiting for exactly this) and emit
		// nothing further — Stop itself will dispatch ConnectionDidClose
		// once it observes the closed transport.
		c.leaveStartGate()
		return
	}
	c.leaveStartGate()
	c.executor.Execute(func() { c.delegate.TransportConnectionDidOpen() })
}

func (c *HttpConnection) TransportDidReceiveData(data []byte) {
	c.executor.Execute(func() { c.delegate.ConnectionDidReceiveData(data) })
}

func (c *HttpConnection) TransportDidClose(err error) {
	previous, _ := c.state.transition(nil, StateStopped)

	c.mu.Lock()
	stopErr := c.stopError
	c.mu.Unlock()

	reported := err
	if stopErr != nil {
		reported = stopErr
	}

	if previous == StateConnecting {
		c.leaveStartGate()
		c.dispatchFailToOpen(reported)
		return
	}

	c.mu.Lock()
	c.connectionID = ""
	c.mu.Unlock()
	c.dispatchClose(reported)
}

// InherentKeepAlive reports whether the currently connected Transport already
// produces its own periodic traffic, making HubConnection's application-level
// ping redundant (spec §4.3.4). False before a transport has connected.
func (c *HttpConnection) InherentKeepAlive() bool {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	return transport != nil && transport.InherentKeepAlive()
}

func (c *HttpConnection) leaveStartGate() {
	c.mu.Lock()
	gate := c.startGate
	c.mu.Unlock()
	if gate != nil {
		gate.Open()
	}
}
