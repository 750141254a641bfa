package hubconn

import (
	"crypto/tls"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// hubConnectionOptions collects everything a HubConnectionBuilder assembles
// across C2/C3/C6 before constructing a HubConnection. HubConnectionOption
// values mutate this struct; it is never exposed directly.
type hubConnectionOptions struct {
	url                 string
	skipNegotiation     bool
	transportFactory    TransportFactory
	accessTokenProvider AccessTokenProvider
	headers             http.Header
	httpClientFactory   HTTPClientFactory
	maxMessageSize      int
	tlsChallengeHandler func(*tls.CertificateRequestInfo) (*tls.Certificate, error)

	protocol          HubProtocol
	keepAliveInterval time.Duration
	reconnectPolicy   ReconnectPolicy // nil means no automatic reconnect

	executor Executor
	logger   *zap.SugaredLogger
}

func defaultHubConnectionOptions(url string) hubConnectionOptions {
	return hubConnectionOptions{
		url:     url,
		headers: make(http.Header),
	}
}

// HubConnectionOption configures a HubConnectionBuilder. Functional options
// are the idiom this module uses everywhere configuration has more than a
// couple of fields, mirroring the teacher's DialOption shape.
type HubConnectionOption interface {
	apply(*hubConnectionOptions)
}

type funcHubConnectionOption struct {
	f func(*hubConnectionOptions)
}

func (o *funcHubConnectionOption) apply(opts *hubConnectionOptions) { o.f(opts) }

func newFuncHubConnectionOption(f func(*hubConnectionOptions)) HubConnectionOption {
	return &funcHubConnectionOption{f: f}
}

// WithTransportFactory sets the TransportFactory used to construct the
// concrete Transport once negotiation (or SkipNegotiation) has determined
// which transports are available.
func WithTransportFactory(factory TransportFactory) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.transportFactory = factory
	})
}

// WithSkipNegotiation bypasses the HTTP negotiate round-trip entirely,
// connecting the WebSocket transport directly against url. Only valid when
// exactly one transport (WebSockets) is supported server-side.
func WithSkipNegotiation() HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.skipNegotiation = true
	})
}

// WithAccessTokenProvider supplies a bearer token fetched fresh on every
// negotiate/connect attempt.
func WithAccessTokenProvider(provider AccessTokenProvider) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.accessTokenProvider = provider
	})
}

// WithHeader adds a static HTTP header sent with negotiation and transport
// connect requests.
func WithHeader(key, value string) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.headers.Add(key, value)
	})
}

// WithHTTPClientFactory overrides the *http.Client used for the negotiate
// HTTP round-trip.
func WithHTTPClientFactory(factory HTTPClientFactory) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.httpClientFactory = factory
	})
}

// WithMaximumMessageSize caps the size of a single inbound WebSocket
// message; 0 leaves the transport's own default in place.
func WithMaximumMessageSize(bytes int) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.maxMessageSize = bytes
	})
}

// WithTLSAuthenticationChallengeHandler wires a client-certificate callback
// into the transport's TLS config, the adapted descendant of the teacher's
// ed25519 transport-credentials concern (see DESIGN.md).
func WithTLSAuthenticationChallengeHandler(handler func(*tls.CertificateRequestInfo) (*tls.Certificate, error)) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.tlsChallengeHandler = handler
	})
}

// WithHubProtocol selects the wire codec (C5/C8). Defaults to
// NewJSONHubProtocol.
func WithHubProtocol(protocol HubProtocol) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.protocol = protocol
	})
}

// WithKeepAliveInterval enables the client-side keep-alive ping (C6 §4.3.4).
// A zero interval (the default) disables it.
func WithKeepAliveInterval(interval time.Duration) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.keepAliveInterval = interval
	})
}

// WithAutomaticReconnect enables automatic reconnection driven by policy
// (C3/C14). Without this option the connection never reconnects on its own;
// a dropped transport simply closes (NoRetryPolicy semantics).
func WithAutomaticReconnect(policy ReconnectPolicy) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.reconnectPolicy = policy
	})
}

// WithExecutor overrides the default goroutine-per-callback Executor (C7).
func WithExecutor(executor Executor) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.executor = executor
	})
}

// WithLogger attaches structured logging (C13) to every layer of the
// resulting HubConnection.
func WithLogger(logger *zap.SugaredLogger) HubConnectionOption {
	return newFuncHubConnectionOption(func(o *hubConnectionOptions) {
		o.logger = logger
	})
}
