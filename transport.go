package hubconn

import (
	"context"
	"crypto/tls"
	"net/http"
)

// TransferFormat is the wire encoding a transport/protocol pair negotiates.
type TransferFormat int

const (
	TransferFormatText TransferFormat = iota
	TransferFormatBinary
)

func (f TransferFormat) String() string {
	if f == TransferFormatBinary {
		return "Binary"
	}
	return "Text"
}

// TransportDelegate receives the one-way notifications a Transport emits
// about its own lifecycle. Implementations must never block in these
// callbacks for long, and must not call back into the Transport from inside
// them (see spec §9 on cyclic references / guarding against the owner
// already being gone).
type TransportDelegate interface {
	TransportDidOpen()
	TransportDidReceiveData(data []byte)
	TransportDidClose(err error)
}

// TransportConnectOptions carries the connect-time configuration a Transport
// needs that is only known once negotiation has completed (spec §6): the
// possibly-redirected headers/access token, the message size cap, and the
// TLS auth-challenge hook.
type TransportConnectOptions struct {
	Headers                        http.Header
	AccessTokenProvider            AccessTokenProvider
	MaximumMessageSize             int
	AuthenticationChallengeHandler func(*tls.CertificateRequestInfo) (*tls.Certificate, error)
}

// Transport is the external collaborator contract of C1: a duplex
// byte-message channel. Concrete implementations (see internal/wstransport)
// are out of this core's scope per spec §1; HttpConnection only drives this
// interface.
type Transport interface {
	// Start dials the transport at url and begins delivering callbacks to
	// delegate. It must not return until the dial has either succeeded or
	// failed, i.e. it is not itself asynchronous.
	Start(ctx context.Context, url string, opts TransportConnectOptions, delegate TransportDelegate) error

	// Send writes data as a single message. cb is always invoked
	// asynchronously, never from within Send itself.
	Send(data []byte, cb func(err error))

	// Close closes the underlying socket. It is safe to call multiple times.
	Close() error

	// InherentKeepAlive reports whether this transport already produces
	// periodic traffic, making the hub-level keep-alive ping redundant.
	InherentKeepAlive() bool
}

// TransportFactory selects and constructs a Transport for one of the
// available transports returned by negotiation. It is called after
// negotiation completes, before Start; connect-time options (headers,
// access token, size caps) are supplied separately to Start itself so a
// redirection's overridden access token is always current.
type TransportFactory func(availableTransports []AvailableTransport) (Transport, error)
