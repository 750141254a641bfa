package hubconn

import "github.com/hubconn/hubconn-go/internal/negotiate"

// AvailableTransport, NegotiationResponse, and Redirection are the public
// aliases of the negotiate package's wire types (spec §3's Negotiation
// Response, §6's negotiation payload). Kept as aliases rather than
// redeclared structs so HttpConnection can pass values between the two
// packages without conversion.
type (
	AvailableTransport  = negotiate.AvailableTransport
	NegotiationResponse = negotiate.Response
	Redirection         = negotiate.Redirection
	HTTPClientFactory   = negotiate.HTTPClientFactory
	AccessTokenProvider = negotiate.AccessTokenProvider
	negotiationResult   = negotiate.Result
)

// NegotiationStatusError reports a non-1xx, non-200 negotiate response; its
// StatusCode maps onto a KindWebError HubError in connection.go.
type NegotiationStatusError = negotiate.StatusError
