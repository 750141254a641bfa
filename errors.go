package hubconn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind discriminates the logical error categories from spec §7 so
// callers can branch on cause rather than parse error strings.
type ErrorKind int

const (
	// KindInvalidState marks an operation issued in a disallowed state.
	KindInvalidState ErrorKind = iota
	// KindInvalidOperation marks a protocol misuse, e.g. an empty stream handle.
	KindInvalidOperation
	// KindInvalidNegotiationResponse marks a malformed negotiation payload.
	KindInvalidNegotiationResponse
	// KindWebError marks a negotiation or WebSocket HTTP failure.
	KindWebError
	// KindConnectionIsBeingClosed marks an operation that raced the closing transition.
	KindConnectionIsBeingClosed
	// KindConnectionIsReconnecting marks a send issued during reconnect.
	KindConnectionIsReconnecting
	// KindServerClose marks a close initiated by the server.
	KindServerClose
	// KindHubInvocationCancelled is the fallback cause for pending calls
	// aborted by a close without a specific error.
	KindHubInvocationCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindInvalidNegotiationResponse:
		return "invalid_negotiation_response"
	case KindWebError:
		return "web_error"
	case KindConnectionIsBeingClosed:
		return "connection_is_being_closed"
	case KindConnectionIsReconnecting:
		return "connection_is_reconnecting"
	case KindServerClose:
		return "server_close"
	case KindHubInvocationCancelled:
		return "hub_invocation_cancelled"
	default:
		return "unknown"
	}
}

// HubError is the concrete error type returned across the connection,
// reconnect, and hub layers. Use errors.As to recover the Kind and
// StatusCode.
type HubError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int // populated only for KindWebError
	cause      error
}

func (e *HubError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// Unwrap lets errors.Is/As reach a wrapped cause, if any.
func (e *HubError) Unwrap() error { return e.cause }

// Is reports whether target is a *HubError with the same Kind, so that
// errors.Is(err, ErrInvalidState) style checks work against sentinels below.
func (e *HubError) Is(target error) bool {
	other, ok := target.(*HubError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func newHubError(kind ErrorKind, message string) *HubError {
	return &HubError{Kind: kind, Message: message}
}

func wrapHubError(kind ErrorKind, cause error, message string) *HubError {
	return &HubError{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// Sentinel values usable with errors.Is(err, hubconn.ErrInvalidState).
var (
	ErrInvalidState             = newHubError(KindInvalidState, "invalid state")
	ErrConnectionIsBeingClosed  = newHubError(KindConnectionIsBeingClosed, "connection is being closed")
	ErrConnectionIsReconnecting = newHubError(KindConnectionIsReconnecting, "connection is reconnecting")
	ErrHubInvocationCancelled   = newHubError(KindHubInvocationCancelled, "hub invocation cancelled")
)

func errInvalidOperation(message string) error {
	return newHubError(KindInvalidOperation, message)
}

func errInvalidNegotiationResponse(message string) error {
	return newHubError(KindInvalidNegotiationResponse, message)
}

func errWebError(statusCode int) error {
	return &HubError{
		Kind:       KindWebError,
		Message:    fmt.Sprintf("unexpected status code %d returned from negotiate", statusCode),
		StatusCode: statusCode,
	}
}

func errServerClose(message string) error {
	return newHubError(KindServerClose, message)
}
