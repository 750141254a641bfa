package hubconn

import "sync"

// ConnectionState is the lifecycle of a single HttpConnection (C2). It is
// single-use: once Stopped it never transitions again.
type ConnectionState int

const (
	// StateInitial is the state of a freshly constructed HttpConnection.
	StateInitial ConnectionState = iota
	// StateConnecting is entered on Start and left on either Connected or Stopped.
	StateConnecting
	// StateConnected is entered once the transport reports it has opened.
	StateConnected
	// StateStopped is terminal.
	StateStopped
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ReconnectableState is the lifecycle of a ReconnectableConnection (C3).
type ReconnectableState int

const (
	StateDisconnected ReconnectableState = iota
	StateStarting
	StateReconnecting
	StateRunning
	StateStopping
)

func (s ReconnectableState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateStarting:
		return "starting"
	case StateReconnecting:
		return "reconnecting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// HandshakeStatus tracks whether the hub-protocol handshake for the current
// session still needs handling, and if so whether this session is a reconnect.
type HandshakeStatus struct {
	needsHandling bool
	isReconnect   bool
}

// NeedsHandling reports a handshake that has not yet been parsed from the wire.
func NeedsHandling(isReconnect bool) HandshakeStatus {
	return HandshakeStatus{needsHandling: true, isReconnect: isReconnect}
}

// Handled reports a handshake that has already completed for this session.
func Handled() HandshakeStatus {
	return HandshakeStatus{needsHandling: false}
}

// IsNeedsHandling reports whether the handshake for this session is still pending.
func (h HandshakeStatus) IsNeedsHandling() bool { return h.needsHandling }

// IsReconnect reports whether a pending handshake belongs to a reconnect episode.
// Meaningless when IsNeedsHandling is false.
func (h HandshakeStatus) IsReconnect() bool { return h.isReconnect }

// stateBox holds a generic comparable state value behind a mutex and exposes
// the CAS-style transition primitive described in spec §4.1 and §5: a
// transition succeeds only if the observed current value matches the
// expected "from" (or "from" is not supplied), returning the previous value.
//
// All state reads/writes on an HttpConnection/ReconnectableConnection are
// serialised through one of these, mirroring the teacher's addrConn.mu guard
// around addrConn.state.
type stateBox[T comparable] struct {
	mu  sync.Mutex
	val T
}

func newStateBox[T comparable](initial T) *stateBox[T] {
	return &stateBox[T]{val: initial}
}

func (b *stateBox[T]) get() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.val
}

// transition sets val to "to" if from is nil or *from == current value.
// It returns the previous value and whether the transition took place.
func (b *stateBox[T]) transition(from *T, to T) (previous T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	previous = b.val
	if from != nil && *from != b.val {
		return previous, false
	}
	b.val = to
	return previous, true
}

// transitionAny sets val to "to" if the current value is one of "from".
// Used for states like ReconnectableState where several source states share
// the same transition (e.g. any non-terminal state -> Stopping).
func (b *stateBox[T]) transitionAny(from []T, to T) (previous T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	previous = b.val
	for _, f := range from {
		if f == b.val {
			b.val = to
			return previous, true
		}
	}
	return previous, false
}
