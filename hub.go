package hubconn

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hubconn/hubconn-go/internal/serialqueue"
)

// HubConnectionDelegate receives the hub-level lifecycle events: the initial
// handshake completing, the connection closing for good, and the two
// reconnect-episode bracket events forwarded from the underlying
// ReconnectableConnection (spec §4.3).
type HubConnectionDelegate interface {
	HubConnectionDidOpen()
	HubConnectionDidClose(err error)
	HubConnectionWillReconnect(err error)
	HubConnectionDidReconnect()
	HubConnectionReconnectAttempt(attempt uint32)
}

// transportConnection is the surface HubConnection drives underneath it —
// satisfied by both *HttpConnection (no auto-reconnect) and
// *ReconnectableConnection (C3), so a HubConnectionBuilder can wire either.
type transportConnection interface {
	Start(ctx context.Context, resetRetryAttempts bool)
	Send(data []byte, cb func(err error))
	Stop(err error)
	InherentKeepAlive() bool
}

// HubConnectionOptions configures a HubConnection (the hub-level slice of
// spec §6's configuration surface).
type HubConnectionOptions struct {
	Protocol          HubProtocol
	KeepAliveInterval time.Duration
	Executor          Executor
	Logger            *zap.SugaredLogger
}

// HubConnection is the core RPC state machine (C6): it owns the handshake,
// demultiplexes inbound hub messages onto the invocation/method registries,
// and serializes outbound invoke/stream/send/cancel calls through the active
// HubProtocol and transportConnection.
type HubConnection struct {
	conn     transportConnection
	protocol HubProtocol
	logger   *zap.SugaredLogger
	executor Executor
	delegate HubConnectionDelegate

	serialQueue *serialqueue.Queue
	invocations *invocationRegistry
	methods     *methodRegistry
	keepAlive   *keepAliveScheduler

	// handshakeStatus and handshakeBuf are only ever touched from inside
	// serialQueue-submitted closures, so they need no lock of their own.
	handshakeStatus HandshakeStatus
	handshakeBuf    []byte

	// handshakeHandled answers "has the handshake ever completed", which is
	// a different question than handshakeStatus.IsNeedsHandling() (is a
	// handshake response currently pending parse) and needs to be readable
	// from arbitrary caller goroutines (Send/Invoke/Stream), not just from
	// inside serialQueue closures.
	handshakeHandled atomic.Bool
}

// NewHubConnection wires conn (an *HttpConnection or *ReconnectableConnection)
// into a ready HubConnection. delegate receives the hub-level lifecycle
// events; conn's own delegate must be this HubConnection (the
// HubConnectionBuilder in builder.go arranges this).
func NewHubConnection(conn transportConnection, delegate HubConnectionDelegate, opts HubConnectionOptions) *HubConnection {
	protocol := opts.Protocol
	if protocol == nil {
		protocol = NewJSONHubProtocol()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	executor := opts.Executor
	if executor == nil {
		executor = defaultExecutor
	}

	h := &HubConnection{
		conn:            conn,
		protocol:        protocol,
		logger:          logger,
		executor:        executor,
		delegate:        delegate,
		serialQueue:     serialqueue.New(16),
		invocations:     newInvocationRegistry(),
		methods:         newMethodRegistry(logger),
		handshakeStatus: Handled(),
	}
	if opts.KeepAliveInterval > 0 {
		h.keepAlive = newKeepAliveScheduler(opts.KeepAliveInterval, h.sendPing)
	}
	return h
}

// Start begins the underlying connection. Handshake initiation happens
// asynchronously once the transport reports it has opened.
func (h *HubConnection) Start(ctx context.Context) {
	h.conn.Start(ctx, true)
}

// Stop tears the connection down for good.
func (h *HubConnection) Stop() {
	h.conn.Stop(nil)
}

// On registers handler to be invoked for inbound calls to the client method
// named name, replacing any previously registered handler for that name.
func (h *HubConnection) On(name string, handler clientMethodHandler) {
	h.methods.register(name, handler)
}

// Remove unregisters a previously registered client method handler.
func (h *HubConnection) Remove(name string) {
	h.methods.remove(name)
}

// Send issues a fire-and-forget invocation: no completion is expected or
// tracked.
func (h *HubConnection) Send(target string, args []interface{}) error {
	if !h.handshakeHandled.Load() {
		return errInvalidOperation("send called before the handshake was handled")
	}
	return h.writeMessage(InvocationMessage{
		Type:      MessageTypeInvocation,
		Target:    target,
		Arguments: args,
	})
}

// Invoke issues an invocation and registers onResult to run once the
// server's CompletionMessage for it arrives.
func (h *HubConnection) Invoke(target string, args []interface{}, onResult func(result []byte, hasResult bool, err error)) (string, error) {
	if !h.handshakeHandled.Load() {
		return "", errInvalidOperation("invoke called before the handshake was handled")
	}
	id := h.invocations.nextID()
	h.invocations.register(id, newResultInvocation(onResult))

	err := h.writeMessage(InvocationMessage{
		Type:         MessageTypeInvocation,
		Target:       target,
		Arguments:    args,
		InvocationID: id,
	})
	if err != nil {
		h.invocations.remove(id)
		return "", err
	}
	return id, nil
}

// Stream issues a streaming invocation. onItem runs for each StreamItemMessage
// delivered, onComplete runs exactly once when the stream ends (successfully
// or with an error).
func (h *HubConnection) Stream(target string, args []interface{}, onItem func(item []byte), onComplete func(err error)) (string, error) {
	if !h.handshakeHandled.Load() {
		return "", errInvalidOperation("stream called before the handshake was handled")
	}
	id := h.invocations.nextID()
	h.invocations.register(id, newStreamInvocation(onItem, onComplete))

	err := h.writeMessage(StreamInvocationMessage{
		Type:         MessageTypeStreamInvocation,
		Target:       target,
		Arguments:    args,
		InvocationID: id,
	})
	if err != nil {
		h.invocations.remove(id)
		return "", err
	}
	return id, nil
}

// CancelStreamInvocation asks the server to stop a streaming invocation
// previously started with Stream.
func (h *HubConnection) CancelStreamInvocation(invocationID string) error {
	if invocationID == "" {
		return errInvalidOperation("cancelStreamInvocation requires a non-empty invocation id")
	}
	if !h.handshakeHandled.Load() {
		return errInvalidOperation("cancelStreamInvocation called before the handshake was handled")
	}
	return h.writeMessage(CancelInvocationMessage{
		Type:         MessageTypeCancelInvocation,
		InvocationID: invocationID,
	})
}

func (h *HubConnection) writeMessage(msg HubMessage) error {
	data, err := h.protocol.WriteMessage(msg)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	h.conn.Send(data, func(sendErr error) { errCh <- sendErr })
	sendErr := <-errCh
	if sendErr == nil {
		h.keepAlive.reset()
	}
	return sendErr
}

// dispatch runs fn on the configured Executor, recovering and logging any
// panic instead of letting it escape — user-supplied handlers (client method
// handlers, Invoke/Stream callbacks) must not be able to crash the process.
func (h *HubConnection) dispatch(fn func()) {
	h.executor.Execute(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Errorw("hubconn: recovered panic in user callback", "panic", r)
			}
		}()
		fn()
	})
}

func (h *HubConnection) sendPing() {
	if err := h.writeMessage(PingMessage{Type: MessageTypePing}); err != nil {
		h.logger.Debugw("hubconn: keep-alive ping failed", "error", err)
	}
}

func (h *HubConnection) initiateHandshake() {
	data, err := buildHandshakeRequest(h.protocol)
	if err != nil {
		h.logger.Errorw("hubconn: failed to build handshake request", "error", err)
		h.conn.Stop(err)
		return
	}
	h.conn.Send(data, func(sendErr error) {
		if sendErr == nil {
			return
		}
		// Open Question (spec §9): a handshake-send failure is treated
		// identically whether or not this is a reconnect attempt — stop
		// outright rather than leaving the connection half-open.
		h.conn.Stop(sendErr)
	})
}

// --- transportConnection delegate side (HttpConnectionDelegate) ---

func (h *HubConnection) ConnectionDidFailToOpen(err error) {
	h.dispatchClose(err)
}

func (h *HubConnection) TransportConnectionDidOpen() {
	h.serialQueue.Submit(func() {
		if !h.handshakeStatus.IsNeedsHandling() {
			h.handshakeStatus = NeedsHandling(false)
		}
		if h.conn.InherentKeepAlive() {
			h.keepAlive.suppress()
		}
		h.initiateHandshake()
	})
}

func (h *HubConnection) ConnectionDidReceiveData(data []byte) {
	h.serialQueue.Submit(func() { h.handleData(data) })
}

func (h *HubConnection) ConnectionDidClose(err error) {
	h.serialQueue.Submit(func() {
		h.keepAlive.cleanUp()
		pending := h.invocations.drain()
		h.handshakeStatus = NeedsHandling(false)
		h.handshakeBuf = nil
		h.handshakeHandled.Store(false)

		reported := err
		if reported == nil {
			reported = ErrHubInvocationCancelled
		}
		for _, handler := range pending {
			handler := handler
			h.dispatch(func() { completeOnClose(handler, reported) })
		}
	})
	h.dispatchClose(err)
}

func completeOnClose(handler *InvocationHandler, reported error) {
	if handler.isStreaming() {
		if handler.onComplete != nil {
			handler.onComplete(reported)
		}
		return
	}
	if handler.onResult != nil {
		handler.onResult(nil, false, reported)
	}
}

func (h *HubConnection) dispatchClose(err error) {
	h.dispatch(func() {
		if h.delegate != nil {
			h.delegate.HubConnectionDidClose(err)
		}
	})
}

// --- ReconnectableConnectionDelegate's extra three events ---

func (h *HubConnection) WillReconnect(err error) {
	h.serialQueue.Submit(func() {
		h.handshakeStatus = NeedsHandling(true)
		h.handshakeHandled.Store(false)
	})
	h.dispatch(func() {
		if h.delegate != nil {
			h.delegate.HubConnectionWillReconnect(err)
		}
	})
}

func (h *HubConnection) DidReconnect() {
	// ReconnectableConnection reports a reopened transport through this event
	// rather than TransportConnectionDidOpen, so the new session's handshake
	// (still pending as NeedsHandling(true) since WillReconnect) starts here.
	h.TransportConnectionDidOpen()
	h.dispatch(func() {
		if h.delegate != nil {
			h.delegate.HubConnectionDidReconnect()
		}
	})
}

func (h *HubConnection) CurrentReconnectionAttempt(attempt uint32) {
	h.dispatch(func() {
		if h.delegate != nil {
			h.delegate.HubConnectionReconnectAttempt(attempt)
		}
	})
}

// --- inbound demultiplexer ---

func (h *HubConnection) handleData(data []byte) {
	h.keepAlive.reset()

	buf := data
	if h.handshakeBuf != nil {
		buf = append(h.handshakeBuf, data...)
		h.handshakeBuf = nil
	}

	if h.handshakeStatus.IsNeedsHandling() {
		ok, handshakeErr, remainder, err := parseHandshakeResponse(buf)
		if err != nil {
			if bytes.IndexByte(buf, recordSeparator) >= 0 {
				// The terminator is present, so the reply is malformed
				// rather than incomplete and more data cannot repair it.
				h.conn.Stop(err)
				return
			}
			// Incomplete frame: wait for the rest to arrive.
			h.handshakeBuf = buf
			return
		}
		wasReconnect := h.handshakeStatus.IsReconnect()
		h.handshakeStatus = Handled()

		if handshakeErr != "" {
			h.conn.Stop(errServerClose(handshakeErr))
			return
		}
		_ = ok
		h.handshakeHandled.Store(true)
		if !wasReconnect {
			h.dispatch(func() {
				if h.delegate != nil {
					h.delegate.HubConnectionDidOpen()
				}
			})
		}

		buf = remainder
		if len(buf) == 0 {
			return
		}
	}

	messages, err := h.protocol.ParseMessages(buf)
	if err != nil {
		h.logger.Warnw("hubconn: dropping malformed hub message frame", "error", err)
		return
	}
	for _, msg := range messages {
		h.dispatchMessage(msg)
	}
}

func (h *HubConnection) dispatchMessage(msg HubMessage) {
	switch m := msg.(type) {
	case CompletionMessage:
		h.handleCompletion(m)
	case StreamItemMessage:
		h.handleStreamItem(m)
	case InvocationMessage:
		h.handleInvocation(m)
	case CloseMessage:
		h.handleServerClose(m)
	case PingMessage:
		// No payload to act on; receipt alone already reset the keep-alive
		// timer above.
	default:
		h.logger.Warnw("hubconn: ignoring hub message of unexpected kind", "kind", msg.Kind())
	}
}

func (h *HubConnection) handleCompletion(m CompletionMessage) {
	handler, ok := h.invocations.lookup(m.InvocationID)
	if !ok {
		h.logger.Warnw("hubconn: completion for unknown invocation", "invocationId", m.InvocationID)
		return
	}
	h.invocations.remove(m.InvocationID)

	var resultBytes []byte
	hasResult := m.Result != nil
	if hasResult {
		encoded, err := json.Marshal(m.Result)
		if err != nil {
			h.logger.Warnw("hubconn: failed to re-marshal completion result", "error", err)
			hasResult = false
		} else {
			resultBytes = encoded
		}
	}

	var callErr error
	if m.Error != "" {
		callErr = errors.New(m.Error)
	}

	h.dispatch(func() {
		if handler.isStreaming() {
			if handler.onComplete != nil {
				handler.onComplete(callErr)
			}
			return
		}
		if handler.onResult != nil {
			handler.onResult(resultBytes, hasResult, callErr)
		}
	})
}

func (h *HubConnection) handleStreamItem(m StreamItemMessage) {
	handler, ok := h.invocations.lookup(m.InvocationID)
	if !ok || !handler.isStreaming() {
		h.logger.Warnw("hubconn: stream item for unknown or non-streaming invocation", "invocationId", m.InvocationID)
		return
	}

	itemBytes, err := json.Marshal(m.Item)
	if err != nil {
		h.logger.Warnw("hubconn: failed to re-marshal stream item", "error", err)
		return
	}

	h.dispatch(func() {
		if handler.onStreamItem != nil {
			handler.onStreamItem(itemBytes)
		}
	})
}

func (h *HubConnection) handleInvocation(m InvocationMessage) {
	handler, ok := h.methods.lookup(m.Target)
	if !ok {
		h.logger.Warnw("hubconn: invocation for unregistered client method", "target", m.Target)
		return
	}

	argsBytes, err := json.Marshal(m.Arguments)
	if err != nil {
		h.logger.Warnw("hubconn: failed to re-marshal invocation arguments", "error", err)
		return
	}

	h.dispatch(func() {
		result, hasResult, callErr := handler(argsBytes)
		if m.InvocationID == "" {
			return // server's call was fire-and-forget; no completion expected
		}
		completion := CompletionMessage{Type: MessageTypeCompletion, InvocationID: m.InvocationID}
		switch {
		case callErr != nil:
			completion.Error = callErr.Error()
		case hasResult:
			completion.Result = json.RawMessage(result)
		}
		if werr := h.writeMessage(completion); werr != nil {
			h.logger.Warnw("hubconn: failed to send invocation completion", "error", werr)
		}
	})
}

func (h *HubConnection) handleServerClose(m CloseMessage) {
	var err error
	if m.Error != "" {
		err = errServerClose(m.Error)
	}
	h.conn.Stop(err)
}
