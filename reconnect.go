package hubconn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectableConnectionDelegate receives the HttpConnectionDelegate events
// plus the three reconnect-specific notifications of spec §4.2.
type ReconnectableConnectionDelegate interface {
	HttpConnectionDelegate
	WillReconnect(err error)
	DidReconnect()
	CurrentReconnectionAttempt(attempt uint32)
}

// HttpConnectionFactory produces a fresh HttpConnection wired to delegate
// for one connection attempt. ReconnectableConnection calls it once per
// attempt (initial and every retry) rather than reusing an instance, since
// HttpConnection is single-use (spec §3's lifecycle ownership).
type HttpConnectionFactory func(delegate HttpConnectionDelegate) *HttpConnection

// ReconnectableConnection wraps an HttpConnectionFactory with a
// ReconnectPolicy and presents the same connection surface as HttpConnection
// while hiding transient disconnects from the application (C3).
type ReconnectableConnection struct {
	factory  HttpConnectionFactory
	policy   ReconnectPolicy
	delegate ReconnectableConnectionDelegate
	logger   *zap.SugaredLogger
	executor Executor

	state *stateBox[ReconnectableState]

	mu                  sync.Mutex
	current             *HttpConnection
	failedAttempts      uint32
	reconnectStartTime  time.Time
	pendingTimer        *time.Timer
	stopError           error
	ctx                 context.Context
	cancel              context.CancelFunc
}

// ReconnectableConnectionOptions configures a ReconnectableConnection.
type ReconnectableConnectionOptions struct {
	Policy   ReconnectPolicy
	Logger   *zap.SugaredLogger
	Executor Executor
}

// NewReconnectableConnection wraps factory with opts.Policy (defaulting to
// NoRetryPolicy, i.e. never auto-reconnect, when unset).
func NewReconnectableConnection(factory HttpConnectionFactory, delegate ReconnectableConnectionDelegate, opts ReconnectableConnectionOptions) *ReconnectableConnection {
	policy := opts.Policy
	if policy == nil {
		policy = NoRetryPolicy{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	executor := opts.Executor
	if executor == nil {
		executor = defaultExecutor
	}
	return &ReconnectableConnection{
		factory:  factory,
		policy:   policy,
		delegate: delegate,
		logger:   logger,
		executor: executor,
		state:    newStateBox(StateDisconnected),
	}
}

// State returns the current reconnectable state.
func (rc *ReconnectableConnection) State() ReconnectableState { return rc.state.get() }

// Start begins (or restarts) the connection. Valid only from Disconnected;
// otherwise this is a no-op (spec §4.2 warns and returns).
func (rc *ReconnectableConnection) Start(ctx context.Context, resetRetryAttempts bool) {
	disconnected := StateDisconnected
	if _, ok := rc.state.transition(&disconnected, StateStarting); !ok {
		rc.logger.Warnw("hubconn: start called while not disconnected; ignoring", "state", rc.state.get())
		return
	}

	rc.mu.Lock()
	if resetRetryAttempts {
		rc.failedAttempts = 0
		rc.reconnectStartTime = time.Time{}
	}
	rc.ctx, rc.cancel = context.WithCancel(ctx)
	runCtx := rc.ctx
	rc.mu.Unlock()

	rc.startInternal(runCtx)
}

func (rc *ReconnectableConnection) startInternal(ctx context.Context) {
	conn := rc.factory(rc)
	rc.mu.Lock()
	rc.current = conn
	rc.mu.Unlock()
	conn.Start(ctx, false)
}

// Send delegates to the current underlying connection, failing fast with
// ErrConnectionIsReconnecting while a reconnect attempt is outstanding
// (spec §4.2, scenario 5) rather than silently queuing the send.
func (rc *ReconnectableConnection) Send(data []byte, cb func(err error)) {
	if rc.state.get() == StateReconnecting {
		rc.executor.Execute(func() { cb(ErrConnectionIsReconnecting) })
		return
	}
	rc.mu.Lock()
	current := rc.current
	rc.mu.Unlock()
	if current == nil {
		rc.executor.Execute(func() { cb(ErrInvalidState) })
		return
	}
	current.Send(data, cb)
}

// Stop tears the connection down, cancelling any outstanding reconnect
// timer atomically as part of the Stopping transition (spec §9's race fix:
// a timer-delayed startInternal must never fire after Stop begins).
func (rc *ReconnectableConnection) Stop(err error) {
	_, ok := rc.state.transitionAny([]ReconnectableState{StateStarting, StateReconnecting, StateRunning}, StateStopping)
	if !ok {
		rc.logger.Debug("hubconn: stop called on a reconnectable connection that is not running")
		return
	}

	rc.mu.Lock()
	rc.stopError = err
	if rc.pendingTimer != nil {
		rc.pendingTimer.Stop()
		rc.pendingTimer = nil
	}
	current := rc.current
	cancel := rc.cancel
	rc.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if current != nil {
		current.Stop(err)
		return
	}

	// No live HttpConnection: we were waiting out the reconnect timer just
	// cancelled above, so no delegate callback will arrive to finish this.
	rc.finishStop(err)
}

func (rc *ReconnectableConnection) finishStop(err error) {
	rc.state.transition(nil, StateDisconnected)
	rc.mu.Lock()
	rc.current = nil
	stopErr := rc.stopError
	rc.mu.Unlock()

	reported := err
	if stopErr != nil {
		reported = stopErr
	}
	rc.dispatchClose(reported)
}

// --- HttpConnectionDelegate (from the current underlying HttpConnection) ---

func (rc *ReconnectableConnection) ConnectionDidFailToOpen(err error) {
	if rc.state.get() == StateStopping {
		rc.finishStop(err)
		return
	}
	rc.restart(err)
}

func (rc *ReconnectableConnection) ConnectionDidClose(err error) {
	running := StateRunning
	if _, ok := rc.state.transition(&running, StateReconnecting); ok {
		rc.restart(err)
		return
	}
	rc.finishStop(err)
}

func (rc *ReconnectableConnection) TransportConnectionDidOpen() {
	rc.mu.Lock()
	rc.failedAttempts = 0
	rc.reconnectStartTime = time.Time{}
	rc.mu.Unlock()

	wasReconnecting := rc.state.get() == StateReconnecting
	from := StateStarting
	if wasReconnecting {
		from = StateReconnecting
	}
	if _, ok := rc.state.transition(&from, StateRunning); !ok {
		return // raced a Stop
	}
	if wasReconnecting {
		rc.dispatchDidReconnect()
	} else {
		rc.dispatchTransportOpen()
	}
}

func (rc *ReconnectableConnection) ConnectionDidReceiveData(data []byte) {
	rc.dispatchReceiveData(data)
}

// InherentKeepAlive reports whether the currently active underlying
// transport produces its own traffic, forwarding to whichever HttpConnection
// is live for the current attempt (spec §4.3.4).
func (rc *ReconnectableConnection) InherentKeepAlive() bool {
	rc.mu.Lock()
	current := rc.current
	rc.mu.Unlock()
	return current != nil && current.InherentKeepAlive()
}

// restart implements spec §4.2's restart algorithm: compute a RetryContext,
// ask the policy, and either give up (-> Disconnected) or schedule another
// startInternal after the returned interval.
func (rc *ReconnectableConnection) restart(err error) {
	wasStarting := rc.state.get() == StateStarting

	rc.mu.Lock()
	// The HttpConnection that just failed or closed is Stopped and single-use;
	// drop it so a Stop issued while the next attempt is pending finishes
	// on its own instead of delegating to a dead connection.
	rc.current = nil
	if rc.failedAttempts == 0 {
		rc.reconnectStartTime = time.Now()
	}
	retryCtx := RetryContext{
		FailedAttemptsCount: rc.failedAttempts,
		ReconnectStartTime:  rc.reconnectStartTime,
		Error:               err,
	}
	ctx := rc.ctx
	rc.mu.Unlock()

	interval, ok := rc.policy.NextAttemptInterval(retryCtx)
	if !ok {
		rc.state.transition(nil, StateDisconnected)
		rc.mu.Lock()
		rc.current = nil
		rc.mu.Unlock()
		if wasStarting {
			rc.dispatchFailToOpen(err)
		} else {
			rc.dispatchClose(err)
		}
		return
	}

	if rc.state.get() == StateReconnecting && retryCtx.FailedAttemptsCount == 0 {
		rc.dispatchWillReconnect(err)
	}
	rc.dispatchCurrentAttempt(retryCtx.FailedAttemptsCount)

	rc.mu.Lock()
	rc.failedAttempts++
	rc.pendingTimer = time.AfterFunc(interval, func() {
		rc.mu.Lock()
		rc.pendingTimer = nil
		rc.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		rc.startInternal(ctx)
	})
	rc.mu.Unlock()
}

func (rc *ReconnectableConnection) dispatchFailToOpen(err error) {
	rc.executor.Execute(func() { rc.delegate.ConnectionDidFailToOpen(err) })
}

func (rc *ReconnectableConnection) dispatchClose(err error) {
	rc.executor.Execute(func() { rc.delegate.ConnectionDidClose(err) })
}

func (rc *ReconnectableConnection) dispatchTransportOpen() {
	rc.executor.Execute(func() { rc.delegate.TransportConnectionDidOpen() })
}

func (rc *ReconnectableConnection) dispatchReceiveData(data []byte) {
	rc.executor.Execute(func() { rc.delegate.ConnectionDidReceiveData(data) })
}

func (rc *ReconnectableConnection) dispatchWillReconnect(err error) {
	rc.executor.Execute(func() { rc.delegate.WillReconnect(err) })
}

func (rc *ReconnectableConnection) dispatchDidReconnect() {
	rc.executor.Execute(func() { rc.delegate.DidReconnect() })
}

func (rc *ReconnectableConnection) dispatchCurrentAttempt(attempt uint32) {
	rc.executor.Execute(func() { rc.delegate.CurrentReconnectionAttempt(attempt) })
}
