package hubconn

import (
	"sync"
	"time"
)

// keepAliveScheduler sends a periodic ping whenever the connection has been
// quiet for longer than the configured interval (spec §4.3.4). It is
// disabled outright when the active transport already produces its own
// traffic (Transport.InherentKeepAlive) or when no interval is configured.
//
// Every successful outbound send reschedules the timer, so a chatty
// connection never sends redundant pings — only a gap of silence does.
type keepAliveScheduler struct {
	interval time.Duration
	send     func()

	mu         sync.Mutex
	timer      *time.Timer
	suppressed bool
}

func newKeepAliveScheduler(interval time.Duration, send func()) *keepAliveScheduler {
	return &keepAliveScheduler{interval: interval, send: send}
}

func (k *keepAliveScheduler) enabled() bool {
	if k == nil || k.interval <= 0 {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return !k.suppressed
}

// suppress permanently disables the scheduler for the lifetime of the
// HubConnection that owns it — called once the active transport reports it
// produces its own inherent keep-alive traffic (spec §4.3.4), so this
// scheduler never needs re-enabling afterwards.
func (k *keepAliveScheduler) suppress() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.suppressed = true
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
}

// reset (re)arms the timer for another interval from now. Call this after
// every message the connection sends or receives.
func (k *keepAliveScheduler) reset() {
	if !k.enabled() {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.timer != nil {
		k.timer.Stop()
	}
	k.timer = time.AfterFunc(k.interval, k.send)
}

// cleanUp stops and clears the timer. HubConnection runs it on its
// serialising queue when the connection closes; a later reset (the next
// successful send or received frame) arms the timer again.
func (k *keepAliveScheduler) cleanUp() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
}
