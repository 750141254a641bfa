package serialqueue

import "sync"

// Barrier is a one-shot gate: Wait blocks until Open is called, and Open may
// be called from exactly one of several terminal paths without the caller
// needing to track which one fired. Reused across HttpConnection.start's
// single-latch start gate (spec §4.1, §9).
type Barrier struct {
	once sync.Once
	done chan struct{}
}

// NewBarrier returns a closed-until-opened barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Open releases the barrier. Safe to call multiple times or concurrently;
// only the first call has effect.
func (b *Barrier) Open() {
	b.once.Do(func() { close(b.done) })
}

// Wait blocks until Open has been called.
func (b *Barrier) Wait() {
	<-b.done
}
