package hubconn

import (
	"strconv"
	"sync"
)

// InvocationHandler is the pending-call record kept per outstanding
// invocation/streamInvocation while its completion or stream items are
// in flight (spec §3, §4.3.3).
//
// The variant is fixed by the constructor: a plain invocation only ever
// completes once (onResult), a stream invocation receives zero or more
// items (onStreamItem) before its completion (onComplete).
type InvocationHandler struct {
	onResult     func(result []byte, hasResult bool, err error)
	onStreamItem func(item []byte)
	onComplete   func(err error)
	streaming    bool
}

// newResultInvocation builds the handler for a single-result invocation.
func newResultInvocation(onResult func(result []byte, hasResult bool, err error)) *InvocationHandler {
	return &InvocationHandler{onResult: onResult}
}

// newStreamInvocation builds the handler for a streaming invocation.
func newStreamInvocation(onStreamItem func(item []byte), onComplete func(err error)) *InvocationHandler {
	return &InvocationHandler{onStreamItem: onStreamItem, onComplete: onComplete, streaming: true}
}

func (h *InvocationHandler) isStreaming() bool { return h.streaming }

// invocationRegistry is the ID-keyed table of outstanding calls (the
// counterpart of the teacher's ClientConn.methodCalls map).
type invocationRegistry struct {
	mu   sync.Mutex
	next uint64
	byID map[string]*InvocationHandler
}

func newInvocationRegistry() *invocationRegistry {
	return &invocationRegistry{next: 1, byID: make(map[string]*InvocationHandler)}
}

// nextID returns the next monotonic decimal invocation ID, starting at "1".
func (r *invocationRegistry) nextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	return strconv.FormatUint(id, 10)
}

func (r *invocationRegistry) register(id string, h *InvocationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = h
}

func (r *invocationRegistry) lookup(id string) (*InvocationHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	return h, ok
}

func (r *invocationRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// drain empties the registry and returns every handler still pending, for
// use when the connection closes and every outstanding call must be failed
// (spec §4.3.3's close-propagation step).
func (r *invocationRegistry) drain() []*InvocationHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	handlers := make([]*InvocationHandler, 0, len(r.byID))
	for _, h := range r.byID {
		handlers = append(handlers, h)
	}
	r.byID = make(map[string]*InvocationHandler)
	return handlers
}
