package hubconn

import (
	"sync"

	"go.uber.org/zap"
)

// clientMethodHandler is a registered callback for an inbound, server-to-
// client invocation (spec §3's "client methods" / C11's On).
type clientMethodHandler func(arguments []byte) (result []byte, hasResult bool, err error)

// methodRegistry is the name-keyed table of handlers registered via On.
// Registering the same name twice replaces the previous handler and logs a
// warning rather than erroring, matching the permissive re-registration
// spec §3 requires for hot-reloadable handler setup.
type methodRegistry struct {
	mu     sync.RWMutex
	byName map[string]clientMethodHandler
	logger *zap.SugaredLogger
}

func newMethodRegistry(logger *zap.SugaredLogger) *methodRegistry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &methodRegistry{byName: make(map[string]clientMethodHandler), logger: logger}
}

func (r *methodRegistry) register(name string, h clientMethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		r.logger.Warnw("hubconn: overwriting existing client method handler", "method", name)
	}
	r.byName[name] = h
}

func (r *methodRegistry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

func (r *methodRegistry) lookup(name string) (clientMethodHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}
