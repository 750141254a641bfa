package hubconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvocationRegistryNextIDIsMonotonicDecimal(t *testing.T) {
	r := newInvocationRegistry()
	assert.Equal(t, "1", r.nextID())
	assert.Equal(t, "2", r.nextID())
	assert.Equal(t, "3", r.nextID())
}

func TestInvocationRegistryRegisterLookupRemove(t *testing.T) {
	r := newInvocationRegistry()
	h := newResultInvocation(func([]byte, bool, error) {})
	r.register("1", h)

	got, ok := r.lookup("1")
	assert.True(t, ok)
	assert.Same(t, h, got)

	r.remove("1")
	_, ok = r.lookup("1")
	assert.False(t, ok)
}

func TestInvocationRegistryDrainEmptiesAndReturnsAll(t *testing.T) {
	r := newInvocationRegistry()
	r.register("1", newResultInvocation(nil))
	r.register("2", newStreamInvocation(nil, nil))

	drained := r.drain()
	assert.Len(t, drained, 2)

	_, ok := r.lookup("1")
	assert.False(t, ok)
	_, ok = r.lookup("2")
	assert.False(t, ok)

	// Draining an already-empty registry is safe and returns nothing.
	assert.Empty(t, r.drain())
}

func TestInvocationHandlerIsStreaming(t *testing.T) {
	assert.False(t, newResultInvocation(nil).isStreaming())
	assert.True(t, newStreamInvocation(nil, nil).isStreaming())
}
