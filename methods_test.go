package hubconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMethodRegistryRegisterAndLookup(t *testing.T) {
	r := newMethodRegistry(zap.NewNop().Sugar())
	called := false
	r.register("Notify", func(args []byte) ([]byte, bool, error) {
		called = true
		return nil, false, nil
	})

	handler, ok := r.lookup("Notify")
	assert.True(t, ok)
	_, _, _ = handler(nil)
	assert.True(t, called)
}

func TestMethodRegistryOverwriteReplacesHandler(t *testing.T) {
	r := newMethodRegistry(zap.NewNop().Sugar())
	r.register("Notify", func([]byte) ([]byte, bool, error) { return nil, false, nil })
	r.register("Notify", func([]byte) ([]byte, bool, error) { return []byte("second"), true, nil })

	handler, ok := r.lookup("Notify")
	assert.True(t, ok)
	result, hasResult, err := handler(nil)
	assert.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, "second", string(result))
}

func TestMethodRegistryRemove(t *testing.T) {
	r := newMethodRegistry(nil)
	r.register("Notify", func([]byte) ([]byte, bool, error) { return nil, false, nil })
	r.remove("Notify")

	_, ok := r.lookup("Notify")
	assert.False(t, ok)
}
