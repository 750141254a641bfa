package hubconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopHubDelegate struct{}

func (noopHubDelegate) HubConnectionDidOpen()              {}
func (noopHubDelegate) HubConnectionDidClose(error)        {}
func (noopHubDelegate) HubConnectionWillReconnect(error)   {}
func (noopHubDelegate) HubConnectionDidReconnect()         {}
func (noopHubDelegate) HubConnectionReconnectAttempt(uint32) {}

func TestHubConnectionBuilderAppliesOptions(t *testing.T) {
	b := NewHubConnectionBuilder("http://example.test/hub")
	b.WithOptions(
		WithSkipNegotiation(),
		WithHeader("X-Test", "1"),
		WithMaximumMessageSize(4096),
		WithKeepAliveInterval(0),
	)

	assert.True(t, b.opts.skipNegotiation)
	assert.Equal(t, "1", b.opts.headers.Get("X-Test"))
	assert.Equal(t, 4096, b.opts.maxMessageSize)
}

func TestHubConnectionBuilderWithoutReconnectPolicyBuildsPlainConnection(t *testing.T) {
	b := NewHubConnectionBuilder("http://example.test/hub")
	hub := b.Build(noopHubDelegate{})

	require.NotNil(t, hub)
	_, isHTTP := hub.conn.(*HttpConnection)
	assert.True(t, isHTTP, "expected a plain *HttpConnection when no reconnect policy is configured")
}

func TestHubConnectionBuilderWithReconnectPolicyWrapsReconnectableConnection(t *testing.T) {
	b := NewHubConnectionBuilder("http://example.test/hub")
	b.WithOptions(WithAutomaticReconnect(NewExponentialReconnectPolicy()))
	hub := b.Build(noopHubDelegate{})

	require.NotNil(t, hub)
	rc, isReconnectable := hub.conn.(*ReconnectableConnection)
	require.True(t, isReconnectable, "expected a *ReconnectableConnection when an automatic reconnect policy is configured")
	assert.Same(t, hub, rc.delegate)
}
