package hubconn

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForInvocationID(t *testing.T, transport *fakeHubTransport) string {
	t.Helper()
	var id string
	require.Eventually(t, func() bool {
		last := transport.lastSent()
		if last == nil {
			return false
		}
		msgs, err := NewJSONHubProtocol().ParseMessages(last)
		if err != nil || len(msgs) != 1 {
			return false
		}
		switch m := msgs[0].(type) {
		case InvocationMessage:
			id = m.InvocationID
		case StreamInvocationMessage:
			id = m.InvocationID
		}
		return id != ""
	}, time.Second, time.Millisecond)
	return id
}

func TestTypedInvokeDecodesResult(t *testing.T) {
	h, transport, delegate := newTestHub(t)
	completeHandshake(t, h, transport, delegate)

	type outcome struct {
		value string
		err   error
	}
	resCh := make(chan outcome, 1)
	go func() {
		v, err := Invoke[string](h, "Echo", "hi")
		resCh <- outcome{v, err}
	}()

	id := waitForInvocationID(t, transport)
	frame, err := NewJSONHubProtocol().WriteMessage(CompletionMessage{Type: MessageTypeCompletion, InvocationID: id, Result: json.RawMessage(`"ok"`)})
	require.NoError(t, err)
	h.ConnectionDidReceiveData(frame)

	select {
	case r := <-resCh:
		require.NoError(t, r.err)
		assert.Equal(t, "ok", r.value)
	case <-time.After(time.Second):
		t.Fatal("Invoke never returned")
	}
}

func TestTypedInvokePropagatesServerError(t *testing.T) {
	h, transport, delegate := newTestHub(t)
	completeHandshake(t, h, transport, delegate)

	type outcome struct {
		value string
		err   error
	}
	resCh := make(chan outcome, 1)
	go func() {
		v, err := Invoke[string](h, "Echo", "hi")
		resCh <- outcome{v, err}
	}()

	id := waitForInvocationID(t, transport)
	frame, err := NewJSONHubProtocol().WriteMessage(CompletionMessage{Type: MessageTypeCompletion, InvocationID: id, Error: "boom"})
	require.NoError(t, err)
	h.ConnectionDidReceiveData(frame)

	select {
	case r := <-resCh:
		assert.Error(t, r.err)
	case <-time.After(time.Second):
		t.Fatal("Invoke never returned")
	}
}

func TestTypedStreamDecodesItemsAndCloses(t *testing.T) {
	h, transport, delegate := newTestHub(t)
	completeHandshake(t, h, transport, delegate)

	items, done, handle, err := Stream[int](h, "Counter")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	id := waitForInvocationID(t, transport)
	proto := NewJSONHubProtocol()
	item1, _ := proto.WriteMessage(StreamItemMessage{Type: MessageTypeStreamItem, InvocationID: id, Item: 1})
	item2, _ := proto.WriteMessage(StreamItemMessage{Type: MessageTypeStreamItem, InvocationID: id, Item: 2})
	h.ConnectionDidReceiveData(item1)
	h.ConnectionDidReceiveData(item2)

	var got []int
	for i := 0; i < 2; i++ {
		select {
		case v := <-items:
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatal("stream item never decoded")
		}
	}
	assert.Equal(t, []int{1, 2}, got)

	completion, _ := proto.WriteMessage(CompletionMessage{Type: MessageTypeCompletion, InvocationID: id})
	h.ConnectionDidReceiveData(completion)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream completion never fired")
	}
	_, open := <-items
	assert.False(t, open, "items channel should be closed once the stream completes")
}

func TestStreamHandleCancelRequiresAssociatedConnection(t *testing.T) {
	var empty StreamHandle
	assert.Error(t, empty.Cancel())
}

func TestTypedOnDecodesArgsAndEncodesResult(t *testing.T) {
	h, transport, delegate := newTestHub(t)
	completeHandshake(t, h, transport, delegate)

	type args struct {
		Name string `json:"name"`
	}
	type result struct {
		Greeting string `json:"greeting"`
	}
	On(h, "Greet", func(a args) (result, error) {
		return result{Greeting: "hello " + a.Name}, nil
	})

	// A server-assigned invocation ID is just an opaque string on the wire;
	// a UUID fixture keeps the test honest about not caring what shape it is.
	serverInvocationID := uuid.NewString()
	proto := NewJSONHubProtocol()
	frame, _ := proto.WriteMessage(InvocationMessage{
		Type:         MessageTypeInvocation,
		Target:       "Greet",
		Arguments:    []interface{}{map[string]string{"name": "world"}},
		InvocationID: serverInvocationID,
	})
	h.ConnectionDidReceiveData(frame)

	compCh := make(chan CompletionMessage, 1)
	require.Eventually(t, func() bool {
		last := transport.lastSent()
		if last == nil {
			return false
		}
		msgs, err := proto.ParseMessages(last)
		if err != nil || len(msgs) != 1 {
			return false
		}
		comp, ok := msgs[0].(CompletionMessage)
		if ok && comp.InvocationID == serverInvocationID {
			compCh <- comp
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	comp := <-compCh
	assert.Empty(t, comp.Error)
	assert.Equal(t, map[string]interface{}{"greeting": "hello world"}, comp.Result)
}

func TestTypedOnVoidDecodesArgs(t *testing.T) {
	h, transport, delegate := newTestHub(t)
	completeHandshake(t, h, transport, delegate)

	type args struct {
		Name string `json:"name"`
	}
	called := make(chan args, 1)
	OnVoid(h, "Notify", func(a args) { called <- a })

	proto := NewJSONHubProtocol()
	frame, _ := proto.WriteMessage(InvocationMessage{
		Type:      MessageTypeInvocation,
		Target:    "Notify",
		Arguments: []interface{}{map[string]string{"name": "world"}},
	})
	h.ConnectionDidReceiveData(frame)

	select {
	case a := <-called:
		assert.Equal(t, "world", a.Name)
	case <-time.After(time.Second):
		t.Fatal("OnVoid handler never invoked")
	}
}
