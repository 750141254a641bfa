package hubconn

// Hub message type discriminants per spec §6. Values match the wire
// protocol's integer "type" field and are grounded on the reference
// signalr.go encoding (other_examples/wamoscode-go-signalr).
const (
	MessageTypeInvocation = iota + 1
	MessageTypeStreamItem
	MessageTypeCompletion
	MessageTypeStreamInvocation
	MessageTypeCancelInvocation
	MessageTypePing
	MessageTypeClose
)

// HubMessage is implemented by every concrete message struct so the
// demultiplexer in hub.go can dispatch on a common interface after a
// HubProtocol has parsed the frame.
type HubMessage interface {
	Kind() int
}

// InvocationMessage requests a target method be invoked with Arguments. An
// empty InvocationID marks a fire-and-forget call with no completion.
type InvocationMessage struct {
	Type         int           `json:"type"`
	Target       string        `json:"target"`
	Arguments    []interface{} `json:"arguments,omitempty"`
	InvocationID string        `json:"invocationId,omitempty"`
}

func (InvocationMessage) Kind() int { return MessageTypeInvocation }

// StreamInvocationMessage requests a target method whose result is a
// sequence of StreamItemMessages terminated by a CompletionMessage.
type StreamInvocationMessage struct {
	Type         int           `json:"type"`
	Target       string        `json:"target"`
	Arguments    []interface{} `json:"arguments,omitempty"`
	InvocationID string        `json:"invocationId"`
}

func (StreamInvocationMessage) Kind() int { return MessageTypeStreamInvocation }

// StreamItemMessage carries one item of a streaming invocation's result.
type StreamItemMessage struct {
	Type         int         `json:"type"`
	InvocationID string      `json:"invocationId"`
	Item         interface{} `json:"item"`
}

func (StreamItemMessage) Kind() int { return MessageTypeStreamItem }

// CompletionMessage ends an invocation or stream invocation, carrying either
// a Result or an Error (mutually exclusive).
type CompletionMessage struct {
	Type         int         `json:"type"`
	InvocationID string      `json:"invocationId"`
	Result       interface{} `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
}

func (CompletionMessage) Kind() int { return MessageTypeCompletion }

// CancelInvocationMessage asks the server to stop a streaming invocation.
type CancelInvocationMessage struct {
	Type         int    `json:"type"`
	InvocationID string `json:"invocationId"`
}

func (CancelInvocationMessage) Kind() int { return MessageTypeCancelInvocation }

// PingMessage keeps the connection alive when no RPC traffic is flowing.
type PingMessage struct {
	Type int `json:"type"`
}

func (PingMessage) Kind() int { return MessageTypePing }

// CloseMessage is sent by the server to end the connection, optionally
// carrying the reason.
type CloseMessage struct {
	Type           int    `json:"type"`
	Error          string `json:"error,omitempty"`
	AllowReconnect bool   `json:"allowReconnect,omitempty"`
}

func (CloseMessage) Kind() int { return MessageTypeClose }

// UnknownMessage represents a wire message whose "type" discriminant a
// HubProtocol did not recognize. It is not an error: the rest of the frame
// it arrived in may still contain valid messages, so it is dispatched and
// logged like any other message kind rather than failing the whole parse.
type UnknownMessage struct {
	Type int
}

func (m UnknownMessage) Kind() int { return m.Type }

// HubProtocol is the external collaborator contract of C5: it encodes
// outbound hub messages and parses one or more inbound hub messages from a
// single frame. A concrete JSON implementation ships as JSONHubProtocol;
// binary protocols are out of this core's scope per spec §1.
type HubProtocol interface {
	Name() string
	Version() int
	TransferFormat() TransferFormat

	// WriteMessage encodes a single outbound message, including any
	// framing/terminator the wire format requires.
	WriteMessage(msg HubMessage) ([]byte, error)

	// ParseMessages splits data into zero or more complete hub messages.
	ParseMessages(data []byte) ([]HubMessage, error)
}
