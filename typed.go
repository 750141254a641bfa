package hubconn

import "encoding/json"

// Invoke calls target on the server and decodes its result into T once the
// completion arrives. It blocks until the completion (or a connection close)
// resolves the call (C11, spec §3's typed convenience layer over Invoke).
func Invoke[T any](h *HubConnection, target string, args ...interface{}) (T, error) {
	var zero T
	resultCh := make(chan struct {
		data      []byte
		hasResult bool
		err       error
	}, 1)

	_, err := h.Invoke(target, args, func(data []byte, hasResult bool, err error) {
		resultCh <- struct {
			data      []byte
			hasResult bool
			err       error
		}{data, hasResult, err}
	})
	if err != nil {
		return zero, err
	}

	outcome := <-resultCh
	if outcome.err != nil {
		return zero, outcome.err
	}
	if !outcome.hasResult {
		return zero, nil
	}
	var value T
	if err := json.Unmarshal(outcome.data, &value); err != nil {
		return zero, errInvalidOperation("failed to decode invocation result: " + err.Error())
	}
	return value, nil
}

// StreamHandle lets a caller cancel an in-flight Stream invocation.
type StreamHandle struct {
	id  string
	hub *HubConnection
}

// Cancel asks the server to stop this streaming invocation.
func (s StreamHandle) Cancel() error {
	if s.hub == nil {
		return errInvalidOperation("stream handle has no associated connection")
	}
	return s.hub.CancelStreamInvocation(s.id)
}

// Stream calls target on the server and decodes each streamed item into T,
// delivering decoded items on a channel that is closed once the stream
// completes. The returned error channel carries at most one value: the
// stream's terminal error, or nil on a clean end.
func Stream[T any](h *HubConnection, target string, args ...interface{}) (<-chan T, <-chan error, StreamHandle, error) {
	items := make(chan T, 16)
	done := make(chan error, 1)

	id, err := h.Stream(target, args,
		func(item []byte) {
			var value T
			if jerr := json.Unmarshal(item, &value); jerr != nil {
				h.logger.Warnw("hubconn: failed to decode stream item", "error", jerr)
				return
			}
			items <- value
		},
		func(err error) {
			close(items)
			done <- err
		},
	)
	if err != nil {
		close(items)
		return items, done, StreamHandle{}, err
	}
	return items, done, StreamHandle{id: id, hub: h}, nil
}

// On registers a typed handler for an inbound client method: the server's
// argument array is decoded into args before fn runs — as a whole when
// TArgs accepts a JSON array (e.g. a slice), otherwise from the call's
// single argument (e.g. a struct). fn's return value (if any) becomes the
// completion result for calls that expect one.
func On[TArgs any, TResult any](h *HubConnection, name string, fn func(args TArgs) (TResult, error)) {
	h.On(name, func(raw []byte) ([]byte, bool, error) {
		var args TArgs
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &args); err != nil {
				var single []json.RawMessage
				if json.Unmarshal(raw, &single) != nil || len(single) != 1 || json.Unmarshal(single[0], &args) != nil {
					return nil, false, errInvalidOperation("failed to decode invocation arguments: " + err.Error())
				}
			}
		}
		result, err := fn(args)
		if err != nil {
			return nil, false, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, false, err
		}
		return encoded, true, nil
	})
}

// OnVoid registers a typed handler for an inbound client method that never
// returns a result (the common fire-and-forget notification shape). args
// are decoded as for On.
func OnVoid[TArgs any](h *HubConnection, name string, fn func(args TArgs)) {
	h.On(name, func(raw []byte) ([]byte, bool, error) {
		var args TArgs
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &args); err != nil {
				var single []json.RawMessage
				if json.Unmarshal(raw, &single) != nil || len(single) != 1 || json.Unmarshal(single[0], &args) != nil {
					return nil, false, errInvalidOperation("failed to decode invocation arguments: " + err.Error())
				}
			}
		}
		fn(args)
		return nil, false, nil
	})
}
