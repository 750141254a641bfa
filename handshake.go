package hubconn

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// handshakeRequest is the outbound protocol-selection frame (spec §6).
type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// handshakeResponse is the server's acknowledgement. An empty Error means
// success.
type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// buildHandshakeRequest encodes the opening hub-protocol selection frame for
// protocol, terminated with the record separator.
func buildHandshakeRequest(protocol HubProtocol) ([]byte, error) {
	req := handshakeRequest{Protocol: protocol.Name(), Version: protocol.Version()}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, body...)
	out = append(out, recordSeparator)
	return out, nil
}

// parseHandshakeResponse extracts the leading handshake reply from data and
// returns any bytes remaining after its terminator (subsequent hub
// messages, per spec §6). It fails if data contains no terminator at all.
func parseHandshakeResponse(data []byte) (ok bool, handshakeErr string, remainder []byte, err error) {
	idx := bytes.IndexByte(data, recordSeparator)
	if idx < 0 {
		return false, "", nil, fmt.Errorf("hubconn: incomplete handshake response (missing terminator)")
	}

	var resp handshakeResponse
	if uerr := json.Unmarshal(data[:idx], &resp); uerr != nil {
		return false, "", nil, fmt.Errorf("hubconn: malformed handshake response: %w", uerr)
	}

	remainder = data[idx+1:]
	if resp.Error != "" {
		return false, resp.Error, remainder, nil
	}
	return true, "", remainder, nil
}
