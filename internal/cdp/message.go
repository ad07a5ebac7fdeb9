package cdp

import (
	"encoding/json"
	"errors"
)

// emptyParams is sent when a command has no parameters. Inspectors reject a
// missing or null params member for some methods.
var emptyParams = json.RawMessage(`{}`)

// Request represents a CDP command request.
type Request struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params"`
	SessionID string `json:"sessionId,omitempty"`
}

// Response represents a CDP command response.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// Event represents a CDP event notification.
type Event struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId,omitempty"`
}

// message is used internally to determine message type during parsing.
// Members are kept raw so that one with an unexpected type drops the frame
// instead of failing the parse.
type message struct {
	ID        json.RawMessage `json:"id"`
	Method    json.RawMessage `json:"method"`
	Result    json.RawMessage `json:"result"`
	Error     json.RawMessage `json:"error"`
	Params    json.RawMessage `json:"params"`
	SessionID json.RawMessage `json:"sessionId"`
}

// parseMessage parses a raw CDP message and returns either a Response or Event.
// Returns (response, nil, nil) for command responses.
// Returns (nil, event, nil) for events.
// Returns (nil, nil, nil) for frames that are neither; callers drop them.
// Returns (nil, nil, error) only when data is not valid JSON.
func parseMessage(data []byte) (*Response, *Event, error) {
	if !json.Valid(data) {
		var v any
		err := json.Unmarshal(data, &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, nil, &ProtocolError{Err: err}
	}

	// Valid JSON that is not an object is dropped.
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil, nil
	}

	// Messages with an ID are responses to commands
	if present(msg.ID) {
		var id int64
		// Id 0 is reserved for the handshake and never answers a command.
		if err := json.Unmarshal(msg.ID, &id); err != nil || id == ConnectID {
			return nil, nil, nil
		}
		resp := &Response{ID: id, Result: msg.Result}
		if present(msg.Error) {
			var remote RemoteError
			if err := json.Unmarshal(msg.Error, &remote); err != nil {
				return nil, nil, nil
			}
			resp.Error = &remote
		}
		return resp, nil, nil
	}

	// Messages with a method but no ID are events
	if present(msg.Method) {
		var method string
		if err := json.Unmarshal(msg.Method, &method); err != nil || method == "" {
			return nil, nil, nil
		}
		evt := &Event{Method: method, Params: msg.Params}
		if present(msg.SessionID) {
			if err := json.Unmarshal(msg.SessionID, &evt.SessionID); err != nil {
				return nil, nil, nil
			}
		}
		return nil, evt, nil
	}

	return nil, nil, nil
}

// present reports whether a member was sent with a non-null value.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// encodeRequest serializes a command, substituting an empty object for nil
// params.
func encodeRequest(id int64, method string, params any) ([]byte, error) {
	if params == nil {
		params = emptyParams
	}
	return json.Marshal(Request{
		ID:     id,
		Method: method,
		Params: params,
	})
}
