package cdp

import (
	"errors"
	"strings"
	"testing"
)

func TestParseMessage_Response(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantID     int64
		wantResult string
		wantErr    bool
	}{
		{
			name:       "successful response",
			input:      `{"id":1,"result":{"debuggerId":"D1"}}`,
			wantID:     1,
			wantResult: `{"debuggerId":"D1"}`,
			wantErr:    false,
		},
		{
			name:       "response with null result",
			input:      `{"id":42,"result":null}`,
			wantID:     42,
			wantResult: `null`,
			wantErr:    false,
		},
		{
			name:       "response with empty result",
			input:      `{"id":5,"result":{}}`,
			wantID:     5,
			wantResult: `{}`,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, evt, err := parseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("parseMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if evt != nil {
				t.Errorf("expected event to be nil, got %+v", evt)
			}
			if resp == nil {
				t.Fatal("expected response, got nil")
			}
			if resp.ID != tt.wantID {
				t.Errorf("expected ID %d, got %d", tt.wantID, resp.ID)
			}
			if string(resp.Result) != tt.wantResult {
				t.Errorf("expected result %s, got %s", tt.wantResult, string(resp.Result))
			}
		})
	}
}

func TestParseMessage_ResponseWithError(t *testing.T) {
	t.Parallel()

	input := `{"id":1,"error":{"code":-32000,"message":"Execution context was destroyed.","data":"extra info"}}`

	resp, evt, err := parseMessage([]byte(input))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if evt != nil {
		t.Errorf("expected event to be nil, got %+v", evt)
	}
	if resp == nil {
		t.Fatal("expected response, got nil")
	}
	if resp.Error == nil {
		t.Fatal("expected error in response, got nil")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("expected error code -32000, got %d", resp.Error.Code)
	}
	if resp.Error.Message != "Execution context was destroyed." {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
	if string(resp.Error.Data) != `"extra info"` {
		t.Errorf("expected data \"extra info\", got %s", resp.Error.Data)
	}
}

func TestParseMessage_ErrorDataObject(t *testing.T) {
	t.Parallel()

	input := `{"id":1,"error":{"code":-32000,"message":"boom","data":{"k":1}}}`

	resp, _, err := parseMessage([]byte(input))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if resp.Error.Message != "boom" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
	if string(resp.Error.Data) != `{"k":1}` {
		t.Errorf("unexpected data %s", resp.Error.Data)
	}
}

func TestParseMessage_Event(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantMethod string
		wantParams string
	}{
		{
			name:       "simple event",
			input:      `{"method":"Debugger.scriptParsed","params":{"scriptId":"42","url":"file:///app/main.js"}}`,
			wantMethod: "Debugger.scriptParsed",
			wantParams: `{"scriptId":"42","url":"file:///app/main.js"}`,
		},
		{
			name:       "event with empty params",
			input:      `{"method":"Runtime.executionContextsCleared","params":{}}`,
			wantMethod: "Runtime.executionContextsCleared",
			wantParams: `{}`,
		},
		{
			name:       "event with complex params",
			input:      `{"method":"Runtime.consoleAPICalled","params":{"type":"log","args":[{"type":"string","value":"hello"}]}}`,
			wantMethod: "Runtime.consoleAPICalled",
			wantParams: `{"type":"log","args":[{"type":"string","value":"hello"}]}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, evt, err := parseMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			if resp != nil {
				t.Errorf("expected response to be nil, got %+v", resp)
			}
			if evt == nil {
				t.Fatal("expected event, got nil")
			}
			if evt.Method != tt.wantMethod {
				t.Errorf("expected method %s, got %s", tt.wantMethod, evt.Method)
			}
			if string(evt.Params) != tt.wantParams {
				t.Errorf("expected params %s, got %s", tt.wantParams, string(evt.Params))
			}
		})
	}
}

func TestParseMessage_InvalidJSON(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`not json`,
		`{`,
		`{"id":}`,
		``,
	}

	for _, input := range inputs {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()

			_, _, err := parseMessage([]byte(input))
			if err == nil {
				t.Fatal("expected error for invalid JSON, got nil")
			}
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("expected ErrProtocol, got %T: %v", err, err)
			}
			if !strings.HasPrefix(err.Error(), MsgJSONParseError+": ") {
				t.Errorf("expected message to start with %q, got %q", MsgJSONParseError, err.Error())
			}
		})
	}
}

func TestParseMessage_UnknownFormatIsDropped(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{"foo":"bar"}`,
		`{}`,
		`{"id":0,"result":{}}`,
		`42`,
		`[1,2]`,
		`"Runtime.enable"`,
		`null`,
		`{"id":"7","result":{}}`,
		`{"id":1.5,"result":{}}`,
		`{"id":1,"error":"boom"}`,
		`{"method":42,"params":{}}`,
		`{"method":"Debugger.paused","sessionId":7}`,
	}

	for _, input := range inputs {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()

			resp, evt, err := parseMessage([]byte(input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp != nil || evt != nil {
				t.Errorf("expected frame to be dropped, got resp=%+v evt=%+v", resp, evt)
			}
		})
	}
}

func TestParseMessage_EventWithSessionID(t *testing.T) {
	t.Parallel()

	input := `{"method":"Runtime.executionContextCreated","params":{"context":{"id":1}},"sessionId":"S1"}`

	resp, evt, err := parseMessage([]byte(input))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected event, got response %+v", resp)
	}
	if evt.SessionID != "S1" {
		t.Errorf("expected session S1, got %q", evt.SessionID)
	}
}

func TestParseMessage_IDTakesPrecedenceOverMethod(t *testing.T) {
	t.Parallel()

	resp, evt, err := parseMessage([]byte(`{"id":7,"method":"Runtime.evaluate","result":{}}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if evt != nil {
		t.Errorf("expected no event, got %+v", evt)
	}
	if resp == nil || resp.ID != 7 {
		t.Errorf("expected response with id 7, got %+v", resp)
	}
}

func TestRemoteError_Error(t *testing.T) {
	t.Parallel()

	err := &RemoteError{Code: -32601, Message: "'Foo.bar' wasn't found"}
	if got := err.Error(); got != "'Foo.bar' wasn't found" {
		t.Errorf("expected peer message, got %q", got)
	}
	if !errors.Is(err, ErrProtocol) {
		t.Error("expected RemoteError to match ErrProtocol")
	}
}

func TestEncodeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       int64
		method   string
		params   any
		expected string
	}{
		{
			name:     "nil params become empty object",
			id:       1,
			method:   "Runtime.enable",
			expected: `{"id":1,"method":"Runtime.enable","params":{}}`,
		},
		{
			name:     "request with params",
			id:       2,
			method:   "Runtime.evaluate",
			params:   map[string]string{"expression": "1+2"},
			expected: `{"id":2,"method":"Runtime.evaluate","params":{"expression":"1+2"}}`,
		},
		{
			name:     "typed empty params",
			id:       3,
			method:   "Debugger.enable",
			params:   Empty{},
			expected: `{"id":3,"method":"Debugger.enable","params":{}}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := encodeRequest(tt.id, tt.method, tt.params)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(data))
			}
		})
	}
}

func FuzzParseMessage(f *testing.F) {
	// Seed with valid message formats
	f.Add([]byte(`{"id":1,"result":{}}`))
	f.Add([]byte(`{"id":1,"error":{"code":-1,"message":"error"}}`))
	f.Add([]byte(`{"method":"Runtime.executionContextCreated","params":{}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"id":0}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, data []byte) {
		resp, evt, err := parseMessage(data)
		if resp != nil && evt != nil {
			t.Fatalf("frame classified as both response and event: %q", data)
		}
		if err != nil && (resp != nil || evt != nil) {
			t.Fatalf("error returned with a message: %v", err)
		}
	})
}
