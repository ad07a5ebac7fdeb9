package cdp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Method names a command together with its params and result types.
type Method[P, R any] string

// Name returns the wire method name.
func (m Method[P, R]) Name() string {
	return string(m)
}

// EventName names an event together with its payload type.
type EventName[P any] string

// Name returns the wire method name.
func (e EventName[P]) Name() string {
	return string(e)
}

// Invoke sends m with params and decodes the result into R.
func Invoke[P, R any](ctx context.Context, b *Bridge, m Method[P, R], params P) (R, error) {
	var result R

	raw, err := b.Send(ctx, m.Name(), params)
	if err != nil {
		return result, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("decode %s result: %w", m.Name(), err)
	}
	return result, nil
}

// Subscribe registers fn for e, decoding each payload into P. Payloads that
// do not decode are logged and skipped.
func Subscribe[P any](b *Bridge, e EventName[P], fn func(params P, sessionID string)) Subscription {
	return b.On(e.Name(), func(raw json.RawMessage, sessionID string) {
		var params P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				b.log.Error(err, "Failed to decode event", "event", e.Name())
				return
			}
		}
		fn(params, sessionID)
	})
}

// Empty is the params or result of methods that carry none.
type Empty struct{}

// RemoteObject mirrors Runtime.RemoteObject.
type RemoteObject struct {
	Type                string          `json:"type"`
	Subtype             string          `json:"subtype,omitempty"`
	ClassName           string          `json:"className,omitempty"`
	Value               json.RawMessage `json:"value,omitempty"`
	UnserializableValue string          `json:"unserializableValue,omitempty"`
	Description         string          `json:"description,omitempty"`
	ObjectID            string          `json:"objectId,omitempty"`
}

// ExceptionDetails mirrors Runtime.ExceptionDetails.
type ExceptionDetails struct {
	ExceptionID  int           `json:"exceptionId"`
	Text         string        `json:"text"`
	LineNumber   int           `json:"lineNumber"`
	ColumnNumber int           `json:"columnNumber"`
	Exception    *RemoteObject `json:"exception,omitempty"`
}

// Error renders the exception the way the inspector console does.
func (d *ExceptionDetails) Error() string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// EvaluateParams are the params of Runtime.evaluate.
type EvaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue,omitempty"`
	AwaitPromise  bool   `json:"awaitPromise,omitempty"`
	ContextID     int    `json:"contextId,omitempty"`
	ObjectGroup   string `json:"objectGroup,omitempty"`
	Silent        bool   `json:"silent,omitempty"`
}

// EvaluateResult is the result of Runtime.evaluate.
type EvaluateResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// ExecutionContextDescription mirrors Runtime.ExecutionContextDescription.
type ExecutionContextDescription struct {
	ID       int             `json:"id"`
	Origin   string          `json:"origin"`
	Name     string          `json:"name"`
	UniqueID string          `json:"uniqueId,omitempty"`
	AuxData  json.RawMessage `json:"auxData,omitempty"`
}

// ExecutionContextCreatedEvent is the payload of Runtime.executionContextCreated.
type ExecutionContextCreatedEvent struct {
	Context ExecutionContextDescription `json:"context"`
}

// ConsoleAPICalledEvent is the payload of Runtime.consoleAPICalled.
type ConsoleAPICalledEvent struct {
	Type               string         `json:"type"`
	Args               []RemoteObject `json:"args"`
	ExecutionContextID int            `json:"executionContextId"`
	Timestamp          float64        `json:"timestamp"`
}

// DebuggerEnableResult is the result of Debugger.enable.
type DebuggerEnableResult struct {
	DebuggerID string `json:"debuggerId"`
}

// PausedEvent is the payload of Debugger.paused.
type PausedEvent struct {
	Reason         string          `json:"reason"`
	CallFrames     json.RawMessage `json:"callFrames"`
	HitBreakpoints []string        `json:"hitBreakpoints,omitempty"`
}

// Methods and events used by this module. Payloads of anything else pass
// through Send and On untyped.
var (
	RuntimeEnable                  = Method[Empty, Empty]("Runtime.enable")
	RuntimeDisable                 = Method[Empty, Empty]("Runtime.disable")
	RuntimeEvaluate                = Method[EvaluateParams, EvaluateResult]("Runtime.evaluate")
	RuntimeRunIfWaitingForDebugger = Method[Empty, Empty]("Runtime.runIfWaitingForDebugger")
	DebuggerEnable                 = Method[Empty, DebuggerEnableResult]("Debugger.enable")
	DebuggerResume                 = Method[Empty, Empty]("Debugger.resume")

	ExecutionContextCreated = EventName[ExecutionContextCreatedEvent]("Runtime.executionContextCreated")
	ConsoleAPICalled        = EventName[ConsoleAPICalledEvent]("Runtime.consoleAPICalled")
	DebuggerPaused          = EventName[PausedEvent]("Debugger.paused")
)
