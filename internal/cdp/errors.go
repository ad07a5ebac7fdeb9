package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message text below is part of the observable contract; tests and callers
// match on it.
const (
	MsgTimeoutWaitResponse   = "timeout waiting for response"
	MsgDebuggerNotFound      = "no debugger found"
	MsgDebuggerFoundMultiple = "multiple debuggers found, using the first one"
	MsgNotConnected          = "not connected: call connect() before calling this method"
	MsgConnectionClosed      = "connection closed"
	MsgJSONParseError        = "failed to parse json"
	MsgInternalErrorOnClose  = "internal error on close"
)

var (
	// ErrConnection matches every error returned by a failed Connect.
	ErrConnection = errors.New("connection error")

	// ErrTimeout matches command response timeouts and discovery requests
	// that ran out of time during Connect.
	ErrTimeout = errors.New("timeout")

	// ErrProtocol matches malformed frames and errors reported by the peer.
	ErrProtocol = errors.New("protocol error")

	// ErrNotConnected is returned by Send when no open connection exists.
	ErrNotConnected = errors.New(MsgNotConnected)

	// ErrConnectionClosed fails pending commands when the connection closes
	// without an underlying error.
	ErrConnectionClosed = errors.New(MsgConnectionClosed)

	// ErrDebuggerNotFound is returned when discovery lists no targets.
	ErrDebuggerNotFound = errors.New(MsgDebuggerNotFound)

	// ErrCallPending is returned by Call.Result before the call completes.
	ErrCallPending = errors.New("call not complete")
)

// ConnectionError wraps the final failure of Connect.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// TimeoutError is returned when a command gets no response in time.
type TimeoutError struct {
	ID int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: id=%d", MsgTimeoutWaitResponse, e.ID)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Timeout implements the net.Error convention.
func (e *TimeoutError) Timeout() bool {
	return true
}

// discoveryTimeoutError marks a discovery failure caused by a deadline so
// that it matches ErrTimeout.
type discoveryTimeoutError struct {
	Err error
}

func (e *discoveryTimeoutError) Error() string {
	return e.Err.Error()
}

func (e *discoveryTimeoutError) Unwrap() error {
	return e.Err
}

func (e *discoveryTimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *discoveryTimeoutError) Timeout() bool {
	return true
}

// ProtocolError reports an inbound frame that is not valid JSON. The
// connection is closed when one is seen.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %v", MsgJSONParseError, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// RemoteError is the error member of a response. It fails only the command
// it answers.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error returns the message reported by the debugger.
func (e *RemoteError) Error() string {
	return e.Message
}

// Is reports whether target is ErrProtocol.
func (e *RemoteError) Is(target error) bool {
	return target == ErrProtocol
}

// InternalCloseError is the shared cause given to pending commands when the
// connection closes because of a transport or framing error.
type InternalCloseError struct {
	Cause error
}

func (e *InternalCloseError) Error() string {
	return fmt.Sprintf("%s: %v", MsgInternalErrorOnClose, e.Cause)
}

func (e *InternalCloseError) Unwrap() error {
	return e.Cause
}

// IsClosed reports whether err failed a command because the connection went
// away, cleanly or not.
func IsClosed(err error) bool {
	var closeErr *InternalCloseError
	return errors.Is(err, ErrConnectionClosed) || errors.As(err, &closeErr)
}
