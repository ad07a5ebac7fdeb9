package cdp

import (
	"github.com/coder/websocket"
)

// ConnectionState is the lifecycle state of a bridge's socket.
type ConnectionState int32

const (
	// StateDisconnected is the state before the first dial.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the WebSocket handshake is in progress.
	StateConnecting
	// StateOpen indicates commands may be sent.
	StateOpen
	// StateClosing indicates a close was requested and is awaiting the peer.
	StateClosing
	// StateClosed indicates the socket is gone. A new Connect may follow.
	StateClosed
)

// String returns a human-readable name for the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// isCleanClose reports whether a read error means the peer closed the
// connection deliberately (codes 1000, 1001). Anything else, including a
// dropped TCP connection, is a transport error.
func isCleanClose(err error) bool {
	if err == nil {
		return true
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
