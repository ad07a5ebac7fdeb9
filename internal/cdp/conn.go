// Package cdp provides a client for the Chrome DevTools Protocol as served by
// a Node or Electron inspector port.
//
// A Bridge resolves the debugger's WebSocket URL through the HTTP discovery
// endpoints, opens one connection, and multiplexes commands over it. Commands
// are correlated with responses by numeric id; frames without an id are
// events and fan out to listeners registered with On.
package cdp

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// MaxMessageSize is the largest inbound frame accepted from the debugger.
// Heap snapshots and large evaluation results routinely exceed the
// websocket library's 32 KiB default.
const MaxMessageSize = 256 << 20

// Conn defines the interface for a WebSocket connection.
// This abstraction enables testing with mock connections.
type Conn interface {
	// Read reads a message from the connection.
	// Returns message type, payload, and any error.
	Read(ctx context.Context) (websocket.MessageType, []byte, error)

	// Write writes a message to the connection.
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error

	// Close closes the connection with a status code and reason.
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a connection to a debugger WebSocket URL. The context carries
// the handshake deadline.
type Dialer func(ctx context.Context, wsURL string) (Conn, error)

// DialWebSocket is the default Dialer. Per-message compression is disabled
// since inspectors do not negotiate it reliably.
func DialWebSocket(ctx context.Context, wsURL string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CDP endpoint: %w", err)
	}
	conn.SetReadLimit(MaxMessageSize)
	return conn, nil
}
