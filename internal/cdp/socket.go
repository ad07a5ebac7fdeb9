package cdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// socketHandler receives the transport events of a socket. All calls happen
// on the socket's read goroutine.
type socketHandler interface {
	handleMessage(s *socket, data []byte) error
	handleError(s *socket, err error)
	handleClose(s *socket, cause error)
}

// socket is one WebSocket connection. A Bridge creates a new socket for each
// successful Connect and never reuses a closed one.
type socket struct {
	url   string
	state atomic.Int32

	conn    Conn
	writeMu sync.Mutex

	// closing is set when the close was requested locally, so the read
	// error that follows is not reported as a transport error.
	closing atomic.Bool
	closeMu sync.Mutex

	// done signals that the read loop has exited
	done chan struct{}
}

func newSocket(url string) *socket {
	s := &socket{
		url:  url,
		done: make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *socket) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

func (s *socket) setState(state ConnectionState) {
	s.state.Store(int32(state))
}

// open attaches the dialed connection and starts the read loop.
func (s *socket) open(conn Conn, h socketHandler) {
	s.conn = conn
	s.setState(StateOpen)
	go s.readLoop(h)
}

// fail marks a socket whose dial never completed.
func (s *socket) fail() {
	s.setState(StateClosed)
	close(s.done)
}

func (s *socket) write(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// close requests a normal closure and waits for the read loop to observe it.
func (s *socket) close(ctx context.Context) error {
	if s.closing.Swap(true) || s.State() == StateClosed {
		return s.wait(ctx)
	}
	s.setState(StateClosing)

	s.closeMu.Lock()
	err := s.conn.Close(websocket.StatusNormalClosure, "client closing")
	s.closeMu.Unlock()

	if waitErr := s.wait(ctx); waitErr != nil {
		return waitErr
	}
	if err != nil && !isCleanClose(err) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

func (s *socket) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort tears the connection down after a transport or framing error.
func (s *socket) abort(code websocket.StatusCode, reason string) {
	if s.closing.Swap(true) {
		return
	}
	s.setState(StateClosing)

	s.closeMu.Lock()
	_ = s.conn.Close(code, reason)
	s.closeMu.Unlock()
}

// readLoop reads messages from the connection and dispatches them.
func (s *socket) readLoop(h socketHandler) {
	defer close(s.done)

	var cause error
	ctx := context.Background()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if !s.closing.Load() && !isCleanClose(err) {
				cause = err
				h.handleError(s, err)
				s.abort(websocket.StatusInternalError, "transport error")
			}
			break
		}

		if err := h.handleMessage(s, data); err != nil {
			cause = err
			h.handleError(s, err)
			s.abort(websocket.StatusInvalidFramePayloadData, "malformed message")
			break
		}
	}

	// Pending commands are failed before the socket reports Closed.
	s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	h.handleClose(s, cause)
	s.setState(StateClosed)
}
