// Package cdptest provides a scripted inspector endpoint for tests: the
// discovery routes (/json, /json/version) and a WebSocket debugger endpoint
// per advertised target.
package cdptest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// Request is a command received by the inspector.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Handler answers one command. It runs on the connection's read goroutine.
type Handler func(p *Peer, req Request)

// Echo answers every command with an empty result.
func Echo(p *Peer, req Request) {
	_ = p.Respond(req.ID, struct{}{})
}

// Silent never answers.
func Silent(*Peer, Request) {}

// Option configures an Inspector.
type Option func(*Inspector)

// WithTargets sets how many targets /json advertises. All of them point at
// the same WebSocket endpoint, distinguished by path.
func WithTargets(n int) Option {
	return func(i *Inspector) {
		i.targets = n
	}
}

// WithHandler sets the command handler. The default is Echo.
func WithHandler(h Handler) Option {
	return func(i *Inspector) {
		i.handler = h
	}
}

// WithVersion sets the raw body served by /json/version.
func WithVersion(body string) Option {
	return func(i *Inspector) {
		i.version = body
	}
}

// Inspector is a fake debug port.
type Inspector struct {
	server  *httptest.Server
	targets int
	handler Handler
	version string

	mu       sync.Mutex
	peers    []*Peer
	paths    []string
	wg       sync.WaitGroup
	received chan Request
	accepted chan *Peer
}

// New starts an inspector and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Inspector {
	t.Helper()

	i := &Inspector{
		targets:  1,
		handler:  Echo,
		version:  `{"Browser":"node.js/v20.11.0","Protocol-Version":"1.1"}`,
		received: make(chan Request, 256),
		accepted: make(chan *Peer, 16),
	}
	for _, opt := range opts {
		opt(i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/json", i.serveList)
	mux.HandleFunc("/json/list", i.serveList)
	mux.HandleFunc("/json/version", i.serveVersion)
	mux.HandleFunc("/ws/", i.serveWebSocket)
	i.server = httptest.NewServer(mux)

	t.Cleanup(i.Close)
	return i
}

// Host returns the listener host.
func (i *Inspector) Host() string {
	host, _, _ := net.SplitHostPort(i.server.Listener.Addr().String())
	return host
}

// Port returns the listener port.
func (i *Inspector) Port() int {
	_, portStr, _ := net.SplitHostPort(i.server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return port
}

// TargetURL returns the WebSocket URL of target n.
func (i *Inspector) TargetURL(n int) string {
	return fmt.Sprintf("ws://%s/ws/target-%d", i.server.Listener.Addr().String(), n)
}

// Received delivers every command the inspector reads, in arrival order.
func (i *Inspector) Received() <-chan Request {
	return i.received
}

// Accepted delivers each peer as its WebSocket handshake completes.
func (i *Inspector) Accepted() <-chan *Peer {
	return i.accepted
}

// Connections returns the number of WebSocket connections accepted so far.
func (i *Inspector) Connections() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.peers)
}

// Paths returns the request path of each accepted connection.
func (i *Inspector) Paths() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.paths...)
}

// Close drops every connection and stops the server.
func (i *Inspector) Close() {
	i.mu.Lock()
	peers := append([]*Peer(nil), i.peers...)
	i.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.CloseNow()
	}
	i.wg.Wait()
	i.server.Close()
}

func (i *Inspector) serveList(w http.ResponseWriter, r *http.Request) {
	type target struct {
		Description          string `json:"description"`
		DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl"`
		FaviconURL           string `json:"faviconUrl"`
		ID                   string `json:"id"`
		Title                string `json:"title"`
		Type                 string `json:"type"`
		URL                  string `json:"url"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}

	targets := make([]target, 0, i.targets)
	for n := 0; n < i.targets; n++ {
		targets = append(targets, target{
			Description:          "node.js instance",
			DevtoolsFrontendURL:  "devtools://devtools/bundled/js_app.html?experiments=true&v8only=true",
			FaviconURL:           "https://nodejs.org/static/images/favicons/favicon.ico",
			ID:                   fmt.Sprintf("target-%d", n),
			Title:                fmt.Sprintf("script-%d.js", n),
			Type:                 "node",
			URL:                  fmt.Sprintf("file:///tmp/script-%d.js", n),
			WebSocketDebuggerURL: i.TargetURL(n),
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(targets)
}

func (i *Inspector) serveVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_, _ = w.Write([]byte(i.version))
}

func (i *Inspector) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	conn.SetReadLimit(-1)

	p := &Peer{conn: conn, Path: r.URL.Path}
	i.mu.Lock()
	i.peers = append(i.peers, p)
	i.paths = append(i.paths, r.URL.Path)
	i.wg.Add(1)
	i.mu.Unlock()
	defer i.wg.Done()

	select {
	case i.accepted <- p:
	default:
	}

	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		select {
		case i.received <- req:
		default:
		}
		i.handler(p, req)
	}
}

// Peer is the inspector side of one WebSocket connection.
type Peer struct {
	Path string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Respond sends a result for id.
func (p *Peer) Respond(id int64, result any) error {
	return p.writeJSON(map[string]any{"id": id, "result": result})
}

// RespondError sends an error member for id.
func (p *Peer) RespondError(id int64, code int, message string) error {
	return p.writeJSON(map[string]any{
		"id":    id,
		"error": map[string]any{"code": code, "message": message},
	})
}

// Emit sends an event. An empty sessionID is omitted.
func (p *Peer) Emit(method string, params any, sessionID string) error {
	msg := map[string]any{"method": method, "params": params}
	if sessionID != "" {
		msg["sessionId"] = sessionID
	}
	return p.writeJSON(msg)
}

// WriteRaw sends data as a text frame without validation.
func (p *Peer) WriteRaw(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.Write(context.Background(), websocket.MessageText, data)
}

// Close performs a close handshake with code.
func (p *Peer) Close(code websocket.StatusCode, reason string) error {
	return p.conn.Close(code, reason)
}

// Drop closes the underlying TCP connection without a close frame.
func (p *Peer) Drop() error {
	return p.conn.CloseNow()
}

func (p *Peer) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.WriteRaw(data)
}
