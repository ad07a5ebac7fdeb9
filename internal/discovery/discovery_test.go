package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

// splitHostPort extracts host and port from a listener address.
func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return host, port
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	host, port := splitHostPort(t, server.Listener.Addr().String())
	return New(host, port, opts...)
}

// closedPort returns a port nothing is listening on.
func closedPort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port := splitHostPort(t, l.Addr().String())
	l.Close()
	return port
}

func TestList_ParsesResponse(t *testing.T) {
	t.Parallel()

	targets := []Target{
		{
			ID:                   "0f2c936f-b1cd-4ac9-aab3-f63b0f33d55e",
			Title:                "main.js",
			Type:                 "node",
			URL:                  "file:///app/main.js",
			WebSocketDebuggerURL: "ws://127.0.0.1:9229/0f2c936f-b1cd-4ac9-aab3-f63b0f33d55e",
			DevtoolsFrontendURL:  "devtools://devtools/bundled/js_app.html?ws=127.0.0.1:9229/0f2c936f",
			FaviconURL:           "https://nodejs.org/static/images/favicons/favicon.ico",
			Description:          "node.js instance",
		},
		{
			ID:   "second",
			Type: "node",
		},
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(targets)
	}))

	result, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(result))
	}
	if result[0] != targets[0] {
		t.Errorf("target not returned verbatim:\n got  %+v\n want %+v", result[0], targets[0])
	}
	if result[1].ID != "second" {
		t.Errorf("expected second target to keep its order, got %s", result[1].ID)
	}
}

func TestList_EmptyArray(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))

	result, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected no targets, got %d", len(result))
	}
}

func TestVersion_MapsWireFields(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Node","Protocol-Version":"v1.1"}`))
	}))

	info, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.Browser != "Node" {
		t.Errorf("expected browser Node, got %q", info.Browser)
	}
	if info.ProtocolVersion != "v1.1" {
		t.Errorf("expected protocol version v1.1, got %q", info.ProtocolVersion)
	}
}

func TestVersion_ExposesOptionalFields(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"Browser": "Chrome/120.0.0.0",
			"Protocol-Version": "1.3",
			"User-Agent": "Mozilla/5.0",
			"V8-Version": "12.0.267.8",
			"WebKit-Version": "537.36",
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/abc"
		}`))
	}))

	info, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := VersionInfo{
		Browser:              "Chrome/120.0.0.0",
		ProtocolVersion:      "1.3",
		UserAgent:            "Mozilla/5.0",
		V8Version:            "12.0.267.8",
		WebKitVersion:        "537.36",
		WebSocketDebuggerURL: "ws://127.0.0.1:9222/devtools/browser/abc",
	}
	if info != want {
		t.Errorf("got %+v, want %+v", info, want)
	}
}

func TestGet_FailsOnNonOKStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))

	_, err := client.Version(context.Background())
	if err == nil {
		t.Fatal("expected error for status 500")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", statusErr.StatusCode)
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if reqErr.Method != http.MethodGet || !strings.HasSuffix(reqErr.URL, "/json/version") {
		t.Errorf("unexpected request in error: %s %s", reqErr.Method, reqErr.URL)
	}
}

func TestGet_FailsOnInvalidJSON(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))

	if _, err := client.List(context.Background()); err == nil {
		t.Error("expected error for non-JSON body from /json")
	}
	if _, err := client.Version(context.Background()); err == nil {
		t.Error("expected error for non-JSON body from /json/version")
	}
}

func TestGet_RequestTimeout(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}), WithTimeout(100*time.Millisecond))

	_, err := client.List(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || !reqErr.Timeout() {
		t.Fatalf("expected RequestError reporting a timeout, got %T: %v", err, err)
	}
	if want := "timeout: GET " + client.URL("/json"); err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestWaitForPort_TimesOut(t *testing.T) {
	t.Parallel()

	client := New("127.0.0.1", closedPort(t),
		WithTimeout(200*time.Millisecond),
		WithPollInterval(20*time.Millisecond),
	)

	start := time.Now()
	_, err := client.List(context.Background())
	if err == nil {
		t.Fatal("expected error for closed port")
	}
	if !errors.Is(err, ErrPortTimeout) {
		t.Fatalf("expected ErrPortTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), MsgTimeoutWaitPortOpen) {
		t.Errorf("expected %q in %q", MsgTimeoutWaitPortOpen, err.Error())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("port wait took %v, expected about 200ms", elapsed)
	}
}

func TestWaitForPort_WaitsForLateListener(t *testing.T) {
	t.Parallel()

	port := closedPort(t)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	started := make(chan struct{})
	go func() {
		defer close(started)
		time.Sleep(150 * time.Millisecond)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		server.Listener.Close()
		server.Listener = l
		server.Start()
	}()

	client := New("127.0.0.1", port,
		WithTimeout(3*time.Second),
		WithPollInterval(20*time.Millisecond),
	)

	_, err := client.List(context.Background())
	<-started
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForPort_MemoizesSuccess(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))

	if _, err := client.List(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.mu.Lock()
	open := client.portOpen
	client.mu.Unlock()
	if !open {
		t.Fatal("expected port to be recorded as open")
	}

	// A cancelled context would fail any real probe.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.WaitForPort(ctx); err != nil {
		t.Errorf("expected memoized port wait to skip probing, got %v", err)
	}
}

func TestWaitForPort_DoesNotMemoizeFailure(t *testing.T) {
	t.Parallel()

	client := New("127.0.0.1", closedPort(t),
		WithTimeout(50*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)

	if err := client.WaitForPort(context.Background()); !errors.Is(err, ErrPortTimeout) {
		t.Fatalf("expected ErrPortTimeout, got %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.portOpen {
		t.Error("failed wait must not be memoized")
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	client := New("localhost", 9229)
	if got := client.URL("/json"); got != "http://localhost:9229/json" {
		t.Errorf("unexpected URL %q", got)
	}

	client = New("::1", 9229)
	if got := client.Address(); got != "[::1]:9229" {
		t.Errorf("unexpected IPv6 address %q", got)
	}
}
