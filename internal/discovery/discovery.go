// Package discovery queries an inspector's HTTP endpoints for debug targets
// and version metadata.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

const (
	// DefaultTimeout bounds the port wait and each HTTP request.
	DefaultTimeout = 10 * time.Second

	// DefaultPollInterval is the pause between port probes.
	DefaultPollInterval = 100 * time.Millisecond

	// MsgTimeoutWaitPortOpen is the text of ErrPortTimeout.
	MsgTimeoutWaitPortOpen = "timeout waiting for port open"
)

var (
	// ErrPortTimeout is returned when the debug port never accepts a
	// connection within the timeout.
	ErrPortTimeout = errors.New(MsgTimeoutWaitPortOpen)

	// ErrRequestTimeout is returned when an HTTP request exceeds the timeout.
	ErrRequestTimeout = errors.New("request timed out")
)

// Target represents a debug target advertised by GET /json.
type Target struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl,omitempty"`
	FaviconURL           string `json:"faviconUrl,omitempty"`
	Description          string `json:"description,omitempty"`
}

// VersionInfo is the version metadata from GET /json/version.
type VersionInfo struct {
	Browser              string `json:"browser"`
	ProtocolVersion      string `json:"protocolVersion"`
	UserAgent            string `json:"userAgent,omitempty"`
	V8Version            string `json:"v8Version,omitempty"`
	WebKitVersion        string `json:"webKitVersion,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// versionWire is the wire shape of /json/version.
type versionWire struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// RequestError describes a failed discovery request.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	if errors.Is(e.Err, ErrRequestTimeout) {
		return fmt.Sprintf("timeout: %s %s", e.Method, e.URL)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request failed because a deadline passed.
func (e *RequestError) Timeout() bool {
	return errors.Is(e.Err, ErrPortTimeout) || errors.Is(e.Err, ErrRequestTimeout)
}

// StatusError is returned when the endpoint answers with a status other
// than 200.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the port-wait and per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets the pause between port probes.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its own timeouts are left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		if log.GetSink() != nil {
			c.log = log
		}
	}
}

// Client talks to one inspector's HTTP endpoints.
type Client struct {
	host         string
	port         int
	timeout      time.Duration
	pollInterval time.Duration
	http         *http.Client
	log          logr.Logger

	mu       sync.Mutex
	portOpen bool
}

// New creates a discovery client for host:port.
func New(host string, port int, opts ...Option) *Client {
	c := &Client{
		host:         host,
		port:         port,
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = newHTTPClient(c.timeout)
	}
	c.log = c.log.WithName("discovery")
	return c
}

// newHTTPClient applies timeout to the whole request as well as to the dial
// and the wait for response headers.
func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: timeout,
			DisableKeepAlives:     true,
		},
	}
}

// Address returns host:port.
func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// URL returns the http URL of path on the inspector.
func (c *Client) URL(path string) string {
	return "http://" + c.Address() + path
}

// List retrieves the debug targets from GET /json.
func (c *Client) List(ctx context.Context) ([]Target, error) {
	var targets []Target
	if err := c.get(ctx, "/json", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Version retrieves version metadata from GET /json/version.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var wire versionWire
	if err := c.get(ctx, "/json/version", &wire); err != nil {
		return VersionInfo{}, err
	}
	return VersionInfo{
		Browser:              wire.Browser,
		ProtocolVersion:      wire.ProtocolVersion,
		UserAgent:            wire.UserAgent,
		V8Version:            wire.V8Version,
		WebKitVersion:        wire.WebKitVersion,
		WebSocketDebuggerURL: wire.WebSocketDebuggerURL,
	}, nil
}

// WaitForPort blocks until the debug port accepts a TCP connection. Once it
// has succeeded it returns immediately for the lifetime of the Client.
func (c *Client) WaitForPort(ctx context.Context) error {
	c.mu.Lock()
	open := c.portOpen
	c.mu.Unlock()
	if open {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := c.Address()
	dialer := &net.Dialer{}
	probe := func() error {
		conn, err := dialer.DialContext(waitCtx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), waitCtx)
	if err := backoff.Retry(probe, policy); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.V(1).Info("Debug port did not open", "address", addr, "error", err.Error())
		return ErrPortTimeout
	}

	c.mu.Lock()
	c.portOpen = true
	c.mu.Unlock()
	return nil
}

// get waits for the port, issues GET path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	url := c.URL(path)
	fail := func(err error) error {
		return &RequestError{Method: http.MethodGet, URL: url, Err: err}
	}

	if err := c.WaitForPort(ctx); err != nil {
		return fail(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return fail(ErrRequestTimeout)
		}
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(&StatusError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return fail(ErrRequestTimeout)
		}
		return fail(fmt.Errorf("read response: %w", err))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fail(fmt.Errorf("parse response: %w", err))
	}

	c.log.V(2).Info("Discovery request completed", "url", url, "bytes", len(body))
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
