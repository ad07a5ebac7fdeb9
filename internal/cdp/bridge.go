package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/discovery"
)

const (
	// DefaultHost is the inspector host used when Options.Host is empty.
	DefaultHost = "localhost"
	// DefaultPort is the Node inspector's default port.
	DefaultPort = 9229
	// DefaultTimeout bounds discovery requests, the WebSocket handshake and
	// each command's wait for a response.
	DefaultTimeout = 10 * time.Second
	// DefaultWaitInterval is the pause between connection attempts.
	DefaultWaitInterval = 100 * time.Millisecond
	// DefaultConnectionRetryCount is the number of attempts after the first.
	DefaultConnectionRetryCount = 3
)

// TargetLister lists debug targets. *discovery.Client implements it.
type TargetLister interface {
	List(ctx context.Context) ([]discovery.Target, error)
}

// Options configures a Bridge. Start from DefaultOptions; New only fills in
// Host, Port and Timeout when they are zero, because zero is a meaningful
// WaitInterval and ConnectionRetryCount.
type Options struct {
	Host                 string
	Port                 int
	Timeout              time.Duration
	WaitInterval         time.Duration
	ConnectionRetryCount int

	Logger logr.Logger

	// Discovery overrides the target lister. Defaults to a discovery.Client
	// for Host:Port.
	Discovery TargetLister

	// Dialer overrides how the WebSocket is opened. Defaults to DialWebSocket.
	Dialer Dialer
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		Timeout:              DefaultTimeout,
		WaitInterval:         DefaultWaitInterval,
		ConnectionRetryCount: DefaultConnectionRetryCount,
	}
}

// Bridge sends commands to and receives events from one debugger connection.
type Bridge struct {
	opts      Options
	log       logr.Logger
	discovery TargetLister
	dial      Dialer

	// connectMu makes Connect single-flight: concurrent callers queue here
	// and all but the first find the socket already open.
	connectMu sync.Mutex

	mu   sync.Mutex
	sock *socket // nil unless open
	last *socket // most recent socket, for State

	nextID  atomic.Int64
	pending *pendingTable
	events  *eventRegistry
}

// New creates a Bridge. It does not connect.
func New(opts Options) *Bridge {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.WaitInterval < 0 {
		opts.WaitInterval = 0
	}
	if opts.ConnectionRetryCount < 0 {
		opts.ConnectionRetryCount = 0
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	b := &Bridge{
		opts:      opts,
		log:       opts.Logger.WithName("cdp"),
		discovery: opts.Discovery,
		dial:      opts.Dialer,
		pending:   newPendingTable(),
		events:    newEventRegistry(),
	}
	if b.discovery == nil {
		b.discovery = discovery.New(opts.Host, opts.Port,
			discovery.WithTimeout(opts.Timeout),
			discovery.WithLogger(opts.Logger),
		)
	}
	if b.dial == nil {
		b.dial = DialWebSocket
	}
	return b
}

// Connect opens the connection, retrying up to ConnectionRetryCount times
// with WaitInterval between attempts. It returns nil at once if a connection
// already exists.
func (b *Bridge) Connect(ctx context.Context) error {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	if b.socket() != nil {
		return nil
	}

	attempts := b.opts.ConnectionRetryCount + 1
	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.opts.WaitInterval), uint64(b.opts.ConnectionRetryCount)),
		ctx,
	)

	err := backoff.Retry(func() error {
		attempt++
		err := b.connectOnce(ctx)
		if err == nil {
			return nil
		}
		b.log.Info("Connection attempt failed", "attempt", attempt, "of", attempts, "error", err.Error())
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// connectOnce makes a single connection attempt.
func (b *Bridge) connectOnce(ctx context.Context) error {
	wsURL, err := b.resolveURL(ctx)
	if err != nil {
		return err
	}

	s := newSocket(wsURL)
	b.mu.Lock()
	b.last = s
	b.mu.Unlock()

	opened := make(chan error, 1)
	b.pending.add(ConnectID, &completion{
		onSuccess: func(json.RawMessage) { opened <- nil },
		onFailure: func(err error) { opened <- err },
	})

	dialCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	conn, err := b.dial(dialCtx, wsURL)
	cancel()
	if err != nil {
		s.fail()
		b.pending.reject(ConnectID, err)
		return <-opened
	}

	b.mu.Lock()
	b.sock = s
	s.open(conn, b)
	b.mu.Unlock()

	b.log.V(1).Info("Connected", "url", wsURL)
	b.pending.resolve(ConnectID, nil)
	return <-opened
}

// resolveURL asks discovery for targets and picks the first one.
func (b *Bridge) resolveURL(ctx context.Context) (string, error) {
	targets, err := b.discovery.List(ctx)
	if err != nil {
		var reqErr *discovery.RequestError
		if errors.As(err, &reqErr) && reqErr.Timeout() {
			return "", &discoveryTimeoutError{Err: err}
		}
		return "", err
	}
	if len(targets) == 0 {
		return "", ErrDebuggerNotFound
	}
	if len(targets) > 1 {
		b.log.Info(MsgDebuggerFoundMultiple, "count", len(targets), "url", targets[0].WebSocketDebuggerURL)
	}
	return targets[0].WebSocketDebuggerURL, nil
}

// Send issues a command and waits for its result. The command fails with a
// *TimeoutError if no response arrives within the configured timeout. If ctx
// ends first the command is abandoned and ctx.Err() is returned.
func (b *Bridge) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	call, err := b.SendAsync(method, params)
	if err != nil {
		return nil, err
	}

	select {
	case <-call.Done():
		return call.Result()
	case <-ctx.Done():
		b.pending.remove(call.ID())
		return nil, ctx.Err()
	}
}

// SendAsync writes a command and returns without waiting for the response.
// It fails immediately with ErrNotConnected if there is no open connection.
func (b *Bridge) SendAsync(method string, params any) (*Call, error) {
	s := b.socket()
	if s == nil || s.State() != StateOpen {
		return nil, ErrNotConnected
	}

	id := b.nextID.Add(1)
	data, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	call := newCall(id, method)
	b.mu.Lock()
	if b.sock != s {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	b.pending.add(id, &completion{
		onSuccess: func(result json.RawMessage) { call.complete(result, nil) },
		onFailure: func(err error) { call.complete(nil, err) },
	})
	b.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
	defer cancel()
	if err := s.write(writeCtx, data); err != nil {
		b.pending.remove(id)
		return nil, err
	}

	b.pending.arm(id, b.opts.Timeout, func() {
		b.pending.reject(id, &TimeoutError{ID: id})
	})
	return call, nil
}

// On registers a listener for events named event. Listeners run on the read
// goroutine in registration order and must not block.
func (b *Bridge) On(event string, listener Listener) Subscription {
	return b.events.on(event, listener)
}

// State returns the state of the most recent socket. The second result is
// false if Connect has never created one.
func (b *Bridge) State() (ConnectionState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.last == nil {
		return StateDisconnected, false
	}
	return b.last.State(), true
}

// Close closes the connection and waits for the peer to confirm. It is safe
// to call at any time and more than once. Pending commands are failed by the
// close handling, not by Close itself.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	s := b.sock
	b.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.close(ctx)
}

func (b *Bridge) socket() *socket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sock
}

func (b *Bridge) handleMessage(_ *socket, data []byte) error {
	resp, evt, err := parseMessage(data)
	if err != nil {
		return err
	}

	switch {
	case resp != nil:
		if resp.Error != nil {
			b.pending.reject(resp.ID, resp.Error)
		} else {
			b.pending.resolve(resp.ID, resp.Result)
		}
	case evt != nil:
		if b.events.emit(evt) == 0 {
			b.log.V(2).Info("Event without listeners", "method", evt.Method)
		}
	}
	return nil
}

func (b *Bridge) handleError(s *socket, err error) {
	b.log.Error(err, "CDP transport error", "url", s.url)
}

func (b *Bridge) handleClose(s *socket, cause error) {
	shared := ErrConnectionClosed
	if cause != nil {
		shared = &InternalCloseError{Cause: cause}
	}

	// The table is failed under mu so a Connect that follows cannot register
	// an entry that this close would then fail. Completions never block.
	b.mu.Lock()
	if b.sock == s {
		b.sock = nil
	}
	failed := b.pending.rejectAll(shared)
	b.mu.Unlock()

	if failed > 0 || cause != nil {
		b.log.V(1).Info("Connection closed", "url", s.url, "failed", failed, "cause", errorString(cause))
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ socketHandler = (*Bridge)(nil)
