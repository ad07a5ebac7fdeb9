package cdp

import (
	"context"
	"encoding/json"
	"sync"
)

// Call is an outstanding command. It completes once, on response, timeout or
// connection failure.
type Call struct {
	id     int64
	method string

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newCall(id int64, method string) *Call {
	return &Call{
		id:     id,
		method: method,
		done:   make(chan struct{}),
	}
}

func (c *Call) complete(result json.RawMessage, err error) {
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
	})
}

// ID returns the command id.
func (c *Call) ID() int64 {
	return c.id
}

// Method returns the command's method name.
func (c *Call) Method() string {
	return c.method
}

// Done is closed when the call completes.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome, or ErrCallPending if Done is not yet closed.
func (c *Call) Result() (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	default:
		return nil, ErrCallPending
	}
}

// Wait blocks until the call completes or ctx is done. Giving up on the wait
// does not cancel the command.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
