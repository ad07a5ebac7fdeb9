package cdp

import (
	"encoding/json"
	"sync"
	"time"
)

// ConnectID is reserved for the connection handshake. Connect registers a
// pending entry under this id before dialing so that the transport's open
// signal completes the attempt through the same path as a command response.
// The command counter starts at 1, so no command ever uses it.
const ConnectID int64 = 0

// completion holds the callbacks for one outstanding request.
type completion struct {
	onSuccess func(json.RawMessage)
	onFailure func(error)
	timer     *time.Timer
}

// pendingTable maps outstanding request ids to their completions. Every
// entry is removed exactly once; the callbacks run after removal and outside
// the lock.
type pendingTable struct {
	mu      sync.Mutex
	entries map[int64]*completion
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[int64]*completion)}
}

func (t *pendingTable) add(id int64, c *completion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = c
}

// arm starts a timer that calls fn after d, if the entry is still present.
func (t *pendingTable) arm(id int64, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.entries[id]
	if !ok {
		return
	}
	c.timer = time.AfterFunc(d, fn)
}

// take removes and returns the entry for id.
func (t *pendingTable) take(id int64) (*completion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	if c.timer != nil {
		c.timer.Stop()
	}
	return c, true
}

// resolve completes id successfully. Unknown ids are ignored.
func (t *pendingTable) resolve(id int64, result json.RawMessage) bool {
	c, ok := t.take(id)
	if !ok {
		return false
	}
	if c.onSuccess != nil {
		c.onSuccess(result)
	}
	return true
}

// reject fails id. Unknown ids are ignored.
func (t *pendingTable) reject(id int64, err error) bool {
	c, ok := t.take(id)
	if !ok {
		return false
	}
	if c.onFailure != nil {
		c.onFailure(err)
	}
	return true
}

// remove drops id without invoking either callback.
func (t *pendingTable) remove(id int64) {
	t.take(id)
}

// drain removes every entry and returns them.
func (t *pendingTable) drain() []*completion {
	t.mu.Lock()
	defer t.mu.Unlock()

	drained := make([]*completion, 0, len(t.entries))
	for id, c := range t.entries {
		if c.timer != nil {
			c.timer.Stop()
		}
		drained = append(drained, c)
		delete(t.entries, id)
	}
	return drained
}

// rejectAll fails every outstanding entry with the same cause and returns how
// many were failed.
func (t *pendingTable) rejectAll(err error) int {
	drained := t.drain()
	for _, c := range drained {
		if c.onFailure != nil {
			c.onFailure(err)
		}
	}
	return len(drained)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
