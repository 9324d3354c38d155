package router

import (
	"encoding/json"
	"sync"

	"github.com/voltgrid/csms/internal/ocpp"
)

// callResult is the settled outcome of one server-initiated call.
type callResult struct {
	payload json.RawMessage
	callErr *ocpp.CallError
	err     error
}

type pendingKey struct {
	chargePointID string
	messageID     string
}

// pendingCall is one in-flight server-initiated call awaiting its
// correlated CALLRESULT or CALLERROR.
type pendingCall struct {
	action   string
	done     chan callResult
	released chan struct{}
}

// pendingTable tracks in-flight server calls per charger. A call is
// settled exactly once: by the reply, by the deadline, or by a
// disconnect.
type pendingTable struct {
	mu    sync.Mutex
	calls map[pendingKey]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[pendingKey]*pendingCall)}
}

func (t *pendingTable) add(chargePointID, messageID, action string, released chan struct{}) *pendingCall {
	call := &pendingCall{
		action:   action,
		done:     make(chan callResult, 1),
		released: released,
	}
	t.mu.Lock()
	t.calls[pendingKey{chargePointID, messageID}] = call
	t.mu.Unlock()
	return call
}

// take removes and returns the pending call for (chargePointID,
// messageID). Late replies find nothing and are dropped by the caller.
func (t *pendingTable) take(chargePointID, messageID string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pendingKey{chargePointID, messageID}
	call, ok := t.calls[key]
	if ok {
		delete(t.calls, key)
	}
	return call, ok
}

// takeAll removes every pending call for a charger, used on disconnect.
func (t *pendingTable) takeAll(chargePointID string) []*pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*pendingCall
	for key, call := range t.calls {
		if key.chargePointID == chargePointID {
			out = append(out, call)
			delete(t.calls, key)
		}
	}
	return out
}

// settle delivers the outcome and releases the charger's outbound
// queue for the next call.
func (c *pendingCall) settle(result callResult) {
	c.done <- result
	close(c.released)
}
