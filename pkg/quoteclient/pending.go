package quoteclient

import (
	"sync"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

// callState tracks one correlated request. Every state after callSent is
// terminal and only reachable from callSent.
type callState int

const (
	callIdle callState = iota
	callSent
	callResolved
	callTimedOut
	callErrored
	callCancelled
)

func (s callState) String() string {
	return [...]string{"idle", "sent", "resolved", "timed_out", "errored", "cancelled"}[s]
}

type outcome struct {
	env protocol.Envelope
	err error
}

type pendingCall struct {
	id    string
	state callState
	done  chan outcome // buffered 1; written exactly once
}

// pendingTable correlates responses to requests by id. The first settle for
// an id wins and removes the entry; later ones are no-ops.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

func (t *pendingTable) add(id string) *pendingCall {
	call := &pendingCall{id: id, done: make(chan outcome, 1)}

	t.mu.Lock()
	call.state = callSent
	t.calls[id] = call
	t.mu.Unlock()
	return call
}

// settle moves the call to a terminal state and delivers out. It returns
// false when the call already reached a terminal state or never existed.
func (t *pendingTable) settle(id string, st callState, out outcome) bool {
	t.mu.Lock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
		call.state = st
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	call.done <- out
	return true
}

// failAll errors every outstanding call, e.g. when the connection drops.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[string]*pendingCall)
	for _, call := range calls {
		call.state = callErrored
	}
	t.mu.Unlock()

	for _, call := range calls {
		call.done <- outcome{err: err}
	}
	return len(calls)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
