package client

import (
	"sync"

	"contract-rpc/message"
	"contract-rpc/rpcerr"

	"github.com/pkg/errors"
)

// outcome is what a waiting caller receives: a Result or a local failure.
type outcome struct {
	result *message.Result
	err    error
}

// Slot is the private rendezvous of one outstanding call. Its channel yields
// exactly one outcome.
type Slot struct {
	id string
	ch chan outcome // Buffered: the single fulfiller never blocks
}

// ID returns the requestId the slot waits for.
func (s *Slot) ID() string {
	return s.id
}

// PendingTable correlates outstanding calls with their Results by requestId.
//
// It is the only structure shared between calling goroutines and the inbound
// read goroutine. Every operation takes the mutex; a slot is removed from the
// map in the same critical section that delivers to it, so each slot receives
// exactly one outcome.
type PendingTable struct {
	mu     sync.Mutex
	slots  map[string]*Slot
	closed error // Non-nil once FailAll has run
}

func NewPendingTable() *PendingTable {
	return &PendingTable{slots: make(map[string]*Slot)}
}

// Register creates the slot for id. It must be called before the Call is sent.
func (p *PendingTable) Register(id string) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed != nil {
		return nil, p.closed
	}
	if _, dup := p.slots[id]; dup {
		return nil, errors.Errorf("request id %s already pending", id)
	}
	s := &Slot{id: id, ch: make(chan outcome, 1)}
	p.slots[id] = s
	return s, nil
}

// Fulfill delivers res to the slot with the matching requestId.
// It reports false for unknown ids: late, duplicate or stale Results.
func (p *PendingTable) Fulfill(res *message.Result) bool {
	return p.deliver(res.RequestID, outcome{result: res})
}

// Fail delivers err to the slot for id, if it is still pending.
func (p *PendingTable) Fail(id string, err error) bool {
	return p.deliver(id, outcome{err: err})
}

// Remove drops the slot for id without delivering anything. Used when the
// caller stops waiting (timeout, cancellation, send failure).
func (p *PendingTable) Remove(id string) {
	p.mu.Lock()
	delete(p.slots, id)
	p.mu.Unlock()
}

// FailAll fails every pending slot with err and rejects later registrations.
func (p *PendingTable) FailAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed == nil {
		p.closed = err
	}
	for id, s := range p.slots {
		s.ch <- outcome{err: err}
		delete(p.slots, id)
	}
}

// Len returns the number of outstanding calls.
func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

func (p *PendingTable) deliver(id string, o outcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[id]
	if !ok {
		return false
	}
	delete(p.slots, id)
	s.ch <- o
	return true
}

// errClosed is the outcome for calls cut off by connection loss.
func errClosed(cause error) error {
	if cause == nil {
		return rpcerr.ErrConnectionClosed
	}
	return errors.Wrap(rpcerr.ErrConnectionClosed, cause.Error())
}
