package query

import (
	"sync"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
)

// Registry is the thread-safe map of query id -> state, guarded by a
// single mutual-exclusion primitive held only for the duration of a
// state transition, never across a blocking call.
type Registry struct {
	mu      sync.Mutex
	queries map[helper.QueryID]*State
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{queries: make(map[helper.QueryID]*State)}
}

// Handle returns a view over one query id's registry entry.
func (r *Registry) Handle(id helper.QueryID) Handle {
	return Handle{reg: r, id: id}
}

// Handle is the per-query view over one registry entry.
type Handle struct {
	reg *Registry
	id  helper.QueryID
}

// Status returns the current observable status, or (StatusNone, false)
// if no query is registered under this id. Calling it twice with no
// intervening transition returns equal values (the idempotent
// status-read law).
func (h Handle) Status() (Status, bool) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	s, ok := h.reg.queries[h.id]
	if !ok {
		return StatusNone, false
	}
	return s.Status, true
}

// Get returns a copy of the current full state, if any.
func (h Handle) Get() (State, bool) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	s, ok := h.reg.queries[h.id]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// SetState attempts to move this query to the status `to`. build is
// called with the current status (StatusNone if absent) only after the
// transition is confirmed legal, and must return the new State to
// store. Transitions are a total order; any attempted skip or
// regression fails with StateError{InvalidState},
// and a second Empty->Preparing attempt (a duplicate new_query) fails
// with StateError{AlreadyRunning}. On failure the registry is left
// untouched; the caller's prior state stands.
func (h Handle) SetState(to Status, build func(from Status) (*State, error)) (State, error) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()

	cur, exists := h.reg.queries[h.id]
	from := StatusNone
	if exists {
		from = cur.Status
	}

	if !exists {
		if to != StatusPreparing {
			return State{}, &StateError{Kind: KindInvalidState, From: StatusNone, To: to}
		}
	} else if to == StatusPreparing {
		return State{}, &StateError{Kind: KindAlreadyRunning, From: from, To: to}
	} else if want, known := legalNext[from]; !known || want != to {
		return State{}, &StateError{Kind: KindInvalidState, From: from, To: to}
	}

	next, err := build(from)
	if err != nil {
		return State{}, err
	}
	next.Status = to
	h.reg.queries[h.id] = next
	return *next, nil
}

// Remove administratively deletes a query's entry without going
// through the transition graph. Used when a coordinator's NewQuery
// fails after registering the query (its identity is not in the ring,
// or the prepare fan-out fails): the query reverts to Empty rather
// than being stuck in Preparing forever.
func (h Handle) Remove() {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	delete(h.reg.queries, h.id)
}
