package helper

import (
	"context"
	"fmt"
	"sync"
)

// ControlHandler processes a control-route message (PrepareQuery,
// ReceiveQuery) addressed to this transport's identity and returns an
// error to be surfaced to the sender as a rejected acknowledgement.
type ControlHandler func(ctx context.Context, from Identity, route Route, body []byte) error

// InMemoryFixture is the owning side of an in-memory transport mesh,
// used by tests to wire up a full three-helper ring without sockets.
// Handles obtained from Transport are non-owning views: the fixture
// owns the transports, and a handle fails cleanly once the fixture is
// closed rather than racing a dangling pointer.
type InMemoryFixture struct {
	mu         sync.RWMutex
	transports map[Identity]*InMemoryTransport
	closed     bool
}

// NewInMemoryFixture builds a fixture pre-populated with one transport
// per identity.
func NewInMemoryFixture(log Logger, identities ...Identity) *InMemoryFixture {
	if log == nil {
		log = NoopLogger{}
	}
	f := &InMemoryFixture{transports: make(map[Identity]*InMemoryTransport, len(identities))}
	for _, id := range identities {
		f.transports[id] = &InMemoryTransport{
			fixture:   f,
			self:      id,
			recvChans: make(map[string]*recvSlot),
			log:       log,
		}
	}
	return f
}

// Transport returns the non-owning handle for id.
func (f *InMemoryFixture) Transport(id Identity) (Transport, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.transports[id]
	if !ok {
		return nil, fmt.Errorf("helper: no in-memory transport registered for %q", id)
	}
	return t, nil
}

// SetControlHandler installs the handler invoked when id receives a
// PrepareQuery or ReceiveQuery route.
func (f *InMemoryFixture) SetControlHandler(id Identity, h ControlHandler) {
	f.mu.RLock()
	t, ok := f.transports[id]
	f.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (f *InMemoryFixture) lookup(id Identity) (*InMemoryTransport, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, false
	}
	t, ok := f.transports[id]
	return t, ok
}

// Close tears down every transport in the fixture. Handles held by
// processors observe ErrKindConnectionBroken on any further Send;
// Receive does not check for closure.
func (f *InMemoryFixture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for _, t := range f.transports {
		t.markClosed()
	}
	return nil
}

type recvSlot struct {
	ch      chan Chunk
	claimed bool
}

// InMemoryTransport is a non-owning handle into an InMemoryFixture. It
// satisfies Transport.
type InMemoryTransport struct {
	fixture *InMemoryFixture
	self    Identity

	mu        sync.Mutex
	recvChans map[string]*recvSlot
	handler   ControlHandler
	closed    bool

	log Logger
}

func (t *InMemoryTransport) Identity() Identity {
	return t.self
}

func recvKey(from Identity, query QueryID, step Step) string {
	return fmt.Sprintf("%s|%s|%s", from, query, step)
}

func (t *InMemoryTransport) markClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *InMemoryTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Send implements Transport.
func (t *InMemoryTransport) Send(ctx context.Context, dest Identity, route Route, body ChunkStream) error {
	requireControlRoute(route)
	if t.isClosed() {
		return &TransportError{Kind: ErrKindConnectionBroken, Dest: dest, Route: route}
	}

	destT, ok := t.fixture.lookup(dest)
	if !ok {
		return &TransportError{Kind: ErrKindUnreachable, Dest: dest, Route: route}
	}

	rid, _ := route.ResourceIdentifier()
	if rid == Records {
		query, _ := route.QueryID()
		step, _ := route.Step()
		destT.deliverRecords(t.self, query, step, body)
		return nil
	}

	data, err := drain(ctx, body)
	if err != nil {
		return &TransportError{Kind: ErrKindConnectionBroken, Dest: dest, Route: route, Err: err}
	}

	destT.mu.Lock()
	handler := destT.handler
	destT.mu.Unlock()
	if handler == nil {
		return &TransportError{Kind: ErrKindRejected, Dest: dest, Route: route, Err: fmt.Errorf("no handler registered for %s", rid)}
	}
	if err := handler(ctx, t.self, route, data); err != nil {
		return &TransportError{Kind: ErrKindRejected, Dest: dest, Route: route, Err: err}
	}
	return nil
}

// Receive implements Transport.
func (t *InMemoryTransport) Receive(from Identity, route Route) (ChunkStream, error) {
	requireRecordRoute(route)
	query, _ := route.QueryID()
	step, _ := route.Step()
	key := recvKey(from, query, step)

	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.recvChans[key]
	if ok && slot.claimed {
		panic(fmt.Sprintf("helper: Receive called twice for (%s, %s, %s)", from, query, step))
	}
	if !ok {
		slot = &recvSlot{ch: make(chan Chunk, 16)}
		t.recvChans[key] = slot
	}
	slot.claimed = true
	return ChunkStream(slot.ch), nil
}

func (t *InMemoryTransport) deliverRecords(from Identity, query QueryID, step Step, body ChunkStream) {
	key := recvKey(from, query, step)
	t.mu.Lock()
	slot, ok := t.recvChans[key]
	if !ok {
		slot = &recvSlot{ch: make(chan Chunk, 16)}
		t.recvChans[key] = slot
	}
	t.mu.Unlock()

	go func() {
		for chunk := range body {
			slot.ch <- chunk
		}
		close(slot.ch)
	}()
}

func (t *InMemoryTransport) Close() error {
	t.markClosed()
	return nil
}

func drain(ctx context.Context, body ChunkStream) ([]byte, error) {
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return buf, ctx.Err()
		case chunk, ok := <-body:
			if !ok {
				return buf, nil
			}
			buf = append(buf, chunk...)
		}
	}
}

var _ Transport = (*InMemoryTransport)(nil)
