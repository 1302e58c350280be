package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jabolina/relt/pkg/relt"
	promlog "github.com/prometheus/common/log"
)

// envelopeKind tags what a wire envelope carries.
type envelopeKind string

const (
	envelopeControl   envelopeKind = "control"
	envelopeRecord    envelopeKind = "record"
	envelopeRecordEnd envelopeKind = "record_end"
	envelopeAck       envelopeKind = "ack"
)

// envelope is the on-the-wire message NetworkTransport exchanges over
// relt. relt multicasts to a named group address rather than dialing an
// individual peer connection, so every control send carries a
// correlation id and waits for a matching ack envelope broadcast back,
// the network analogue of the in-memory transport's synchronous
// handler call.
type envelope struct {
	Kind          envelopeKind
	From          Identity
	Version       string
	RouteID       RouteID
	QueryID       QueryID
	Step          string
	CorrelationID string
	Body          []byte
	AckErr        string
}

// NetworkTransport is the production Transport, built on top of
// github.com/jabolina/relt's reliable group-multicast primitive: relt
// carries the bytes, NetworkTransport layers the route-addressed
// channel fabric on top of it.
type NetworkTransport struct {
	self Identity
	relt *relt.Relt
	log  Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	recvChan map[string]*recvSlot
	pending  map[string]chan error
	handler  ControlHandler
}

// NewNetworkTransport dials into the relt group named by self and
// starts the inbound demultiplexer.
func NewNetworkTransport(self Identity, log Logger) (*NetworkTransport, error) {
	if log == nil {
		log = NoopLogger{}
	}
	conf := relt.DefaultReltConfiguration()
	conf.Name = string(self)
	conf.Exchange = relt.GroupAddress(self)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, fmt.Errorf("helper: dialing relt for %q: %w", self, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	nt := &NetworkTransport{
		self:     self,
		relt:     r,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		recvChan: make(map[string]*recvSlot),
		pending:  make(map[string]chan error),
	}
	go nt.poll()
	return nt, nil
}

func (n *NetworkTransport) Identity() Identity {
	return n.self
}

// SetControlHandler installs the handler invoked for inbound control
// envelopes (PrepareQuery, ReceiveQuery).
func (n *NetworkTransport) SetControlHandler(h ControlHandler) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

func (n *NetworkTransport) publish(dest Identity, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("helper: marshalling envelope: %w", err)
	}
	return n.relt.Broadcast(n.ctx, relt.Send{
		Address: relt.GroupAddress(dest),
		Data:    data,
	})
}

// Send implements Transport.
func (n *NetworkTransport) Send(ctx context.Context, dest Identity, route Route, body ChunkStream) error {
	requireControlRoute(route)

	rid, _ := route.ResourceIdentifier()
	query, _ := route.QueryID()
	step, _ := route.Step()

	if rid == Records {
		go n.streamRecords(dest, query, step, body)
		return nil
	}

	data, err := drain(ctx, body)
	if err != nil {
		return &TransportError{Kind: ErrKindConnectionBroken, Dest: dest, Route: route, Err: err}
	}

	correlation := fmt.Sprintf("%s-%s-%d", n.self, dest, time.Now().UnixNano())
	ack := make(chan error, 1)
	n.mu.Lock()
	n.pending[correlation] = ack
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.pending, correlation)
		n.mu.Unlock()
	}()

	if err := n.publish(dest, envelope{
		Kind:          envelopeControl,
		From:          n.self,
		Version:       CurrentProtocolVersion.String(),
		RouteID:       rid,
		QueryID:       query,
		Step:          step.String(),
		CorrelationID: correlation,
		Body:          data,
	}); err != nil {
		return &TransportError{Kind: ErrKindUnreachable, Dest: dest, Route: route, Err: err}
	}

	select {
	case <-ctx.Done():
		return &TransportError{Kind: ErrKindConnectionBroken, Dest: dest, Route: route, Err: ctx.Err()}
	case ackErr := <-ack:
		if ackErr != nil {
			return &TransportError{Kind: ErrKindRejected, Dest: dest, Route: route, Err: ackErr}
		}
		return nil
	}
}

func (n *NetworkTransport) streamRecords(dest Identity, query QueryID, step Step, body ChunkStream) {
	for chunk := range body {
		if err := n.publish(dest, envelope{
			Kind:    envelopeRecord,
			From:    n.self,
			QueryID: query,
			Step:    step.String(),
			Body:    chunk,
		}); err != nil {
			n.log.Errorf("failed streaming record chunk to %s on query %s step %s: %v", dest, query, step, err)
			return
		}
	}
	if err := n.publish(dest, envelope{
		Kind:    envelopeRecordEnd,
		From:    n.self,
		QueryID: query,
		Step:    step.String(),
	}); err != nil {
		n.log.Errorf("failed sending record-end to %s on query %s step %s: %v", dest, query, step, err)
	}
}

// Receive implements Transport.
func (n *NetworkTransport) Receive(from Identity, route Route) (ChunkStream, error) {
	requireRecordRoute(route)
	query, _ := route.QueryID()
	step, _ := route.Step()
	key := recvKey(from, query, step)

	n.mu.Lock()
	defer n.mu.Unlock()
	slot, ok := n.recvChan[key]
	if ok && slot.claimed {
		panic(fmt.Sprintf("helper: Receive called twice for (%s, %s, %s)", from, query, step))
	}
	if !ok {
		slot = &recvSlot{ch: make(chan Chunk, 16)}
		n.recvChan[key] = slot
	}
	slot.claimed = true
	return ChunkStream(slot.ch), nil
}

func (n *NetworkTransport) poll() {
	listener, err := n.relt.Consume()
	if err != nil {
		n.log.Errorf("failed starting relt consumer for %s: %v", n.self, err)
		return
	}
	for {
		select {
		case <-n.ctx.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			if recv.Error != nil {
				promlog.Errorf("relt delivery error for %s: %v", n.self, recv.Error)
				continue
			}
			n.consume(recv.Data)
		}
	}
}

func (n *NetworkTransport) consume(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		promlog.Errorf("failed decoding envelope on %s: %v", n.self, err)
		return
	}

	switch env.Kind {
	case envelopeAck:
		n.mu.Lock()
		ack, ok := n.pending[env.CorrelationID]
		n.mu.Unlock()
		if !ok {
			return
		}
		var ackErr error
		if env.AckErr != "" {
			ackErr = fmt.Errorf("%s", env.AckErr)
		}
		select {
		case ack <- ackErr:
		default:
		}

	case envelopeControl:
		n.mu.Lock()
		handler := n.handler
		n.mu.Unlock()
		var handlerErr error
		if peerVer, err := ParseProtocolVersion(env.Version); err != nil || !CurrentProtocolVersion.Compatible(peerVer) {
			handlerErr = fmt.Errorf("peer %s speaks protocol %q, want %s-compatible", env.From, env.Version, CurrentProtocolVersion)
		} else if handler == nil {
			handlerErr = fmt.Errorf("no control handler registered on %s", n.self)
		} else {
			step := Step{}
			if env.Step != "" {
				step = NewStep(env.Step)
			}
			route := Route{}
			switch env.RouteID {
			case PrepareQuery:
				route = PrepareQueryRoute(env.QueryID)
			case ReceiveQuery:
				route = ReceiveQueryRoute()
			default:
				route = RecordsSendRoute(env.QueryID, step)
			}
			handlerErr = handler(n.ctx, env.From, route, env.Body)
		}

		ackErrStr := ""
		if handlerErr != nil {
			ackErrStr = handlerErr.Error()
		}
		if err := n.publish(env.From, envelope{
			Kind:          envelopeAck,
			From:          n.self,
			CorrelationID: env.CorrelationID,
			AckErr:        ackErrStr,
		}); err != nil {
			n.log.Errorf("failed acking control envelope from %s: %v", env.From, err)
		}

	case envelopeRecord:
		step := NewStep(env.Step)
		key := recvKey(env.From, env.QueryID, step)
		n.mu.Lock()
		slot, ok := n.recvChan[key]
		if !ok {
			slot = &recvSlot{ch: make(chan Chunk, 16)}
			n.recvChan[key] = slot
		}
		n.mu.Unlock()
		slot.ch <- Chunk(env.Body)

	case envelopeRecordEnd:
		step := NewStep(env.Step)
		key := recvKey(env.From, env.QueryID, step)
		n.mu.Lock()
		slot, ok := n.recvChan[key]
		if ok {
			delete(n.recvChan, key)
		}
		n.mu.Unlock()
		if ok {
			close(slot.ch)
		}
	}
}

func (n *NetworkTransport) Close() error {
	n.cancel()
	return n.relt.Close()
}

var _ Transport = (*NetworkTransport)(nil)
