package helper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alecthomas/units"
)

// GatewayConfig tunes the Gateway's record-batching policy: how many
// bytes a Sender accumulates before flushing a chunk onto the
// transport, and how often it flushes on a timer regardless of fill
// level. Byte thresholds are expressed with alecthomas/units so config
// literals read as sizes rather than bare integers.
type GatewayConfig struct {
	BatchBytes    units.Base2Bytes
	FlushInterval time.Duration
}

// DefaultGatewayConfig returns the batching policy used when callers
// don't override it.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BatchBytes:    64 * units.KiB,
		FlushInterval: 10 * time.Millisecond,
	}
}

// Gateway is the per-query multiplexer: it turns the transport's
// addressed byte streams into step-keyed record channels. Constructed
// once per query with (queryID, config, roles, transport); it is bound
// to that one query id and owns its transport handle for the query's
// lifetime.
type Gateway struct {
	queryID   QueryID
	roles     RoleAssignment
	transport Transport
	config    GatewayConfig
	log       Logger

	mu        sync.Mutex
	senders   map[string]*Sender
	receivers map[string]*Receiver
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewGateway constructs a Gateway over transport for a single query.
func NewGateway(queryID QueryID, config GatewayConfig, roles RoleAssignment, transport Transport, log Logger) *Gateway {
	if log == nil {
		log = NoopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		queryID:   queryID,
		roles:     roles,
		transport: transport,
		config:    config,
		log:       log,
		senders:   make(map[string]*Sender),
		receivers: make(map[string]*Receiver),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// QueryID returns the query this Gateway was built for.
func (g *Gateway) QueryID() QueryID {
	return g.queryID
}

// Role returns the role this Gateway's owning helper plays in its
// query, derived from the transport's own identity.
func (g *Gateway) Role() Role {
	return g.roles.Role(g.transport.Identity())
}

// Roles returns the full role assignment this Gateway was built with,
// for protocol code that needs to resolve a peer's identity directly.
func (g *Gateway) Roles() RoleAssignment {
	return g.roles
}

// GetSender returns the write endpoint addressing role on step. The
// same Sender is returned for repeated calls with the same
// (role, step); protocol authors are expected to narrow the step
// before calling GetSender again for a sibling sub-protocol.
func (g *Gateway) GetSender(role Role, step Step) *Sender {
	key := step.String() + "|" + role.String()
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.senders[key]; ok {
		return s
	}

	dest := g.roles.Identity(role)
	out := make(chan Chunk)
	s := &Sender{
		gw:     g,
		role:   role,
		step:   step,
		out:    out,
		config: g.config,
		done:   make(chan struct{}),
	}
	g.senders[key] = s

	go func() {
		if err := g.transport.Send(g.ctx, dest, RecordsSendRoute(g.queryID, step), ChunkStream(out)); err != nil {
			g.log.Errorf("gateway: send on query %s step %s to %s failed: %v", g.queryID, step, dest, err)
		}
	}()
	s.startFlushLoop()
	return s
}

// GetReceiver returns the read endpoint addressing role on step,
// wrapping transport.Receive. Calling it twice for the same
// (role, step) is a programmer error (the same restriction
// Transport.Receive itself enforces) and panics.
func (g *Gateway) GetReceiver(role Role, step Step) *Receiver {
	key := step.String() + "|" + role.String()
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.receivers[key]; ok {
		panic(fmt.Sprintf("gateway: GetReceiver called twice for role %s step %s", role, step))
	}

	from := g.roles.Identity(role)
	stream, err := g.transport.Receive(from, RecordsRoute(g.queryID, step))
	if err != nil {
		panic(fmt.Sprintf("gateway: receive on query %s step %s from %s: %v", g.queryID, step, from, err))
	}
	r := &Receiver{stream: stream}
	g.receivers[key] = r
	return r
}

// Close shuts down every sender spawned by this Gateway. Receivers
// close naturally once their sender-side peer closes its half.
func (g *Gateway) Close() {
	g.mu.Lock()
	senders := make([]*Sender, 0, len(g.senders))
	for _, s := range g.senders {
		senders = append(senders, s)
	}
	g.mu.Unlock()
	for _, s := range senders {
		s.Close()
	}
	g.cancel()
}

// Sender batches record bytes into fixed-size (or timer-flushed)
// chunks before handing them to the transport.
type Sender struct {
	gw     *Gateway
	role   Role
	step   Step
	config GatewayConfig

	mu     sync.Mutex
	buf    []byte
	closed bool

	out  chan Chunk
	done chan struct{}
}

func (s *Sender) startFlushLoop() {
	ticker := time.NewTicker(s.config.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.flush()
			case <-s.done:
				return
			}
		}
	}()
}

// Write appends one record's bytes to the batching buffer, flushing
// immediately if the fill threshold is reached.
func (s *Sender) Write(record []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("gateway: Write called on a closed Sender")
	}
	s.buf = append(s.buf, record...)
	if units.Base2Bytes(len(s.buf)) >= s.config.BatchBytes {
		s.flushLocked()
	}
}

func (s *Sender) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Sender) flushLocked() {
	if s.closed || len(s.buf) == 0 {
		return
	}
	chunk := make(Chunk, len(s.buf))
	copy(chunk, s.buf)
	s.buf = s.buf[:0]
	s.out <- chunk
}

// Close flushes any remaining buffered bytes as a final short frame and
// ends the sub-stream.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.flushLocked()
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	close(s.out)
}

// Receiver yields records in send order from the underlying
// transport stream.
type Receiver struct {
	stream ChunkStream
	buf    []byte
}

// ReadExact blocks until n bytes have accumulated from the underlying
// stream (across however many chunks the sender's batching policy
// produced) or the stream closes early, in which case it returns
// io.ErrUnexpectedEOF-shaped behavior via ok=false.
func (r *Receiver) ReadExact(n int) (data []byte, ok bool) {
	for len(r.buf) < n {
		chunk, open := <-r.stream
		if !open {
			return nil, false
		}
		r.buf = append(r.buf, chunk...)
	}
	data = r.buf[:n]
	r.buf = r.buf[n:]
	return data, true
}

// Next returns the next raw chunk as produced by the sender's batching
// policy, for callers that don't need fixed-size record framing.
func (r *Receiver) Next() (Chunk, bool) {
	if len(r.buf) > 0 {
		chunk := Chunk(r.buf)
		r.buf = nil
		return chunk, true
	}
	chunk, open := <-r.stream
	return chunk, open
}
