package helper

import (
	"context"
	"fmt"
)

// Chunk is one length-delimited piece of a byte-chunk stream.
type Chunk []byte

// ChunkStream is a finite, non-restartable lazy sequence of byte
// chunks. The sender closes it to signal end of stream.
type ChunkStream <-chan Chunk

// ErrorKind tags the reason a Transport operation failed, independent
// of its Go representation.
type ErrorKind int

const (
	// ErrKindUnreachable means the destination could not be dialed.
	ErrKindUnreachable ErrorKind = iota + 1
	// ErrKindRejected means the peer returned a non-success
	// acknowledgement (e.g. duplicate query, prepare rejection).
	ErrKindRejected
	// ErrKindConnectionBroken means the connection dropped before an
	// acknowledgement was observed.
	ErrKindConnectionBroken
	// ErrKindProtocolMismatch means the peer speaks an incompatible
	// protocol version.
	ErrKindProtocolMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnreachable:
		return "unreachable"
	case ErrKindRejected:
		return "rejected"
	case ErrKindConnectionBroken:
		return "connection_broken"
	case ErrKindProtocolMismatch:
		return "protocol_mismatch"
	default:
		return "unknown"
	}
}

// TransportError is the concrete error type surfaced by Transport.Send
// and Transport.Receive.
type TransportError struct {
	Kind  ErrorKind
	Dest  Identity
	Route Route
	Err   error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("helper: transport %s to %s on %s: %v", e.Kind, e.Dest, e.Route, e.Err)
	}
	return fmt.Sprintf("helper: transport %s to %s on %s", e.Kind, e.Dest, e.Route)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport is the addressed, bidirectional byte-stream carrier every
// query runs on top of. Implementations must be safe for concurrent
// use and cheap to share; a Transport value is a stable reference
// type, so higher layers (Gateway, Processor) never take a type
// parameter for it.
//
// Two implementations are provided: InMemoryTransport for tests and
// NetworkTransport, backed by relt, for production. NewInMemoryFixture
// documents the weak-handle ownership split the in-memory variant
// uses.
type Transport interface {
	// Identity returns this helper's own identity. Stable for the
	// lifetime of the handle.
	Identity() Identity

	// Send blocks until dest acknowledges the route's request headers;
	// body may still be streaming when Send returns. Exactly-once
	// delivery per (dest, route) holds under normal operation.
	Send(ctx context.Context, dest Identity, route Route, body ChunkStream) error

	// Receive returns the unique stream for (from, route.QueryID,
	// route.Step). Calling twice for the same key is a programmer
	// error and panics. The returned stream closes when the sender
	// closes its half.
	Receive(from Identity, route Route) (ChunkStream, error)

	// Close tears down the transport. Idempotent.
	Close() error
}

// EmptyStream returns an already-closed ChunkStream, used for
// control-only sends (e.g. PrepareQuery) that carry no body.
func EmptyStream() ChunkStream {
	ch := make(chan Chunk)
	close(ch)
	return ch
}

// SingleChunkStream wraps a single byte slice as an already-closed
// ChunkStream, used for short control payloads (PrepareQuery bodies)
// that don't need real streaming.
func SingleChunkStream(data []byte) ChunkStream {
	ch := make(chan Chunk, 1)
	if len(data) > 0 {
		ch <- Chunk(data)
	}
	close(ch)
	return ch
}

func requireControlRoute(route Route) {
	if !route.IsControlRoute() {
		panic(fmt.Sprintf("helper: Send requires a control route carrying a RouteId, got %s", route))
	}
}

func requireRecordRoute(route Route) {
	if !route.IsRecordRoute() {
		panic(fmt.Sprintf("helper: Receive requires a (NoResource, QueryId, Step) route, got %s", route))
	}
}
