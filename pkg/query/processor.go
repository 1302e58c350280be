package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
)

// Processor accepts and tracks requests to initiate new queries on
// this helper party's network. It makes sure queries are coordinated
// and each party starts processing only when it has everything it
// needs.
type Processor struct {
	self     helper.Identity
	ring     helper.Ring
	executor Executor
	log      helper.Logger

	registry *Registry
	counter  uint64

	commands chan Command
}

// NewProcessor builds a Processor for self, a member of ring, that
// hands completed handshakes to executor.
func NewProcessor(self helper.Identity, ring helper.Ring, executor Executor, log helper.Logger) *Processor {
	if log == nil {
		log = helper.NoopLogger{}
	}
	return &Processor{
		self:     self,
		ring:     ring,
		executor: executor,
		log:      log,
		registry: NewRegistry(),
		commands: make(chan Command, 16),
	}
}

func (p *Processor) String() string {
	return fmt.Sprintf("QueryProcessor[%s]", p.self)
}

func (p *Processor) allocateQueryID() helper.QueryID {
	n := atomic.AddUint64(&p.counter, 1)
	return helper.QueryID(fmt.Sprintf("query-%d", n))
}

// Status returns the observable status of a query, if any.
func (p *Processor) Status(id helper.QueryID) (Status, bool) {
	return p.registry.Handle(id).Status()
}

// NewQuery is the coordinator-side creation path: allocate an id,
// assign roles, fan the prepare request out to both followers, and
// move the query to AwaitingInputs.
func (p *Processor) NewQuery(ctx context.Context, config Config, transport helper.Transport) (PrepareQuery, error) {
	id := p.allocateQueryID()
	handle := p.registry.Handle(id)

	if _, err := handle.SetState(StatusPreparing, func(Status) (*State, error) {
		return &State{Config: config}, nil
	}); err != nil {
		return PrepareQuery{}, &NewQueryError{State: err.(*StateError)}
	}

	right, left, err := p.ring.Others(transport.Identity())
	if err != nil {
		handle.Remove()
		return PrepareQuery{}, &NewQueryError{Transport: err}
	}
	roles := helper.NewRoleAssignment(transport.Identity(), right, left)

	prepareRequest := PrepareQuery{QueryID: id, Config: config, Roles: roles}

	// Inform the two followers concurrently; both must succeed before
	// the query advances.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.sendPrepare(gctx, transport, left, prepareRequest) })
	g.Go(func() error { return p.sendPrepare(gctx, transport, right, prepareRequest) })
	if err := g.Wait(); err != nil {
		// Revert to Empty rather than leaving the query stuck in
		// Preparing forever. Whichever peer did accept is not
		// notified: the wire protocol has no cancel route.
		handle.Remove()
		return PrepareQuery{}, &NewQueryError{Transport: err}
	}

	gateway := helper.NewGateway(id, helper.DefaultGatewayConfig(), roles, transport, p.log)
	if _, err := handle.SetState(StatusAwaitingInputs, func(Status) (*State, error) {
		return &State{Config: config, Gateway: gateway}, nil
	}); err != nil {
		return PrepareQuery{}, &NewQueryError{State: err.(*StateError)}
	}

	return prepareRequest, nil
}

func (p *Processor) sendPrepare(ctx context.Context, transport helper.Transport, dest helper.Identity, req PrepareQuery) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("query: marshalling prepare request: %w", err)
	}
	return transport.Send(ctx, dest, helper.PrepareQueryRoute(req.QueryID), helper.SingleChunkStream(data))
}

// Prepare is the follower-side intake path. A coordinator never
// receives its own PrepareQuery, so req.Roles must not assign this
// helper H1.
func (p *Processor) Prepare(ctx context.Context, transport helper.Transport, req PrepareQuery) error {
	myRole := req.Roles.Role(p.self)
	if myRole == helper.H1 {
		return &PrepareQueryError{Kind: KindWrongTarget}
	}

	handle := p.registry.Handle(req.QueryID)
	if status, ok := handle.Status(); ok {
		return &PrepareQueryError{
			Kind:  KindPrepareAlreadyRunning,
			State: &StateError{Kind: KindAlreadyRunning, From: status, To: StatusPreparing},
		}
	}

	roles := req.Roles
	gateway := helper.NewGateway(req.QueryID, helper.DefaultGatewayConfig(), roles, transport, p.log)

	if _, err := handle.SetState(StatusPreparing, func(Status) (*State, error) {
		return &State{Config: req.Config}, nil
	}); err != nil {
		return &PrepareQueryError{Kind: KindPrepareState, State: err.(*StateError)}
	}
	if _, err := handle.SetState(StatusAwaitingInputs, func(Status) (*State, error) {
		return &State{Config: req.Config, Gateway: gateway}, nil
	}); err != nil {
		return &PrepareQueryError{Kind: KindPrepareState, State: err.(*StateError)}
	}
	return nil
}

// ReceiveInputs hands a query's input stream to the executor and
// marks the query Running.
func (p *Processor) ReceiveInputs(ctx context.Context, input Input) error {
	handle := p.registry.Handle(input.QueryID)
	current, ok := handle.Get()
	if !ok {
		return &QueryInputError{QueryID: input.QueryID, NoSuch: true}
	}
	if current.Status != StatusAwaitingInputs {
		return &QueryInputError{
			QueryID: input.QueryID,
			State:   &StateError{Kind: KindInvalidState, From: current.Status, To: StatusRunning},
		}
	}

	completion := p.executor.StartQuery(ctx, current.Config, current.Gateway, input.InputStream)

	if _, err := handle.SetState(StatusRunning, func(Status) (*State, error) {
		return &State{Config: current.Config, Gateway: current.Gateway, Handle: completion}, nil
	}); err != nil {
		return &QueryInputError{QueryID: input.QueryID, State: err.(*StateError)}
	}
	return nil
}

// Complete awaits a running query's result and drains it.
func (p *Processor) Complete(ctx context.Context, id helper.QueryID) (Result, error) {
	handle := p.registry.Handle(id)
	current, ok := handle.Get()
	if !ok {
		return nil, &QueryCompletionError{QueryID: id, NoSuch: true}
	}
	if current.Status != StatusRunning {
		return nil, &QueryCompletionError{
			QueryID: id,
			State:   &StateError{Kind: KindInvalidState, From: current.Status, To: StatusAwaitingCompletion},
		}
	}

	if _, err := handle.SetState(StatusAwaitingCompletion, func(Status) (*State, error) {
		return &State{Config: current.Config, Gateway: current.Gateway, Handle: current.Handle}, nil
	}); err != nil {
		return nil, &QueryCompletionError{QueryID: id, State: err.(*StateError)}
	}

	result, err := current.Handle.Await(ctx)
	// The Gateway's senders hold background flush/transport goroutines
	// open until closed; a query never reopens its Gateway once the
	// executor resolves, so this is the right place to release them,
	// whether or not the query succeeded.
	current.Gateway.Close()
	if err != nil {
		return nil, err
	}

	if _, stateErr := handle.SetState(StatusCompleted, func(Status) (*State, error) {
		return &State{Config: current.Config, Gateway: current.Gateway, Complete: result}, nil
	}); stateErr != nil {
		p.log.Warnf("query %s: completed but failed to record terminal state: %v", id, stateErr)
	}

	return result, nil
}

// Run is the command-stream adapter: it reads external Command values
// and dispatches them to the four operations above, until ctx is
// cancelled.
func (p *Processor) Run(ctx context.Context, transport helper.Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-p.commands:
			if !ok {
				return
			}
			p.dispatch(ctx, transport, cmd)
		}
	}
}

// Submit enqueues a command for the Run loop to process.
func (p *Processor) Submit(cmd Command) {
	p.commands <- cmd
}

func (p *Processor) dispatch(ctx context.Context, transport helper.Transport, cmd Command) {
	switch c := cmd.(type) {
	case CreateCommand:
		prepared, err := p.NewQuery(ctx, c.Config, c.Transport)
		c.Reply <- CreateReply{Prepare: prepared, Err: err}
	case PrepareCommand:
		c.Reply <- p.Prepare(ctx, transport, c.Request)
	case InputCommand:
		c.Reply <- p.ReceiveInputs(ctx, c.Input)
	case ResultsCommand:
		result, err := p.Complete(ctx, c.QueryID)
		c.Reply <- ResultsReply{Result: result, Err: err}
	default:
		p.log.Errorf("query: unexpected command %#v", cmd)
	}
}
