// Package helpertest is a three-helper in-memory mesh test harness:
// it wires a fixed-size ring of cooperating processors behind a
// fixture and exposes the few operations tests actually drive.
package helpertest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
	"github.com/zhiwenf/raw-ipa/pkg/query"
)

// Mesh is a fully wired three-helper ring: one InMemoryFixture, three
// Processors each running their command loop, and the PrepareQuery
// control-route plumbing connecting them.
type Mesh struct {
	Ring       helper.Ring
	Fixture    *helper.InMemoryFixture
	Processors map[helper.Identity]*query.Processor
	Transports map[helper.Identity]helper.Transport

	cancel context.CancelFunc
}

// NewMesh builds a three-helper mesh where every processor hands
// completed handshakes to executor.
func NewMesh(h1, h2, h3 helper.Identity, executor query.Executor, log helper.Logger) *Mesh {
	ring := helper.NewRing(h1, h2, h3)
	fixture := helper.NewInMemoryFixture(log, h1, h2, h3)

	m := &Mesh{
		Ring:       ring,
		Fixture:    fixture,
		Processors: make(map[helper.Identity]*query.Processor, 3),
		Transports: make(map[helper.Identity]helper.Transport, 3),
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for _, id := range []helper.Identity{h1, h2, h3} {
		transport, err := fixture.Transport(id)
		if err != nil {
			panic(err)
		}
		proc := query.NewProcessor(id, ring, executor, log)
		m.Transports[id] = transport
		m.Processors[id] = proc

		fixture.SetControlHandler(id, preparedHandler(proc))
		go proc.Run(ctx, transport)
	}

	return m
}

// preparedHandler adapts an inbound PrepareQuery control message into
// a PrepareCommand on the owning processor's command stream.
func preparedHandler(proc *query.Processor) helper.ControlHandler {
	return func(ctx context.Context, from helper.Identity, route helper.Route, body []byte) error {
		rid, _ := route.ResourceIdentifier()
		if rid != helper.PrepareQuery {
			return fmt.Errorf("helpertest: unexpected control route %s", rid)
		}
		var req query.PrepareQuery
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("helpertest: decoding prepare request: %w", err)
		}
		reply := make(chan error, 1)
		proc.Submit(query.PrepareCommand{Request: req, Reply: reply})
		return <-reply
	}
}

// NewQuery drives the coordinator path for id.
func (m *Mesh) NewQuery(id helper.Identity, config query.Config) (query.PrepareQuery, error) {
	proc := m.Processors[id]
	transport := m.Transports[id]
	reply := make(chan query.CreateReply, 1)
	proc.Submit(query.CreateCommand{Config: config, Transport: transport, Reply: reply})
	r := <-reply
	return r.Prepare, r.Err
}

// ReceiveInputs feeds id's processor an input stream for qid.
func (m *Mesh) ReceiveInputs(id helper.Identity, qid helper.QueryID, stream helper.ChunkStream) error {
	proc := m.Processors[id]
	reply := make(chan error, 1)
	proc.Submit(query.InputCommand{Input: query.Input{QueryID: qid, InputStream: stream}, Reply: reply})
	return <-reply
}

// Complete drains id's processor's result for qid.
func (m *Mesh) Complete(id helper.Identity, qid helper.QueryID) (query.Result, error) {
	proc := m.Processors[id]
	reply := make(chan query.ResultsReply, 1)
	proc.Submit(query.ResultsCommand{QueryID: qid, Reply: reply})
	r := <-reply
	return r.Result, r.Err
}

// Close stops every processor's Run loop and tears down the fixture.
func (m *Mesh) Close() {
	m.cancel()
	_ = m.Fixture.Close()
}
