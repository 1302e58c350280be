// Package protocol implements the per-step context protocol authors
// use to drive Gateway channels for record-by-record share exchange,
// independent of security model.
package protocol

import (
	"fmt"
	"sync"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
	"github.com/zhiwenf/raw-ipa/pkg/protocol/field"
)

// SecurityModel distinguishes the two adversary models ProtocolContext
// supports.
type SecurityModel int

const (
	SemiHonest SecurityModel = iota
	Malicious
)

func (m SecurityModel) String() string {
	if m == Malicious {
		return "malicious"
	}
	return "semi-honest"
}

// Decoder parses a field element back out of its wire bytes. Protocol
// code supplies the decoder matching its query's field.
type Decoder func([]byte) (field.Field, error)

// ProtocolContext is what protocol authors consume to run one step: it
// carries this helper's role and ring position, the step it is
// narrowed to, the query's Gateway, and, for the malicious model, the
// per-context MAC accumulator.
type ProtocolContext struct {
	Role    helper.Role
	Step    helper.Step
	Gateway *helper.Gateway
	Model   SecurityModel

	rnd     field.Random
	decode  Decoder
	acc     *Accumulator
	mu      sync.Mutex
	used    map[helper.RecordID]struct{}
	sender  *helper.Sender
	senderO sync.Once
	recv    *helper.Receiver
	recvO   sync.Once
}

// NewContext builds a ProtocolContext for one (role, step, model). acc
// is nil for SemiHonest and a fresh Accumulator for Malicious.
func NewContext(role helper.Role, step helper.Step, gw *helper.Gateway, model SecurityModel, rnd field.Random, decode Decoder) *ProtocolContext {
	c := &ProtocolContext{
		Role:    role,
		Step:    step,
		Gateway: gw,
		Model:   model,
		rnd:     rnd,
		decode:  decode,
		used:    make(map[helper.RecordID]struct{}),
	}
	if model == Malicious {
		c.acc = NewAccumulator()
	}
	return c
}

// Narrow returns a context for a child step, inheriting role, gateway,
// model, randomness and decoder. The record-id dedup set, the cached
// channel endpoints and, for the malicious model, the MAC accumulator
// are per-step and start fresh: record-id uniqueness is scoped to one
// step.
func (c *ProtocolContext) Narrow(segment string) *ProtocolContext {
	return NewContext(c.Role, c.Step.Narrow(segment), c.Gateway, c.Model, c.rnd, c.decode)
}

// Accumulator returns this context's MAC accumulator. Panics if the
// context was not built with the malicious model.
func (c *ProtocolContext) Accumulator() *Accumulator {
	if c.acc == nil {
		panic("protocol: Accumulator called on a semi-honest context")
	}
	return c.acc
}

// MarkRecordUsed enforces the per-step record-id uniqueness invariant;
// reusing an id is a fatal protocol error.
func (c *ProtocolContext) MarkRecordUsed(id helper.RecordID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.used[id]; dup {
		panic(fmt.Sprintf("protocol: record id %d reused on step %s", id, c.Step))
	}
	c.used[id] = struct{}{}
}

// Random draws this context's masking element for recordID.
func (c *ProtocolContext) Random(recordID helper.RecordID) field.Field {
	return c.rnd.Random(uint64(recordID))
}

// Decode parses wire bytes for this context's field.
func (c *ProtocolContext) Decode(b []byte) (field.Field, error) {
	return c.decode(b)
}

// RightSender returns (building once) the Sender addressing this
// context's right peer on Step.
func (c *ProtocolContext) RightSender() *helper.Sender {
	c.senderO.Do(func() {
		c.sender = c.Gateway.GetSender(RightRole(c.Role), c.Step)
	})
	return c.sender
}

// LeftReceiver returns (building once) the Receiver addressing this
// context's left peer on Step.
func (c *ProtocolContext) LeftReceiver() *helper.Receiver {
	c.recvO.Do(func() {
		c.recv = c.Gateway.GetReceiver(LeftRole(c.Role), c.Step)
	})
	return c.recv
}

// RightRole and LeftRole encode the fixed three-party ring direction
// that NewRoleAssignment establishes: H1's right is H2, H2's right is
// H3, H3's right is H1, and left is the reverse traversal.
func RightRole(r helper.Role) helper.Role {
	switch r {
	case helper.H1:
		return helper.H2
	case helper.H2:
		return helper.H3
	case helper.H3:
		return helper.H1
	default:
		panic("protocol: undefined role has no right peer")
	}
}

func LeftRole(r helper.Role) helper.Role {
	switch r {
	case helper.H1:
		return helper.H3
	case helper.H2:
		return helper.H1
	case helper.H3:
		return helper.H2
	default:
		panic("protocol: undefined role has no left peer")
	}
}
