// Package mul implements SecureMul, the canonical example of how
// protocol code consumes a ProtocolContext for record-by-record share
// exchange: a semi-honest implementation and a malicious one that
// wraps it, two small concrete types behind one interface.
package mul

import (
	"fmt"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
	"github.com/zhiwenf/raw-ipa/pkg/protocol"
	"github.com/zhiwenf/raw-ipa/pkg/protocol/field"
)

// SecureMul is the capability protocol authors consume: multiply two
// secret shares of a and b and get back a share of their product.
type SecureMul interface {
	Multiply(recordID helper.RecordID, a, b field.Share) (field.Share, error)
}

// SemiHonest multiplies replicated shares with a single round trip:
// each party computes a local product plus a randomness term, sends
// its contribution to the right peer, and receives the corresponding
// contribution from the left peer. The returned share is the local
// contribution plus what was received.
type SemiHonest struct {
	ctx *protocol.ProtocolContext
}

// NewSemiHonest wraps ctx, which must have been built with
// protocol.SemiHonest.
func NewSemiHonest(ctx *protocol.ProtocolContext) SemiHonest {
	return SemiHonest{ctx: ctx}
}

func (m SemiHonest) Multiply(recordID helper.RecordID, a, b field.Share) (field.Share, error) {
	ra, ok := a.(field.Replicated)
	if !ok {
		return nil, fmt.Errorf("mul: semi-honest multiply requires field.Replicated shares")
	}
	rb, ok := b.(field.Replicated)
	if !ok {
		return nil, fmt.Errorf("mul: semi-honest multiply requires field.Replicated shares")
	}
	return m.multiplyReplicated(recordID, ra, rb)
}

func (m SemiHonest) multiplyReplicated(recordID helper.RecordID, a, b field.Replicated) (field.Replicated, error) {
	c := m.ctx
	c.MarkRecordUsed(recordID)

	local := a.Left.Mul(b.Left).Add(a.Left.Mul(b.Right)).Add(a.Right.Mul(b.Left))
	mask := c.Random(recordID)
	contribution := local.Add(mask)

	c.RightSender().Write(contribution.Bytes())

	frame := contribution.Bytes()
	data, ok := c.LeftReceiver().ReadExact(len(frame))
	if !ok {
		return field.Replicated{}, fmt.Errorf("mul: left peer stream closed before record %d on step %s", recordID, c.Step)
	}
	received, err := c.Decode(data)
	if err != nil {
		return field.Replicated{}, fmt.Errorf("mul: decoding left peer's record %d: %w", recordID, err)
	}

	// The left peer's contribution is this party's Left piece and its own
	// is the Right piece, so party i's Right equals party i+1's Left, the
	// layout field.Replicated documents.
	return field.NewReplicated(received, contribution), nil
}

// Malicious wraps SemiHonest for replicated shares and additionally
// folds a MAC term into the context's accumulator for later
// verification. It calls semi-honest multiply twice: once on the
// value shares, once on one side's MAC-multiplied shares, each over
// its own narrowed step so the two record streams never collide.
type Malicious struct {
	ctx      *protocol.ProtocolContext
	valueCtx *protocol.ProtocolContext
	macCtx   *protocol.ProtocolContext
	valueMul SemiHonest
	macMul   SemiHonest
}

// NewMalicious wraps ctx, which must have been built with
// protocol.Malicious.
func NewMalicious(ctx *protocol.ProtocolContext) Malicious {
	valueCtx := ctx.Narrow("value")
	macCtx := ctx.Narrow("mac")
	return Malicious{
		ctx:      ctx,
		valueCtx: valueCtx,
		macCtx:   macCtx,
		valueMul: NewSemiHonest(valueCtx),
		macMul:   NewSemiHonest(macCtx),
	}
}

func (m Malicious) Multiply(recordID helper.RecordID, a, b field.Share) (field.Share, error) {
	ma, ok := a.(field.MaliciousReplicated)
	if !ok {
		return nil, fmt.Errorf("mul: malicious multiply requires field.MaliciousReplicated shares")
	}
	mb, ok := b.(field.MaliciousReplicated)
	if !ok {
		return nil, fmt.Errorf("mul: malicious multiply requires field.MaliciousReplicated shares")
	}

	valueShare, err := m.valueMul.multiplyReplicated(recordID, ma.Share, mb.Share)
	if err != nil {
		return nil, fmt.Errorf("mul: malicious multiply, value term: %w", err)
	}

	macShare, err := m.macMul.multiplyReplicated(recordID, ma.MAC, mb.Share)
	if err != nil {
		return nil, fmt.Errorf("mul: malicious multiply, mac term: %w", err)
	}

	m.ctx.Accumulator().Add(macShare.Left)

	return field.NewMaliciousReplicated(valueShare, macShare), nil
}
