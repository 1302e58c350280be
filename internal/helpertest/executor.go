package helpertest

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
	"github.com/zhiwenf/raw-ipa/pkg/protocol"
	"github.com/zhiwenf/raw-ipa/pkg/protocol/field"
	"github.com/zhiwenf/raw-ipa/pkg/protocol/mul"
	"github.com/zhiwenf/raw-ipa/pkg/query"
)

// TestMultiplyExecutor drives the SecureMul exemplar directly against
// a four-byte Fp31 input stream, {a.Left, a.Right, b.Left, b.Right},
// one byte each, reconstructing a*b across all three helpers. It is
// the canonical end-to-end harness for the transport and gateway
// plumbing, standing in for a real protocol body.
type TestMultiplyExecutor struct{}

func (TestMultiplyExecutor) StartQuery(ctx context.Context, config query.Config, gw *helper.Gateway, input helper.ChunkStream) query.CompletionHandle {
	handle, resolve := query.NewCompletionHandle()
	go func() {
		result, err := runTestMultiply(gw, input)
		resolve(result, err)
	}()
	return handle
}

func runTestMultiply(gw *helper.Gateway, input helper.ChunkStream) (query.Result, error) {
	var buf []byte
	for chunk := range input {
		buf = append(buf, chunk...)
	}
	if len(buf) != 4 {
		return nil, fmt.Errorf("helpertest: test-multiply input must be 4 bytes, got %d", len(buf))
	}

	a, err := decodeReplicated(buf[0:2])
	if err != nil {
		return nil, err
	}
	b, err := decodeReplicated(buf[2:4])
	if err != nil {
		return nil, err
	}

	self := gw.Role()
	step := helper.NewStep("test-multiply")
	prss := ringPRSS(string(gw.QueryID()), self)
	protoCtx := protocol.NewContext(self, step, gw, protocol.SemiHonest, prss, decodeFp31Field)

	product, err := mul.NewSemiHonest(protoCtx).Multiply(0, a, b)
	if err != nil {
		return nil, fmt.Errorf("helpertest: test-multiply: %w", err)
	}

	total, err := revealLeft(gw, step.Narrow("reveal"), product.(field.Replicated).Left)
	if err != nil {
		return nil, fmt.Errorf("helpertest: test-multiply reveal: %w", err)
	}

	return query.BytesResult(total.Bytes()), nil
}

func decodeReplicated(b []byte) (field.Replicated, error) {
	left, err := field.Fp31FromBytes(b[0:1])
	if err != nil {
		return field.Replicated{}, err
	}
	right, err := field.Fp31FromBytes(b[1:2])
	if err != nil {
		return field.Replicated{}, err
	}
	return field.NewReplicated(left, right), nil
}

func decodeFp31Field(b []byte) (field.Field, error) {
	return field.Fp31FromBytes(b)
}

// ringPRSS derives the correlated masking source for self within
// query queryID. Keys are derived deterministically from public
// (query id, role pair) material rather than a real pre-shared
// secret; a production PRSS key is established once per helper pair
// out of band, which is outside this test fixture's scope.
func ringPRSS(queryID string, self helper.Role) field.PRSS {
	right := protocol.RightRole(self)
	left := protocol.LeftRole(self)
	return field.NewPRSS(pairKey(queryID, self, right), pairKey(queryID, left, self))
}

func pairKey(queryID string, a, b helper.Role) []byte {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", queryID, lo, hi)))
	return sum[:]
}

// revealLeft exchanges own with both other helpers on step and sums
// every party's contribution, reconstructing the shared value exactly
// as Replicated.Reveal defines it.
func revealLeft(gw *helper.Gateway, step helper.Step, own field.Field) (field.Field, error) {
	self := gw.Role()
	var peers []helper.Role
	for _, r := range []helper.Role{helper.H1, helper.H2, helper.H3} {
		if r != self {
			peers = append(peers, r)
		}
	}

	frame := own.Bytes()
	for _, r := range peers {
		gw.GetSender(r, step).Write(frame)
	}

	total := own
	for _, r := range peers {
		data, ok := gw.GetReceiver(r, step).ReadExact(len(frame))
		if !ok {
			return nil, fmt.Errorf("peer %s stream closed before reveal", r)
		}
		v, err := field.Fp31FromBytes(data)
		if err != nil {
			return nil, err
		}
		total = total.Add(v)
	}
	return total, nil
}
