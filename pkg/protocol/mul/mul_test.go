package mul

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
	"github.com/zhiwenf/raw-ipa/pkg/protocol"
	"github.com/zhiwenf/raw-ipa/pkg/protocol/field"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ringMasks builds the three correlated PRSS views SecureMul's masking
// depends on: each pairwise key is shared between ring neighbours, so
// the per-party masks telescope to zero when the contributions are
// summed.
func ringMasks() map[helper.Role]field.PRSS {
	k12 := []byte("pairwise-h1-h2")
	k23 := []byte("pairwise-h2-h3")
	k31 := []byte("pairwise-h3-h1")
	return map[helper.Role]field.PRSS{
		helper.H1: field.NewPRSS(k12, k31),
		helper.H2: field.NewPRSS(k23, k12),
		helper.H3: field.NewPRSS(k31, k23),
	}
}

func TestProtocolContext_RecordIDReusePanics(t *testing.T) {
	ctx := protocol.NewContext(helper.H1, helper.NewStep("x"), nil, protocol.SemiHonest, field.Fp31Random{}, nil)
	ctx.MarkRecordUsed(1)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic reusing a record id on the same step")
		}
	}()
	ctx.MarkRecordUsed(1)
}

type ring3 struct {
	fixture *helper.InMemoryFixture
	gw      map[helper.Role]*helper.Gateway
}

func newRing3(t *testing.T) *ring3 {
	t.Helper()
	ids := map[helper.Role]helper.Identity{helper.H1: "h1", helper.H2: "h2", helper.H3: "h3"}
	fixture := helper.NewInMemoryFixture(nil, "h1", "h2", "h3")
	roles := helper.NewRoleAssignment("h1", "h2", "h3")

	r := &ring3{fixture: fixture, gw: make(map[helper.Role]*helper.Gateway, 3)}
	for role, id := range ids {
		transport, err := fixture.Transport(id)
		if err != nil {
			t.Fatalf("transport: %v", err)
		}
		r.gw[role] = helper.NewGateway("q1", helper.GatewayConfig{BatchBytes: 1, FlushInterval: time.Millisecond}, roles, transport, nil)
	}
	return r
}

func (r *ring3) close() {
	for _, gw := range r.gw {
		gw.Close()
	}
	_ = r.fixture.Close()
}

func decodeFp31(b []byte) (field.Field, error) {
	return field.Fp31FromBytes(b)
}

// TestSemiHonest_Multiply_Reconstructs drives one semi-honest multiply
// across all three parties and checks the summed contributions
// reconstruct a*b: a single round trip where each party's masking term
// cancels around the ring.
func TestSemiHonest_Multiply_Reconstructs(t *testing.T) {
	ring := newRing3(t)
	defer ring.close()

	step := helper.NewStep("semi-honest-mul")
	a := field.SplitFp31(4, field.Fp31Random{})
	b := field.SplitFp31(5, field.Fp31Random{})
	masks := ringMasks()

	shares := make([]field.Replicated, 3)
	errs := make([]error, 3)
	var wg sync.WaitGroup
	for i, role := range []helper.Role{helper.H1, helper.H2, helper.H3} {
		wg.Add(1)
		go func(i int, role helper.Role) {
			defer wg.Done()
			ctx := protocol.NewContext(role, step, ring.gw[role], protocol.SemiHonest, masks[role], decodeFp31)
			share, err := NewSemiHonest(ctx).Multiply(0, a[i], b[i])
			if err != nil {
				errs[i] = err
				return
			}
			shares[i] = share.(field.Replicated)
		}(i, role)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("party %d: multiply failed: %v", i, err)
		}
	}
	total := shares[0].Left.Add(shares[1].Left).Add(shares[2].Left)
	if got, ok := total.(field.Fp31); !ok || got != 20 {
		t.Fatalf("expected reconstructed product 20 mod 31, got %v", total)
	}
}

// TestMalicious_Multiply_Reconstructs checks that a malicious multiply
// across all three parties reconstructs the same product a semi-honest
// multiply would, and that every party's accumulator picks up a MAC
// term.
func TestMalicious_Multiply_Reconstructs(t *testing.T) {
	ring := newRing3(t)
	defer ring.close()

	step := helper.NewStep("malicious-mul")

	a := field.SplitFp31(4, field.Fp31Random{})
	b := field.SplitFp31(5, field.Fp31Random{})
	// MAC shares: an arbitrary fixed key r=7, split the same way.
	aMAC := field.SplitFp31(4*7, field.Fp31Random{})

	masks := ringMasks()
	contexts := make(map[helper.Role]*protocol.ProtocolContext, 3)
	for _, role := range []helper.Role{helper.H1, helper.H2, helper.H3} {
		contexts[role] = protocol.NewContext(role, step, ring.gw[role], protocol.Malicious, masks[role], decodeFp31)
	}

	type out struct {
		share field.MaliciousReplicated
		err   error
	}
	results := make(chan out, 3)
	var wg sync.WaitGroup
	for i, role := range []helper.Role{helper.H1, helper.H2, helper.H3} {
		wg.Add(1)
		go func(i int, role helper.Role) {
			defer wg.Done()
			mulImpl := NewMalicious(contexts[role])
			myA := field.NewMaliciousReplicated(a[i], aMAC[i])
			myB := field.NewMaliciousReplicated(b[i], field.Replicated{Left: field.NewFp31(0), Right: field.NewFp31(0)})
			share, err := mulImpl.Multiply(1, myA, myB)
			if err != nil {
				results <- out{err: err}
				return
			}
			results <- out{share: share.(field.MaliciousReplicated)}
		}(i, role)
	}
	wg.Wait()
	close(results)

	var shares []field.Replicated
	for r := range results {
		if r.err != nil {
			t.Fatalf("multiply failed: %v", r.err)
		}
		shares = append(shares, r.share.Share)
	}
	if len(shares) != 3 {
		t.Fatalf("expected 3 results, got %d", len(shares))
	}

	total := shares[0].Left.Add(shares[1].Left).Add(shares[2].Left)
	if got, ok := total.(field.Fp31); !ok || got != 20 {
		t.Fatalf("expected reconstructed product 20 mod 31, got %v", total)
	}

	for role, ctx := range contexts {
		if ctx.Accumulator().Value() == nil {
			t.Fatalf("role %s: expected accumulator to have accrued a MAC term", role)
		}
	}
}
