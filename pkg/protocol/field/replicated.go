package field

// Replicated is a (3,3) replicated secret share: each helper holds
// two of the three additive pieces. A value x is split into x1, x2,
// x3 with x1+x2+x3 = x; helper i holds (x_i, x_{i+1}).
type Replicated struct {
	Left  Field
	Right Field
}

// NewReplicated wraps the two additive pieces this helper holds.
func NewReplicated(left, right Field) Replicated {
	return Replicated{Left: left, Right: right}
}

// SplitFp31 splits v into three Fp31 replicated shares for h1, h2, h3
// such that h1.Left + h2.Left + h3.Left == v, used by test fixtures
// that need to hand a secret-shared input to each of three helpers.
func SplitFp31(v int64, rnd Random) [3]Replicated {
	x1 := rnd.Random(0)
	x2 := rnd.Random(1)
	x3 := NewFp31(v).Sub(x1).Sub(x2)
	return [3]Replicated{
		NewReplicated(x1, x2),
		NewReplicated(x2, x3),
		NewReplicated(x3, x1),
	}
}

// Reveal reconstructs the shared value from this share plus the other
// two replicated shares in ring order. It sums every party's Left
// piece, which by construction visits x1, x2, x3 exactly once.
func (r Replicated) Reveal(others ...Share) Field {
	total := r.Left
	for _, o := range others {
		total = total.Add(o.(Replicated).Left)
	}
	return total
}

func (r Replicated) Bytes() []byte {
	return append(append([]byte{}, r.Left.Bytes()...), r.Right.Bytes()...)
}

// MaliciousReplicated extends a Replicated share with a replicated
// share of r*value, where r is the MPC instance's fixed MAC key. The
// extra share lets a malicious-model multiply extend the accumulator
// with a MAC term alongside every product.
type MaliciousReplicated struct {
	Share Replicated
	MAC   Replicated
}

// NewMaliciousReplicated pairs a value share with its MAC share.
func NewMaliciousReplicated(share, mac Replicated) MaliciousReplicated {
	return MaliciousReplicated{Share: share, MAC: mac}
}

// Reveal reconstructs the underlying value, ignoring the MAC term;
// a caller doing so without checking the accumulator first forfeits
// the malicious-model's integrity guarantee.
func (m MaliciousReplicated) Reveal(others ...Share) Field {
	peers := make([]Share, len(others))
	for i, o := range others {
		peers[i] = o.(MaliciousReplicated).Share
	}
	return m.Share.Reveal(peers...)
}

func (m MaliciousReplicated) Bytes() []byte {
	return append(append([]byte{}, m.Share.Bytes()...), m.MAC.Bytes()...)
}
