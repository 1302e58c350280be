package field

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// PRSS is pseudo-random secret sharing: a masking source built from a
// key shared with the right peer and a key shared with the left peer.
// Used this way around a three-party ring, the right-key of party i
// equals the left-key of party i+1, so the per-party masking terms
// telescope to zero when summed: SecureMul's randomness never
// perturbs the reconstructed product even though no party's
// individual mask is predictable to its peers.
type PRSS struct {
	right []byte
	left  []byte
}

// NewPRSS builds a PRSS view from the two pairwise keys this party
// holds. Key distribution itself (a real system derives these through
// key agreement during setup) is outside this package's scope.
func NewPRSS(right, left []byte) PRSS {
	return PRSS{right: right, left: left}
}

func (p PRSS) Random(counter uint64) Field {
	r := prf(p.right, counter)
	l := prf(p.left, counter)
	return NewFp31(int64(r) - int64(l))
}

func prf(key []byte, counter uint64) int64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	mac := hmac.New(sha256.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	return int64(sum[0] % Fp31Modulus)
}
