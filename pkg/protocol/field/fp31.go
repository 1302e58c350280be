package field

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Fp31Modulus is the modulus of the toy field used by the SecureMul
// exemplar and its tests.
const Fp31Modulus = 31

// Fp31 is an element of GF(31), the reference Field implementation.
type Fp31 uint8

// NewFp31 reduces v into the canonical representative of GF(31).
func NewFp31(v int64) Fp31 {
	m := int64(Fp31Modulus)
	r := v % m
	if r < 0 {
		r += m
	}
	return Fp31(r)
}

func (f Fp31) Add(other Field) Field {
	o := other.(Fp31)
	return NewFp31(int64(f) + int64(o))
}

func (f Fp31) Sub(other Field) Field {
	o := other.(Fp31)
	return NewFp31(int64(f) - int64(o))
}

func (f Fp31) Mul(other Field) Field {
	o := other.(Fp31)
	return NewFp31(int64(f) * int64(o))
}

func (f Fp31) Neg() Field {
	return NewFp31(-int64(f))
}

func (f Fp31) Equal(other Field) bool {
	o, ok := other.(Fp31)
	return ok && f == o
}

func (f Fp31) Bytes() []byte {
	return []byte{byte(f)}
}

func (f Fp31) String() string {
	return fmt.Sprintf("%d", uint8(f))
}

// Fp31FromBytes decodes a single-byte Fp31 wire encoding.
func Fp31FromBytes(b []byte) (Fp31, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("field: fp31 wire encoding must be 1 byte, got %d", len(b))
	}
	if b[0] >= Fp31Modulus {
		return 0, fmt.Errorf("field: fp31 value %d out of range", b[0])
	}
	return Fp31(b[0]), nil
}

// Fp31Random is an uncorrelated Random source: each call draws fresh
// randomness from crypto/rand, ignoring counter. It is not suitable
// for SecureMul's masking term across a real multi-party run (the
// masks it produces don't cancel around the ring) but is useful
// wherever independent randomness is genuinely all that's needed,
// like splitting an input into shares.
type Fp31Random struct{}

func (Fp31Random) Random(counter uint64) Field {
	n, err := rand.Int(rand.Reader, big.NewInt(Fp31Modulus))
	if err != nil {
		panic(fmt.Sprintf("field: reading randomness: %v", err))
	}
	return Fp31(n.Int64())
}
