package field

import "testing"

func TestFp31_Arithmetic(t *testing.T) {
	a := NewFp31(4)
	b := NewFp31(5)

	if got := a.Mul(b).(Fp31); got != 20 {
		t.Fatalf("4*5 mod 31 = 20, got %d", got)
	}
	if got := NewFp31(30).Add(NewFp31(2)).(Fp31); got != 1 {
		t.Fatalf("30+2 mod 31 = 1, got %d", got)
	}
	if got := NewFp31(3).Sub(NewFp31(5)).(Fp31); got != 29 {
		t.Fatalf("3-5 mod 31 = 29, got %d", got)
	}
	if got := NewFp31(0).Neg().(Fp31); got != 0 {
		t.Fatalf("-0 mod 31 = 0, got %d", got)
	}
}

func TestFp31_BytesRoundTrip(t *testing.T) {
	v := NewFp31(17)
	decoded, err := Fp31FromBytes(v.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != v {
		t.Fatalf("round-trip mismatch: %v != %v", decoded, v)
	}
}

func TestFp31FromBytes_Rejects(t *testing.T) {
	if _, err := Fp31FromBytes([]byte{31}); err == nil {
		t.Fatalf("expected an error decoding a value outside the field")
	}
	if _, err := Fp31FromBytes([]byte{1, 2}); err == nil {
		t.Fatalf("expected an error decoding a non-single-byte value")
	}
}

// TestPRSS_RingMasksCancel checks the correlated-randomness property
// SecureMul's semi-honest multiply depends on: summed around a
// three-party ring, each party's masking term cancels out.
func TestPRSS_RingMasksCancel(t *testing.T) {
	k12 := []byte("key-h1-h2")
	k23 := []byte("key-h2-h3")
	k31 := []byte("key-h3-h1")

	h1 := NewPRSS(k12, k31)
	h2 := NewPRSS(k23, k12)
	h3 := NewPRSS(k31, k23)

	for counter := uint64(0); counter < 8; counter++ {
		sum := h1.Random(counter).(Fp31) + h2.Random(counter).(Fp31) + h3.Random(counter).(Fp31)
		if NewFp31(int64(sum)) != 0 {
			t.Fatalf("counter %d: masks did not cancel, sum=%d", counter, sum)
		}
	}
}
