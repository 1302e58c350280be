package query

import "testing"

func TestRegistry_LegalTransitionOrder(t *testing.T) {
	reg := NewRegistry()
	h := reg.Handle("q1")

	if _, ok := h.Status(); ok {
		t.Fatalf("a fresh handle should report no status")
	}

	if _, err := h.SetState(StatusPreparing, func(Status) (*State, error) { return &State{}, nil }); err != nil {
		t.Fatalf("Empty -> Preparing should be legal: %v", err)
	}
	if status, _ := h.Status(); status != StatusPreparing {
		t.Fatalf("expected Preparing, got %s", status)
	}

	if _, err := h.SetState(StatusRunning, func(Status) (*State, error) { return &State{}, nil }); err == nil {
		t.Fatalf("skipping AwaitingInputs should fail")
	}

	if _, err := h.SetState(StatusAwaitingInputs, func(Status) (*State, error) { return &State{}, nil }); err != nil {
		t.Fatalf("Preparing -> AwaitingInputs should be legal: %v", err)
	}
}

// TestRegistry_AlreadyRunning is the Empty -> Preparing collision:
// when two callers race to create the same query, exactly one wins.
func TestRegistry_AlreadyRunning(t *testing.T) {
	reg := NewRegistry()
	h := reg.Handle("q1")

	if _, err := h.SetState(StatusPreparing, func(Status) (*State, error) { return &State{}, nil }); err != nil {
		t.Fatalf("first Preparing transition should succeed: %v", err)
	}

	_, err := h.SetState(StatusPreparing, func(Status) (*State, error) { return &State{}, nil })
	if err == nil {
		t.Fatalf("second Preparing transition should fail")
	}
	se, ok := err.(*StateError)
	if !ok || se.Kind != KindAlreadyRunning {
		t.Fatalf("expected StateError{AlreadyRunning}, got %v", err)
	}
}

func TestRegistry_StatusIdempotentRead(t *testing.T) {
	reg := NewRegistry()
	h := reg.Handle("q1")
	h.SetState(StatusPreparing, func(Status) (*State, error) { return &State{}, nil })

	first, _ := h.Status()
	second, _ := h.Status()
	if first != second {
		t.Fatalf("status() should be idempotent with no intervening transition")
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry()
	h := reg.Handle("q1")
	h.SetState(StatusPreparing, func(Status) (*State, error) { return &State{}, nil })
	h.Remove()

	if _, ok := h.Status(); ok {
		t.Fatalf("removed query should report no status")
	}
	if _, err := h.SetState(StatusPreparing, func(Status) (*State, error) { return &State{}, nil }); err != nil {
		t.Fatalf("a removed query should accept a fresh Preparing transition: %v", err)
	}
}
