package protocol

import (
	"sync"

	"github.com/zhiwenf/raw-ipa/pkg/protocol/field"
)

// Accumulator is the per-context mutable cell malicious multiplies
// fold their MAC term into, shared across every multiply invocation
// within one protocol step. It is owned by the ProtocolContext and
// passed by reference into each multiply, never cloned.
type Accumulator struct {
	mu    sync.Mutex
	total field.Field
}

// NewAccumulator builds an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add folds term into the running MAC total.
func (a *Accumulator) Add(term field.Field) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total == nil {
		a.total = term
		return
	}
	a.total = a.total.Add(term)
}

// Value returns the current accumulated total, or nil if nothing has
// been added yet.
func (a *Accumulator) Value() field.Field {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
