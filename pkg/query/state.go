package query

import (
	"fmt"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
)

// Status is the observable projection of a query's state: the same
// variants as State, minus payloads. The zero value, StatusNone,
// represents the implicit "key absent" Empty state and is never
// stored in the registry.
type Status int

const (
	StatusNone Status = iota
	StatusPreparing
	StatusAwaitingInputs
	StatusRunning
	StatusAwaitingCompletion
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusPreparing:
		return "Preparing"
	case StatusAwaitingInputs:
		return "AwaitingInputs"
	case StatusRunning:
		return "Running"
	case StatusAwaitingCompletion:
		return "AwaitingCompletion"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// legalNext is the total order a query's state must follow:
// Empty -> Preparing -> AwaitingInputs -> Running -> AwaitingCompletion
// -> Completed. Any transition not found here fails with
// StateError{InvalidState}.
var legalNext = map[Status]Status{
	StatusNone:               StatusPreparing,
	StatusPreparing:          StatusAwaitingInputs,
	StatusAwaitingInputs:     StatusRunning,
	StatusRunning:            StatusAwaitingCompletion,
	StatusAwaitingCompletion: StatusCompleted,
}

// State is one valid snapshot of a query, carrying the payload
// attached to its current status. Only the fields relevant to the
// current status are populated.
type State struct {
	Status   Status
	Config   Config
	Gateway  *helper.Gateway
	Handle   CompletionHandle
	Complete Result
}

// StateErrorKind distinguishes the two ways a transition can be
// rejected.
type StateErrorKind int

const (
	// KindInvalidState is any attempted skip or regression in the
	// transition order.
	KindInvalidState StateErrorKind = iota
	// KindAlreadyRunning is specifically the Empty -> Preparing
	// collision: a second new_query racing the first.
	KindAlreadyRunning
)

// StateError is returned when a caller attempts an illegal state
// transition.
type StateError struct {
	Kind StateErrorKind
	From Status
	To   Status
}

func (e *StateError) Error() string {
	if e.Kind == KindAlreadyRunning {
		return "query: a query is already running with this id"
	}
	return fmt.Sprintf("query: invalid state transition from %s to %s", e.From, e.To)
}
