package query

import (
	"fmt"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
)

// NewQueryError wraps the ways Processor.NewQuery can fail: a state
// collision, or a transport failure while fanning prepare out to
// peers.
type NewQueryError struct {
	State     *StateError
	Transport error
}

func (e *NewQueryError) Error() string {
	if e.State != nil {
		return fmt.Sprintf("query: new_query: %v", e.State)
	}
	return fmt.Sprintf("query: new_query: %v", e.Transport)
}

func (e *NewQueryError) Unwrap() error {
	if e.State != nil {
		return e.State
	}
	return e.Transport
}

// PrepareQueryErrorKind distinguishes why a follower rejected Prepare.
type PrepareQueryErrorKind int

const (
	// KindWrongTarget is returned when a helper is assigned H1 (the
	// coordinator role) in the PrepareQuery it was asked to prepare;
	// a coordinator never prepares its own request.
	KindWrongTarget PrepareQueryErrorKind = iota
	KindPrepareAlreadyRunning
	KindPrepareState
)

// PrepareQueryError is returned by Processor.Prepare.
type PrepareQueryError struct {
	Kind  PrepareQueryErrorKind
	State *StateError
}

func (e *PrepareQueryError) Error() string {
	switch e.Kind {
	case KindWrongTarget:
		return "query: this helper is the query coordinator, cannot respond to Prepare requests"
	case KindPrepareAlreadyRunning:
		return "query: query is already running"
	default:
		return fmt.Sprintf("query: prepare: %v", e.State)
	}
}

func (e *PrepareQueryError) Unwrap() error {
	if e.State != nil {
		return e.State
	}
	return nil
}

// QueryInputError is returned by Processor.ReceiveInputs.
type QueryInputError struct {
	QueryID helper.QueryID
	NoSuch  bool
	State   *StateError
}

func (e *QueryInputError) Error() string {
	if e.NoSuch {
		return fmt.Sprintf("query: the query with id %v does not exist", e.QueryID)
	}
	return fmt.Sprintf("query: receive_inputs: %v", e.State)
}

func (e *QueryInputError) Unwrap() error {
	if e.State != nil {
		return e.State
	}
	return nil
}

// QueryCompletionError is returned by Processor.Complete.
type QueryCompletionError struct {
	QueryID helper.QueryID
	NoSuch  bool
	State   *StateError
}

func (e *QueryCompletionError) Error() string {
	if e.NoSuch {
		return fmt.Sprintf("query: the query with id %v does not exist", e.QueryID)
	}
	return fmt.Sprintf("query: complete: %v", e.State)
}

func (e *QueryCompletionError) Unwrap() error {
	if e.State != nil {
		return e.State
	}
	return nil
}
