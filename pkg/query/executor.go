package query

import (
	"context"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
)

// Executor runs a query's protocol body once its inputs arrive. The
// production IPA protocol body and the field-arithmetic library that
// would back a real implementation live behind this seam; this
// package only needs to hold it open and drive it.
type Executor interface {
	StartQuery(ctx context.Context, config Config, gateway *helper.Gateway, input helper.ChunkStream) CompletionHandle
}

type completionOutcome struct {
	result Result
	err    error
}

// CompletionHandle is the future an Executor hands back; Complete
// awaits it.
type CompletionHandle struct {
	ch <-chan completionOutcome
}

// NewCompletionHandle returns a handle and the resolver function an
// Executor implementation calls exactly once when the query finishes.
func NewCompletionHandle() (CompletionHandle, func(Result, error)) {
	ch := make(chan completionOutcome, 1)
	resolve := func(result Result, err error) {
		ch <- completionOutcome{result: result, err: err}
	}
	return CompletionHandle{ch: ch}, resolve
}

// Await blocks until the executor resolves the handle or ctx is
// cancelled.
func (h CompletionHandle) Await(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-h.ch:
		return out.result, out.err
	}
}
