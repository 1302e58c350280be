package query

import "github.com/zhiwenf/raw-ipa/pkg/helper"

// Command is the external command surface: Create | Prepare | Input |
// Results, each carrying a one-shot reply channel. Values of this
// interface never carry record traffic; that travels through the
// transport's channel fabric directly to the Gateway, not through the
// processor's command stream.
type Command interface {
	isCommand()
}

// CreateCommand asks the processor to coordinate a brand new query.
type CreateCommand struct {
	Config    Config
	Transport helper.Transport
	Reply     chan<- CreateReply
}

// CreateReply carries the result of a CreateCommand.
type CreateReply struct {
	Prepare PrepareQuery
	Err     error
}

func (CreateCommand) isCommand() {}

// PrepareCommand delivers an inbound PrepareQuery to a follower.
type PrepareCommand struct {
	Request PrepareQuery
	Reply   chan<- error
}

func (PrepareCommand) isCommand() {}

// InputCommand delivers input shares for an already-prepared query.
type InputCommand struct {
	Input Input
	Reply chan<- error
}

func (InputCommand) isCommand() {}

// ResultsCommand asks the processor to drain a completed query's
// result.
type ResultsCommand struct {
	QueryID helper.QueryID
	Reply   chan<- ResultsReply
}

// ResultsReply carries the result of a ResultsCommand.
type ResultsReply struct {
	Result Result
	Err    error
}

func (ResultsCommand) isCommand() {}
