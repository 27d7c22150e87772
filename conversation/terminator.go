package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/llm"
)

// minMessagesForTermination skips termination checks for very short
// exchanges, notably simple greeting exchanges.
const minMessagesForTermination = 3

// Terminator asks the supervisor model whether the group conversation has
// naturally concluded. Failures bias toward continuing, never stopping.
type Terminator struct {
	caller llm.Caller
	model  string
	logger *zap.Logger
}

// NewTerminator creates a Terminator bound to the supervisor model.
func NewTerminator(caller llm.Caller, model string, logger *zap.Logger) *Terminator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Terminator{
		caller: caller,
		model:  model,
		logger: logger.With(zap.String("component", "terminator")),
	}
}

// ShouldStop evaluates whether the conversation should end. Transcripts
// shorter than minMessagesForTermination are never terminated.
func (t *Terminator) ShouldStop(ctx context.Context, state *State) TerminationDecision {
	if len(state.Messages) < minMessagesForTermination {
		return TerminationDecision{Reason: "conversation too short to evaluate"}
	}

	req := &llm.StructuredRequest{
		Model:  t.model,
		Schema: terminationSchema,
		Prompt: buildTerminationPrompt(state),
	}

	var dec TerminationDecision
	if err := t.caller.GenerateStructured(ctx, req, &dec); err != nil {
		t.logger.Warn("termination evaluation failed, continuing",
			zap.String("conversation_id", state.ConversationID),
			zap.Error(err),
		)
		return TerminationDecision{Reason: "continuing due to parsing error"}
	}
	return dec
}
