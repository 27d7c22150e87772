package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/llm"
)

const (
	// recentMessageWindow is how much transcript the supervisor sees.
	recentMessageWindow = 5
	// recentSpeakerWindow is how many distinct recent speakers the
	// selection prompt advertises as off-limits.
	recentSpeakerWindow = 3

	forcedVarietyReasoning = "Forced variety to avoid repetition"
	fallbackReasoning      = "Fallback selection due to error"
)

// Selector asks the supervisor model who should speak next. A selector
// failure is never fatal: any supervisor error degrades to a
// deterministic roster pick.
type Selector struct {
	caller llm.Caller
	model  string
	logger *zap.Logger
}

// NewSelector creates a Selector bound to the supervisor model.
func NewSelector(caller llm.Caller, model string, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		caller: caller,
		model:  model,
		logger: logger.With(zap.String("component", "selector")),
	}
}

// SelectNext returns the supervisor's choice of next speaker, or nil when
// the roster is empty. Turns defaults to 1 when the model omits it; a
// zero Turns value is a valid "pause and wait for the user" response.
//
// The anti-repetition override compares the raw choice against only the
// single most recent distinct speaker, while the prompt advertises the
// full recency window. The narrow mechanical rule is kept deliberately;
// widening it changes observable selection behavior.
func (s *Selector) SelectNext(ctx context.Context, state *State) *AgentSelection {
	if len(state.Agents) == 0 {
		return nil
	}

	recentSpeakers := state.RecentAssistantSpeakers(recentSpeakerWindow)

	req := &llm.StructuredRequest{
		Model:  s.model,
		Schema: selectionSchema,
		Prompt: buildSelectionPrompt(state, recentSpeakers),
	}

	var sel AgentSelection
	sel.Turns = 1 // default when the model omits turns
	if err := s.caller.GenerateStructured(ctx, req, &sel); err != nil {
		s.logger.Warn("supervisor selection failed, falling back to roster head",
			zap.String("conversation_id", state.ConversationID),
			zap.Error(err),
		)
		return &AgentSelection{
			AgentID:   state.Agents[0].ID,
			Reasoning: fallbackReasoning,
			Turns:     1,
		}
	}

	if sel.Turns < 0 {
		sel.Turns = 1
	}
	if sel.AgentID == "" || !s.onRoster(state, sel.AgentID) {
		s.logger.Warn("supervisor returned unknown agent, falling back to roster head",
			zap.String("agent_id", sel.AgentID),
		)
		return &AgentSelection{
			AgentID:   state.Agents[0].ID,
			Reasoning: fallbackReasoning,
			Turns:     1,
		}
	}

	// Forced variety: discard a pick that repeats the most recent
	// speaker and take the first roster agent that differs.
	if len(recentSpeakers) > 0 && sel.AgentID == recentSpeakers[0] {
		for _, a := range state.Agents {
			if a.ID != recentSpeakers[0] {
				s.logger.Debug("overriding repeated speaker",
					zap.String("rejected", sel.AgentID),
					zap.String("forced", a.ID),
				)
				return &AgentSelection{
					AgentID:   a.ID,
					Reasoning: forcedVarietyReasoning,
					Turns:     sel.Turns,
				}
			}
		}
		// Single-agent roster: repetition is unavoidable.
	}

	return &sel
}

func (s *Selector) onRoster(state *State, agentID string) bool {
	for _, a := range state.Agents {
		if a.ID == agentID {
			return true
		}
	}
	return false
}
