package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/types"
)

func twoAgentState() *State {
	return &State{
		ConversationID: "c1",
		Agents: []RosterAgent{
			{ID: "a1", Name: "Ada", Characteristics: "curious"},
			{ID: "a2", Name: "Bo", Characteristics: "calm"},
		},
	}
}

// scriptedSupervisor returns canned selections in order.
func scriptedSupervisor(selections ...AgentSelection) llm.Caller {
	i := 0
	return llm.CallerFunc{
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			sel := selections[i%len(selections)]
			i++
			*out.(*AgentSelection) = sel
			return nil
		},
	}
}

func TestSelectNext_EmptyRoster(t *testing.T) {
	s := NewSelector(scriptedSupervisor(), "gpt-4o-mini", zaptest.NewLogger(t))
	assert.Nil(t, s.SelectNext(context.Background(), &State{}))
}

func TestSelectNext_HonorsSupervisorChoice(t *testing.T) {
	s := NewSelector(scriptedSupervisor(
		AgentSelection{AgentID: "a2", Reasoning: "Bo has context", Turns: 2},
	), "gpt-4o-mini", zaptest.NewLogger(t))

	sel := s.SelectNext(context.Background(), twoAgentState())
	require.NotNil(t, sel)
	assert.Equal(t, "a2", sel.AgentID)
	assert.Equal(t, 2, sel.Turns)
	assert.Equal(t, "Bo has context", sel.Reasoning)
}

func TestSelectNext_TurnsDefaultsToOne(t *testing.T) {
	// The model fills only agentId; turns stays at the default.
	caller := llm.CallerFunc{
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			out.(*AgentSelection).AgentID = "a1"
			return nil
		},
	}
	s := NewSelector(caller, "gpt-4o-mini", zaptest.NewLogger(t))

	sel := s.SelectNext(context.Background(), twoAgentState())
	require.NotNil(t, sel)
	assert.Equal(t, 1, sel.Turns)
}

func TestSelectNext_ZeroTurnsIsAPause(t *testing.T) {
	// An explicit zero must survive; the default applies only when the
	// field is absent.
	caller := llm.CallerFunc{
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			sel := out.(*AgentSelection)
			sel.AgentID = "a1"
			sel.Turns = 0
			return nil
		},
	}
	s := NewSelector(caller, "gpt-4o-mini", zaptest.NewLogger(t))
	sel := s.SelectNext(context.Background(), twoAgentState())
	require.NotNil(t, sel)
	assert.Equal(t, 0, sel.Turns)
}

func TestSelectNext_SupervisorErrorFallsBack(t *testing.T) {
	caller := llm.CallerFunc{
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			return assert.AnError
		},
	}
	s := NewSelector(caller, "gpt-4o-mini", zaptest.NewLogger(t))

	sel := s.SelectNext(context.Background(), twoAgentState())
	require.NotNil(t, sel)
	assert.Equal(t, "a1", sel.AgentID)
	assert.Equal(t, "Fallback selection due to error", sel.Reasoning)
	assert.Equal(t, 1, sel.Turns)
}

func TestSelectNext_OffRosterFallsBack(t *testing.T) {
	s := NewSelector(scriptedSupervisor(
		AgentSelection{AgentID: "ghost", Turns: 1},
	), "gpt-4o-mini", zaptest.NewLogger(t))

	sel := s.SelectNext(context.Background(), twoAgentState())
	require.NotNil(t, sel)
	assert.Equal(t, "a1", sel.AgentID)
	assert.Equal(t, "Fallback selection due to error", sel.Reasoning)
}

func TestSelectNext_ForcedVarietyOverridesRepeat(t *testing.T) {
	s := NewSelector(scriptedSupervisor(
		AgentSelection{AgentID: "a1", Reasoning: "Ada again", Turns: 3},
	), "gpt-4o-mini", zaptest.NewLogger(t))

	state := twoAgentState()
	state.Append(types.NewUserMessage("hello"))
	state.Append(types.NewAssistantMessage("hi", "Ada", "a1"))

	sel := s.SelectNext(context.Background(), state)
	require.NotNil(t, sel)
	assert.Equal(t, "a2", sel.AgentID)
	assert.Equal(t, "Forced variety to avoid repetition", sel.Reasoning)
	// the requested turn count survives the override
	assert.Equal(t, 3, sel.Turns)
}

func TestSelectNext_OnlyMostRecentSpeakerIsBlocked(t *testing.T) {
	// a2 spoke before a1; picking a2 again is allowed, only a1 (the most
	// recent) triggers the override.
	s := NewSelector(scriptedSupervisor(
		AgentSelection{AgentID: "a2", Reasoning: "back to Bo", Turns: 1},
	), "gpt-4o-mini", zaptest.NewLogger(t))

	state := twoAgentState()
	state.Append(types.NewAssistantMessage("hey", "Bo", "a2"))
	state.Append(types.NewAssistantMessage("hi", "Ada", "a1"))

	sel := s.SelectNext(context.Background(), state)
	require.NotNil(t, sel)
	assert.Equal(t, "a2", sel.AgentID)
	assert.Equal(t, "back to Bo", sel.Reasoning)
}

func TestSelectNext_SingleAgentRosterMayRepeat(t *testing.T) {
	s := NewSelector(scriptedSupervisor(
		AgentSelection{AgentID: "a1", Reasoning: "only choice", Turns: 1},
	), "gpt-4o-mini", zaptest.NewLogger(t))

	state := &State{
		ConversationID: "c1",
		Agents:         []RosterAgent{{ID: "a1", Name: "Ada"}},
	}
	state.Append(types.NewAssistantMessage("hi", "Ada", "a1"))

	sel := s.SelectNext(context.Background(), state)
	require.NotNil(t, sel)
	assert.Equal(t, "a1", sel.AgentID)
	assert.Equal(t, "only choice", sel.Reasoning)
}

func TestSelectionPrompt_AdvertisesRecentSpeakers(t *testing.T) {
	var gotPrompt string
	caller := llm.CallerFunc{
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			gotPrompt = req.Prompt
			out.(*AgentSelection).AgentID = "a2"
			return nil
		},
	}
	s := NewSelector(caller, "gpt-4o-mini", zaptest.NewLogger(t))

	state := twoAgentState()
	state.Append(types.NewUserMessage("hello everyone"))
	state.Append(types.NewAssistantMessage("hi", "Ada", "a1"))
	s.SelectNext(context.Background(), state)

	assert.Contains(t, gotPrompt, "id=a1 name=Ada")
	assert.Contains(t, gotPrompt, "hello everyone")
	assert.Contains(t, gotPrompt, "MUST be different from a1")
	assert.True(t, strings.Contains(gotPrompt, "turns=0"))
}

func TestSelectionPrompt_NoRepeatClauseWithoutHistory(t *testing.T) {
	var gotPrompt string
	caller := llm.CallerFunc{
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			gotPrompt = req.Prompt
			out.(*AgentSelection).AgentID = "a1"
			return nil
		},
	}
	s := NewSelector(caller, "gpt-4o-mini", zaptest.NewLogger(t))

	state := twoAgentState()
	state.Append(types.NewUserMessage("hello everyone"))
	s.SelectNext(context.Background(), state)

	assert.NotContains(t, gotPrompt, "MUST be different")
}
