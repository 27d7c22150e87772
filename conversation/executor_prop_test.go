package conversation

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/types"
)

// Whatever the supervisor asks for, the run never exceeds the turn
// ceiling, emits exactly one terminal event, and keeps the transcript
// append-only.
func TestRun_TurnCeilingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxTurns := rapid.IntRange(1, 8).Draw(t, "maxTurns")
		turnsPerSelection := rapid.SliceOfN(rapid.IntRange(0, 4), 1, 20).Draw(t, "turns")

		selIdx := 0
		supervisor := llm.CallerFunc{
			StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
				if sel, ok := out.(*AgentSelection); ok {
					sel.AgentID = "a1"
					sel.Turns = turnsPerSelection[selIdx%len(turnsPerSelection)]
					selIdx++
				}
				return nil
			},
		}
		agentCaller := llm.CallerFunc{
			TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
				return "a reply", nil
			},
		}
		callers := llm.NewCallerRegistry()
		callers.Register("openai", agentCaller)
		if err := callers.SetDefault("openai"); err != nil {
			t.Fatal(err)
		}

		registry := NewAgentRegistry()
		roster := []RosterAgent{{ID: "a1", Name: "Ada"}, {ID: "a2", Name: "Bo"}}
		registry.Register(types.Agent{ID: "a1", Name: "Ada", AI: types.AIConfig{Provider: "openai"}})
		registry.Register(types.Agent{ID: "a2", Name: "Bo", AI: types.AIConfig{Provider: "openai"}})

		state := &State{ConversationID: "c1", Agents: roster, MaxTurns: maxTurns}
		state.Append(types.NewUserMessage("hello"))

		executor := NewExecutor(registry,
			NewSelector(supervisor, "gpt-4o-mini", nil),
			NewGenerator(callers, nil, nil),
			NewTerminator(supervisor, "gpt-4o-mini", nil),
			nil,
			WithSleep(func(ctx context.Context, d time.Duration) bool { return true }),
		)

		terminal := 0
		responses := 0
		for ev := range executor.Run(context.Background(), state) {
			if terminal > 0 {
				t.Fatalf("event %q after terminal event", ev.Type)
			}
			if ev.IsTerminal() {
				terminal++
			}
			if ev.Type == EventAgentResponse {
				responses++
			}
		}

		if terminal != 1 {
			t.Fatalf("expected exactly one terminal event, got %d", terminal)
		}
		if state.TurnCount > maxTurns {
			t.Fatalf("turn count %d exceeded ceiling %d", state.TurnCount, maxTurns)
		}
		if responses != state.TurnCount {
			t.Fatalf("%d responses but %d turns", responses, state.TurnCount)
		}
		// user message plus one per turn, nothing removed
		if len(state.Messages) != 1+state.TurnCount {
			t.Fatalf("transcript length %d, want %d", len(state.Messages), 1+state.TurnCount)
		}
		if registry.Len() != 0 {
			t.Fatalf("roster not cleaned up, %d agents remain", registry.Len())
		}
	})
}
