package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/types"
)

type stubAgentSource struct {
	agents map[string]types.Agent
}

func (s *stubAgentSource) ResolveAgents(ctx context.Context, userID string, agentIDs []string) ([]types.Agent, error) {
	out := make([]types.Agent, 0, len(agentIDs))
	for _, id := range agentIDs {
		a, ok := s.agents[id]
		if !ok {
			return nil, types.NewError(types.ErrAgentNotFound, "agent "+id+" not found")
		}
		out = append(out, a)
	}
	return out, nil
}

type memTranscripts struct {
	mu       sync.Mutex
	appended map[string][]types.Message
}

func newMemTranscripts() *memTranscripts {
	return &memTranscripts{appended: map[string][]types.Message{}}
}

func (m *memTranscripts) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended[conversationID] = append(m.appended[conversationID], msg)
	return nil
}

func (m *memTranscripts) LoadTranscript(ctx context.Context, conversationID string) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.appended[conversationID]...), nil
}

type memActivity struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newMemActivity() *memActivity { return &memActivity{flags: map[string]bool{}} }

func (m *memActivity) Active(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[id]
}

func (m *memActivity) SetActive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[id] = true
	return nil
}

func (m *memActivity) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, id)
	return nil
}

func managerCallers(t *testing.T) *llm.CallerRegistry {
	t.Helper()
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			return "a reply", nil
		},
		StructuredFn: func(ctx context.Context, req *llm.StructuredRequest, out any) error {
			switch v := out.(type) {
			case *AgentSelection:
				v.AgentID = "a1"
			case *TerminationDecision:
				// keep going until the ceiling
			}
			return nil
		},
	}
	callers := llm.NewCallerRegistry()
	callers.Register("openai", caller)
	require.NoError(t, callers.SetDefault("openai"))
	return callers
}

func testAgents() *stubAgentSource {
	return &stubAgentSource{agents: map[string]types.Agent{
		"a1": {ID: "a1", Name: "Ada", AI: types.AIConfig{Provider: "openai", Model: "m"}},
		"a2": {ID: "a2", Name: "Bo", AI: types.AIConfig{Provider: "openai", Model: "m"}},
	}}
}

func startRequest() StartRequest {
	return StartRequest{
		ConversationID: "c1",
		UserID:         "u1",
		AgentIDs:       []string{"a1", "a2"},
		InitialMessage: "hello agents",
		MaxTurns:       1,
	}
}

func TestManagerStart_Validation(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), testAgents(), nil, nil,
		managerCallers(t), nil, zaptest.NewLogger(t))

	cases := []struct {
		name string
		req  StartRequest
	}{
		{"no agents", StartRequest{ConversationID: "c1", InitialMessage: "hi"}},
		{"empty message", StartRequest{ConversationID: "c1", AgentIDs: []string{"a1"}}},
		{"no conversation id", StartRequest{AgentIDs: []string{"a1"}, InitialMessage: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Start(context.Background(), tc.req)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
		})
	}
}

func TestManagerStart_UnknownAgent(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), testAgents(), nil, nil,
		managerCallers(t), nil, zaptest.NewLogger(t))

	req := startRequest()
	req.AgentIDs = []string{"a1", "ghost"}
	_, err := m.Start(context.Background(), req)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentNotFound))
}

func TestManagerStart_RunsToCompletion(t *testing.T) {
	transcripts := newMemTranscripts()
	activity := newMemActivity()
	m := NewManager(DefaultManagerConfig(), testAgents(), transcripts, activity,
		managerCallers(t), nil, zaptest.NewLogger(t))

	events, err := m.Start(context.Background(), startRequest())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, EventConversationComplete, got[len(got)-1].Type)

	// the initial user message was persisted before the run began
	stored, err := transcripts.LoadTranscript(context.Background(), "c1")
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	assert.Equal(t, types.RoleUser, stored[0].Role)
	assert.Equal(t, "hello agents", stored[0].Content)

	// the activity flag is cleared once the stream closes
	assert.Eventually(t, func() bool {
		return !activity.Active(context.Background(), "c1")
	}, time.Second, 10*time.Millisecond)
}

func TestManagerStart_ResumesExistingTranscript(t *testing.T) {
	transcripts := newMemTranscripts()
	require.NoError(t, transcripts.AppendMessage(context.Background(), "c1",
		types.NewAssistantMessage("earlier turn", "Ada", "a1")))

	m := NewManager(DefaultManagerConfig(), testAgents(), transcripts, nil,
		managerCallers(t), nil, zaptest.NewLogger(t))

	events, err := m.Start(context.Background(), startRequest())
	require.NoError(t, err)
	for range events {
	}

	stored, _ := transcripts.LoadTranscript(context.Background(), "c1")
	// prior turn, then the new user message appended after it
	require.GreaterOrEqual(t, len(stored), 2)
	assert.Equal(t, "earlier turn", stored[0].Content)
	assert.Equal(t, "hello agents", stored[1].Content)
}

func TestManagerStart_ReleasesConcurrencySlot(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.MaxConcurrentRuns = 1
	m := NewManager(cfg, testAgents(), nil, nil,
		managerCallers(t), nil, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		events, err := m.Start(context.Background(), startRequest())
		require.NoError(t, err)
		for range events {
		}
	}
}

func TestManagerStart_DefaultMaxTurnsApplied(t *testing.T) {
	transcripts := newMemTranscripts()
	cfg := DefaultManagerConfig()
	cfg.DefaultMaxTurns = 1
	m := NewManager(cfg, testAgents(), transcripts, nil,
		managerCallers(t), nil, zaptest.NewLogger(t))

	req := startRequest()
	req.ConversationID = "c9"
	req.MaxTurns = 0
	events, err := m.Start(context.Background(), req)
	require.NoError(t, err)

	responses := 0
	for ev := range events {
		if ev.Type == EventAgentResponse {
			responses++
		}
	}
	assert.Equal(t, 1, responses)
}
