package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/types"
)

func testAgent(provider string) types.Agent {
	return types.Agent{
		ID:     "a1",
		Name:   "Ada",
		Prompt: "You are Ada.",
		AI:     types.AIConfig{Provider: provider, Model: "some-model"},
	}
}

func registryWith(provider string, c llm.Caller) *llm.CallerRegistry {
	r := llm.NewCallerRegistry()
	r.Register(provider, c)
	_ = r.SetDefault(provider)
	return r
}

func TestGenerate_ReturnsFirstReply(t *testing.T) {
	var requests []*llm.TextRequest
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			requests = append(requests, req)
			return "Hello everyone!", nil
		},
	}
	g := NewGenerator(registryWith("openai", caller), nil, zaptest.NewLogger(t))

	transcript := []types.Message{types.NewUserMessage("hi all")}
	reply, err := g.Generate(context.Background(), testAgent("openai"), transcript)
	require.NoError(t, err)
	assert.Equal(t, "Hello everyone!", reply)

	require.Len(t, requests, 1)
	assert.InDelta(t, 0.7, requests[0].Temperature, 1e-9)
	assert.Contains(t, requests[0].System, "You are Ada")
}

func TestGenerate_EmptyReplyRetriesHotter(t *testing.T) {
	var requests []*llm.TextRequest
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			requests = append(requests, req)
			if len(requests) == 1 {
				return "   ", nil
			}
			return "Second time works", nil
		},
	}
	g := NewGenerator(registryWith("openai", caller), nil, zaptest.NewLogger(t))

	transcript := []types.Message{types.NewUserMessage("hi all")}
	reply, err := g.Generate(context.Background(), testAgent("openai"), transcript)
	require.NoError(t, err)
	assert.Equal(t, "Second time works", reply)

	require.Len(t, requests, 2)
	assert.InDelta(t, 0.8, requests[1].Temperature, 1e-9)

	// the retry carries a trailing system-role nudge
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, types.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "keep the conversation going")

	// the original transcript is untouched
	assert.Len(t, transcript, 1)
}

func TestGenerate_GeminiNudgeUsesUserRole(t *testing.T) {
	var requests []*llm.TextRequest
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			requests = append(requests, req)
			if len(requests) == 1 {
				return "", nil
			}
			return "ok", nil
		},
	}
	g := NewGenerator(registryWith("gemini", caller), nil, zaptest.NewLogger(t))

	_, err := g.Generate(context.Background(), testAgent("gemini"),
		[]types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, types.RoleUser, last.Role)
}

func TestGenerate_TwoBlanksYieldFallback(t *testing.T) {
	calls := 0
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			calls++
			return "", nil
		},
	}
	g := NewGenerator(registryWith("openai", caller), nil, zaptest.NewLogger(t))

	reply, err := g.Generate(context.Background(), testAgent("openai"),
		[]types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "Hey there!", reply)
	assert.Equal(t, 2, calls, "exactly one retry")
}

func TestGenerate_TransportErrorIsFatal(t *testing.T) {
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			return "", assert.AnError
		},
	}
	g := NewGenerator(registryWith("openai", caller), nil, zaptest.NewLogger(t))

	_, err := g.Generate(context.Background(), testAgent("openai"),
		[]types.Message{types.NewUserMessage("hi")})
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))
}

func TestGenerate_UnknownProviderUsesDefaultCaller(t *testing.T) {
	caller := llm.CallerFunc{
		TextFn: func(ctx context.Context, req *llm.TextRequest) (string, error) {
			return "from the default", nil
		},
	}
	g := NewGenerator(registryWith("openai", caller), nil, zaptest.NewLogger(t))

	reply, err := g.Generate(context.Background(), testAgent("somebody-else"),
		[]types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "from the default", reply)
}

func TestGenerate_NoCallersAtAll(t *testing.T) {
	g := NewGenerator(llm.NewCallerRegistry(), nil, zaptest.NewLogger(t))

	_, err := g.Generate(context.Background(), testAgent("openai"),
		[]types.Message{types.NewUserMessage("hi")})
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))
}
