package conversation

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/types"
)

const (
	// Primary and retry sampling temperatures for agent turns.
	generateTemperature = 0.7
	retryTemperature    = 0.8

	// fallbackReply is appended when the model returns blank text twice.
	// An empty turn is worse than a filler turn.
	fallbackReply = "Hey there!"

	emptyRetryNudge = "Please reply with a short, natural message to keep the conversation going."
)

// Generator produces one agent's reply from the transcript, wrapping the
// external model call with an empty-response retry policy.
type Generator struct {
	callers *llm.CallerRegistry
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGenerator creates a Generator. limiter may be nil to disable pacing.
func NewGenerator(callers *llm.CallerRegistry, limiter *rate.Limiter, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		callers: callers,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "generator")),
	}
}

// Generate produces the agent's next reply given the transcript so far.
// A blank reply is retried exactly once with a higher temperature and a
// provider-appropriate steering message; a second blank reply yields the
// fixed fallback string. Transport errors are fatal for the attempt.
func (g *Generator) Generate(ctx context.Context, agent types.Agent, transcript []types.Message) (string, error) {
	caller, err := g.callerFor(agent.AI.Provider)
	if err != nil {
		return "", types.NewError(types.ErrGenerationFailure, "no model caller for agent").
			WithProvider(agent.AI.Provider).WithCause(err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", types.NewError(types.ErrGenerationFailure, "generation cancelled").WithCause(err)
		}
	}

	req := &llm.TextRequest{
		Model:       agent.AI.Model,
		System:      buildSystemPrompt(agent),
		Messages:    transcript,
		Temperature: generateTemperature,
		MaxTokens:   agent.MaxTokens,
	}

	text, err := caller.GenerateText(ctx, req)
	if err != nil {
		return "", types.NewError(types.ErrGenerationFailure, "model call failed").
			WithProvider(agent.AI.Provider).WithCause(err)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	g.logger.Warn("empty model response, retrying once",
		zap.String("agent_id", agent.ID),
		zap.String("provider", agent.AI.Provider),
		zap.String("model", agent.AI.Model),
	)

	retryReq := &llm.TextRequest{
		Model:       agent.AI.Model,
		System:      req.System,
		Messages:    appendNudge(transcript, agent.AI.Provider),
		Temperature: retryTemperature,
		MaxTokens:   agent.MaxTokens,
	}

	text, err = caller.GenerateText(ctx, retryReq)
	if err != nil {
		return "", types.NewError(types.ErrGenerationFailure, "model call failed on retry").
			WithProvider(agent.AI.Provider).WithCause(err)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	g.logger.Warn("empty model response after retry, using fallback",
		zap.String("agent_id", agent.ID),
	)
	return fallbackReply, nil
}

func (g *Generator) callerFor(provider string) (llm.Caller, error) {
	if c, ok := g.callers.Get(provider); ok {
		return c, nil
	}
	return g.callers.Default()
}

// appendNudge adds the empty-retry steering message. Gemini-family models
// ignore trailing system messages, so they get a user-role nudge; every
// other provider gets a system-role nudge.
func appendNudge(transcript []types.Message, provider string) []types.Message {
	role := types.RoleSystem
	if strings.HasPrefix(strings.ToLower(provider), "gemini") ||
		strings.HasPrefix(strings.ToLower(provider), "google") {
		role = types.RoleUser
	}
	out := make([]types.Message, len(transcript), len(transcript)+1)
	copy(out, transcript)
	return append(out, types.NewMessage(role, emptyRetryNudge))
}
