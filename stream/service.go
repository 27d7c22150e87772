package stream

import (
	"context"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/conversation"
	"github.com/parleyhq/parley/types"
)

// Starter launches a conversation run and returns its raw event stream.
type Starter interface {
	Start(ctx context.Context, req conversation.StartRequest) (<-chan conversation.Event, error)
}

// Streamer is the client-facing entry point: start a run and get the
// billed, persisted event stream.
type Streamer interface {
	Stream(ctx context.Context, req conversation.StartRequest) (<-chan conversation.Event, error)
}

// Service composes the run manager with the billing pipeline.
type Service struct {
	starter  Starter
	pipeline *Pipeline
	agents   conversation.AgentSource
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(starter Starter, pipeline *Pipeline, agents conversation.AgentSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{starter: starter, pipeline: pipeline, agents: agents, logger: logger}
}

// Stream starts the run and attaches the pipeline to its output.
func (s *Service) Stream(ctx context.Context, req conversation.StartRequest) (<-chan conversation.Event, error) {
	models := map[string]types.AIConfig{}
	if s.agents != nil {
		agents, err := s.agents.ResolveAgents(ctx, req.UserID, req.AgentIDs)
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			models[a.ID] = a.AI
		}
	}

	in, err := s.starter.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	rc := RunContext{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Models:         models,
	}
	return s.pipeline.Attach(ctx, rc, in), nil
}
