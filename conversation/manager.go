package conversation

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/types"
)

// AgentSource resolves durable agent identifiers to agent configurations
// for a given user. Ownership validation happens behind this interface.
type AgentSource interface {
	ResolveAgents(ctx context.Context, userID string, agentIDs []string) ([]types.Agent, error)
}

// TranscriptStore is the durable transcript collaborator: append one
// message, or read the whole transcript when resuming.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, conversationID string, msg types.Message) error
	LoadTranscript(ctx context.Context, conversationID string) ([]types.Message, error)
}

// ActivityStore tracks which conversations still have a live consumer.
type ActivityStore interface {
	Liveness
	SetActive(ctx context.Context, conversationID string) error
	Deactivate(ctx context.Context, conversationID string) error
}

// StartRequest describes one conversation run.
type StartRequest struct {
	ConversationID string   `json:"conversation_id"`
	UserID         string   `json:"user_id,omitempty"`
	AgentIDs       []string `json:"agent_ids"`
	InitialMessage string   `json:"initial_message"`
	MaxTurns       int      `json:"max_turns,omitempty"`
}

// ManagerConfig configures run defaults and process-wide limits.
type ManagerConfig struct {
	SupervisorProvider string
	SupervisorModel    string
	DefaultMaxTurns    int
	MaxConcurrentRuns  int64
	GenerateRate       rate.Limit // model calls per second across runs; 0 disables pacing
}

// DefaultManagerConfig returns the stock limits.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SupervisorModel:   "gpt-4o-mini",
		DefaultMaxTurns:   10,
		MaxConcurrentRuns: 32,
	}
}

// Manager is the entry point for conversation runs: it resolves the
// roster, resumes any existing transcript, builds a run-scoped registry
// and executor, and caps how many runs execute concurrently.
type Manager struct {
	cfg         ManagerConfig
	agents      AgentSource
	transcripts TranscriptStore // optional
	activity    ActivityStore   // optional
	callers     *llm.CallerRegistry
	metrics     *metrics.Collector // optional
	limiter     *rate.Limiter      // optional, shared across runs
	sem         *semaphore.Weighted
	logger      *zap.Logger
}

// NewManager creates a Manager. transcripts, activity, and collector may
// be nil; the corresponding behavior is skipped.
func NewManager(cfg ManagerConfig, agents AgentSource, transcripts TranscriptStore,
	activity ActivityStore, callers *llm.CallerRegistry, collector *metrics.Collector,
	logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxTurns <= 0 {
		cfg.DefaultMaxTurns = DefaultManagerConfig().DefaultMaxTurns
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = DefaultManagerConfig().MaxConcurrentRuns
	}
	var limiter *rate.Limiter
	if cfg.GenerateRate > 0 {
		limiter = rate.NewLimiter(cfg.GenerateRate, 1)
	}
	return &Manager{
		cfg:         cfg,
		agents:      agents,
		transcripts: transcripts,
		activity:    activity,
		callers:     callers,
		metrics:     collector,
		limiter:     limiter,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		logger:      logger.With(zap.String("component", "manager")),
	}
}

// Start validates the request, builds the run, and returns its event
// stream. The returned channel closes after the terminal event; the run's
// concurrency slot and activity flag are released when it does.
func (m *Manager) Start(ctx context.Context, req StartRequest) (<-chan Event, error) {
	if len(req.AgentIDs) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "at least one agent id is required")
	}
	if req.InitialMessage == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "initial message must not be empty")
	}
	if req.ConversationID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "conversation id is required")
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = m.cfg.DefaultMaxTurns
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	run, err := m.buildRun(ctx, req, maxTurns)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}

	events := run.executor.Run(ctx, run.state)

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer m.sem.Release(1)
		defer func() {
			if m.activity != nil {
				// Deactivation must not inherit a cancelled request context.
				_ = m.activity.Deactivate(context.WithoutCancel(ctx), req.ConversationID)
			}
		}()
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				// Drain the executor so it observes cancellation and
				// runs its cleanup.
				for range events {
				}
				return
			}
		}
	}()
	return out, nil
}

type preparedRun struct {
	state    *State
	executor *Executor
}

func (m *Manager) buildRun(ctx context.Context, req StartRequest, maxTurns int) (*preparedRun, error) {
	agents, err := m.agents.ResolveAgents(ctx, req.UserID, req.AgentIDs)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrAgentNotFound, "no agents resolved for request")
	}

	registry := NewAgentRegistry()
	roster := make([]RosterAgent, 0, len(agents))
	for _, a := range agents {
		registry.Register(a)
		roster = append(roster, RosterAgent{
			ID:              a.ID,
			Name:            a.Name,
			Characteristics: a.Characteristics,
		})
	}

	state := &State{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Agents:         roster,
		MaxTurns:       maxTurns,
	}

	// Resume on top of whatever transcript already exists.
	if m.transcripts != nil {
		existing, err := m.transcripts.LoadTranscript(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		state.Messages = existing
	}

	userMsg := types.NewUserMessage(req.InitialMessage)
	state.Append(userMsg)
	if m.transcripts != nil {
		if err := m.transcripts.AppendMessage(ctx, req.ConversationID, userMsg); err != nil {
			return nil, err
		}
	}

	supervisor, err := m.supervisorCaller()
	if err != nil {
		return nil, err
	}

	if m.activity != nil {
		if err := m.activity.SetActive(ctx, req.ConversationID); err != nil {
			return nil, err
		}
	}

	selector := NewSelector(supervisor, m.cfg.SupervisorModel, m.logger)
	generator := NewGenerator(m.callers, m.limiter, m.logger)
	terminator := NewTerminator(supervisor, m.cfg.SupervisorModel, m.logger)

	opts := []ExecutorOption{}
	if m.activity != nil {
		opts = append(opts, WithLiveness(m.activity))
	}
	if m.metrics != nil {
		opts = append(opts, WithMetrics(m.metrics))
	}
	executor := NewExecutor(registry, selector, generator, terminator, m.logger, opts...)

	return &preparedRun{state: state, executor: executor}, nil
}

func (m *Manager) supervisorCaller() (llm.Caller, error) {
	if m.cfg.SupervisorProvider != "" {
		if c, ok := m.callers.Get(m.cfg.SupervisorProvider); ok {
			return c, nil
		}
	}
	return m.callers.Default()
}
