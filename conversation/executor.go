package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/types"
)

// RunPhase names the executor's position in the turn loop.
type RunPhase int

const (
	PhaseInitializing RunPhase = iota
	PhaseSelectingSpeaker
	PhaseGeneratingTurn
	PhaseEvaluatingTermination
	PhaseCompleted
)

func (p RunPhase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseSelectingSpeaker:
		return "selecting_speaker"
	case PhaseGeneratingTurn:
		return "generating_turn"
	case PhaseEvaluatingTermination:
		return "evaluating_termination"
	case PhaseCompleted:
		return "completed"
	}
	return "unknown"
}

// Liveness reports whether a conversation is still wanted by its consumer.
// The executor checks it at every iteration boundary and exits silently
// when it flips false.
type Liveness interface {
	Active(ctx context.Context, conversationID string) bool
}

const (
	// Progressive pre-generation backoff: min(turnCount*step, cap) + base.
	// Longer conversations pause longer between turns to stay under
	// provider rate limits.
	backoffStep = 200 * time.Millisecond
	backoffCap  = 2 * time.Second
	backoffBase = 1 * time.Second
)

// Executor drives one conversation run as an explicit state machine:
// select a speaker, generate that speaker's turns, evaluate termination,
// loop. Output is a lazily consumed event channel; state mutation and
// event emission interleave turn by turn.
type Executor struct {
	registry   *AgentRegistry
	selector   *Selector
	generator  *Generator
	terminator *Terminator
	liveness   Liveness
	metrics    *metrics.Collector
	logger     *zap.Logger

	// sleep is injectable so tests do not wait out the backoff schedule.
	// It returns false when the wait was cancelled.
	sleep func(ctx context.Context, d time.Duration) bool
}

// ExecutorOption configures optional executor collaborators.
type ExecutorOption func(*Executor)

// WithLiveness attaches a consumer-liveness check.
func WithLiveness(l Liveness) ExecutorOption {
	return func(e *Executor) { e.liveness = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = c }
}

// WithSleep overrides the backoff sleep. Intended for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) bool) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates an Executor over a run-scoped registry and the
// three decision components.
func NewExecutor(registry *AgentRegistry, selector *Selector, generator *Generator,
	terminator *Terminator, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry:   registry,
		selector:   selector,
		generator:  generator,
		terminator: terminator,
		logger:     logger.With(zap.String("component", "executor")),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the conversation loop and returns its event stream. The
// channel is closed after the terminal event (or after a silent
// consumer-gone exit). The caller owns state for the duration of the run
// and must not touch it until the channel closes.
func (e *Executor) Run(ctx context.Context, state *State) <-chan Event {
	out := make(chan Event, 16)
	go e.run(ctx, state, out)
	return out
}

func (e *Executor) run(ctx context.Context, state *State, out chan<- Event) {
	defer close(out)

	// Roster cleanup runs on every exit path, exactly once.
	defer func() {
		for _, a := range state.Agents {
			e.registry.Unregister(a.ID)
		}
	}()

	tracer := otel.Tracer("parleyhq/parley/conversation")
	ctx, span := tracer.Start(ctx, "conversation.run",
		trace.WithAttributes(
			attribute.String("conversation.id", state.ConversationID),
			attribute.Int("conversation.max_turns", state.MaxTurns),
			attribute.Int("conversation.roster_size", len(state.Agents)),
		))
	defer span.End()

	if e.metrics != nil {
		e.metrics.RunStarted()
	}

	// A broken decision component must never wedge the loop: any panic
	// surfaces as a terminal error event.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conversation run panicked",
				zap.String("conversation_id", state.ConversationID),
				zap.Any("panic", r),
			)
			state.Complete = true
			e.emit(ctx, out, errorEvent(fmt.Sprintf("internal error: %v", r)))
			e.finish(state, "panic")
		}
	}()

	firstTurn := true
	phase := PhaseInitializing
	transition := func(next RunPhase) {
		e.logger.Debug("phase transition",
			zap.String("conversation_id", state.ConversationID),
			zap.Stringer("from", phase),
			zap.Stringer("to", next),
		)
		phase = next
	}

	for {
		// Iteration boundary: the consumer's absence is authoritative.
		if !e.alive(ctx, state) {
			e.logger.Info("consumer gone, exiting silently",
				zap.String("conversation_id", state.ConversationID))
			e.finish(state, "consumer_gone")
			return
		}

		if state.TurnCount >= state.MaxTurns {
			transition(PhaseCompleted)
			state.Complete = true
			e.emit(ctx, out, completeEvent(state.ConversationID, "Maximum turns reached"))
			e.finish(state, "max_turns")
			return
		}

		transition(PhaseSelectingSpeaker)
		selection := e.selector.SelectNext(ctx, state)
		if selection == nil || selection.Turns == 0 {
			// Pause: the supervisor wants the user to speak next. The
			// run ends, but the conversation can be resumed.
			transition(PhaseCompleted)
			state.Complete = true
			e.emit(ctx, out, pausedEvent(state.ConversationID, "Waiting for the user"))
			e.finish(state, "paused")
			return
		}

		agent, err := e.registry.Get(selection.AgentID)
		if err != nil {
			transition(PhaseCompleted)
			state.Complete = true
			e.emit(ctx, out, errorEvent(err.Error()))
			e.finish(state, "agent_not_found")
			return
		}

		e.logger.Debug("speaker selected",
			zap.String("conversation_id", state.ConversationID),
			zap.String("agent_id", selection.AgentID),
			zap.Int("turns", selection.Turns),
			zap.String("reasoning", selection.Reasoning),
		)

		transition(PhaseGeneratingTurn)
		for i := 0; i < selection.Turns && state.TurnCount < state.MaxTurns; i++ {
			if !e.alive(ctx, state) {
				e.finish(state, "consumer_gone")
				return
			}

			if !firstTurn {
				if !e.sleep(ctx, turnBackoff(state.TurnCount)) {
					e.finish(state, "cancelled")
					return
				}
			}
			firstTurn = false

			if !e.emit(ctx, out, statusEvent(fmt.Sprintf("%s is thinking...", agent.Name))) {
				e.finish(state, "consumer_gone")
				return
			}

			turnCtx, turnSpan := tracer.Start(ctx, "conversation.turn",
				trace.WithAttributes(
					attribute.String("agent.id", agent.ID),
					attribute.Int("turn", state.TurnCount+1),
				))
			start := time.Now()
			reply, err := e.generator.Generate(turnCtx, agent, state.Messages)
			turnSpan.End()

			if e.metrics != nil {
				e.metrics.TurnObserved(agent.AI.Provider, agent.AI.Model, err == nil, time.Since(start))
			}
			if err != nil {
				// One bad generation aborts the run; a corrupted turn is
				// never silently elided from the transcript.
				transition(PhaseCompleted)
				state.Complete = true
				e.emit(ctx, out, errorEvent(err.Error()))
				e.finish(state, "generation_failure")
				return
			}

			state.Append(types.NewAssistantMessage(reply, agent.Name, agent.ID))
			state.TurnCount++
			state.CurrentSpeaker = agent.ID

			if !e.emit(ctx, out, agentResponseEvent(agent.ID, agent.Name, reply)) {
				e.finish(state, "consumer_gone")
				return
			}
		}

		if len(state.Messages) >= minMessagesForTermination {
			transition(PhaseEvaluatingTermination)
			decision := e.terminator.ShouldStop(ctx, state)
			if decision.ShouldTerminate {
				transition(PhaseCompleted)
				state.Complete = true
				e.emit(ctx, out, completeEvent(state.ConversationID, decision.Reason))
				e.finish(state, "natural")
				return
			}
		}
	}
}

// emit delivers an event unless the consumer's context is gone.
func (e *Executor) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Executor) alive(ctx context.Context, state *State) bool {
	if ctx.Err() != nil {
		return false
	}
	if e.liveness == nil {
		return true
	}
	return e.liveness.Active(ctx, state.ConversationID)
}

func (e *Executor) finish(state *State, reason string) {
	if e.metrics != nil {
		e.metrics.RunFinished(reason)
	}
	e.logger.Info("conversation run finished",
		zap.String("conversation_id", state.ConversationID),
		zap.String("reason", reason),
		zap.Int("turns", state.TurnCount),
	)
}

// turnBackoff is the pre-generation delay for the given turn count.
func turnBackoff(turnCount int) time.Duration {
	d := time.Duration(turnCount) * backoffStep
	if d > backoffCap {
		d = backoffCap
	}
	return d + backoffBase
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
