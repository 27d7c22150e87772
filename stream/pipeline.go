// Package stream turns a conversation run's event channel into a billed,
// persisted, client-facing stream: it records agent turns, debits
// credits per generated message, injects credit_update events, and
// adapts the result to SSE and WebSocket transports.
package stream

import (
	"context"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/conversation"
	"github.com/parleyhq/parley/credits"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/types"
)

// Charger prices and debits one generated message.
type Charger interface {
	ChargeMessage(ctx context.Context, userID, provider, model, content string,
		md credits.TransactionMetadata) (int64, *credits.DebitResult, error)
}

// Completer marks a conversation finished in durable storage.
type Completer interface {
	MarkComplete(ctx context.Context, conversationID string) error
}

// Deactivator clears a conversation's liveness flag so the run winds
// down on its next loop iteration.
type Deactivator interface {
	Deactivate(ctx context.Context, conversationID string) error
}

// RunContext carries the per-run facts the pipeline needs: who pays,
// and which model each agent speaks through.
type RunContext struct {
	ConversationID string
	UserID         string
	Models         map[string]types.AIConfig // agent id -> model binding
}

// Pipeline post-processes run events. All collaborators are optional;
// a nil collaborator skips that behavior.
type Pipeline struct {
	transcripts conversation.TranscriptStore
	charger     Charger
	completer   Completer
	deactivate  Deactivator
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(transcripts conversation.TranscriptStore, charger Charger,
	completer Completer, deactivate Deactivator, collector *metrics.Collector,
	logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		transcripts: transcripts,
		charger:     charger,
		completer:   completer,
		deactivate:  deactivate,
		metrics:     collector,
		logger:      logger.With(zap.String("component", "stream_pipeline")),
	}
}

// Attach consumes a run's event channel and returns the client stream.
// Each agent_response is persisted and charged; a credit_update event
// follows it. On insufficient balance the pipeline emits a terminal
// error event, asks the run to wind down, and drains the rest silently.
func (p *Pipeline) Attach(ctx context.Context, rc RunContext, in <-chan conversation.Event) <-chan conversation.Event {
	out := make(chan conversation.Event, 16)
	go p.pump(ctx, rc, in, out)
	return out
}

func (p *Pipeline) pump(ctx context.Context, rc RunContext, in <-chan conversation.Event, out chan<- conversation.Event) {
	defer close(out)

	var totalUsed int64
	for ev := range in {
		switch ev.Type {
		case conversation.EventAgentResponse:
			p.persistTurn(ctx, rc, ev)
			if !p.send(ctx, out, ev) {
				p.windDown(ctx, rc, in)
				return
			}
			update, stop := p.charge(ctx, rc, ev, &totalUsed)
			if update != nil {
				if !p.send(ctx, out, *update) {
					p.windDown(ctx, rc, in)
					return
				}
			}
			if stop {
				p.windDown(ctx, rc, in)
				return
			}

		case conversation.EventConversationComplete:
			if p.completer != nil {
				if err := p.completer.MarkComplete(ctx, rc.ConversationID); err != nil {
					p.logger.Warn("mark complete failed",
						zap.String("conversation_id", rc.ConversationID), zap.Error(err))
				}
			}
			ev.Data.TotalCreditsUsed = totalUsed
			if !p.send(ctx, out, ev) {
				p.windDown(ctx, rc, in)
				return
			}

		default:
			if !p.send(ctx, out, ev) {
				p.windDown(ctx, rc, in)
				return
			}
		}
	}
}

func (p *Pipeline) persistTurn(ctx context.Context, rc RunContext, ev conversation.Event) {
	if p.transcripts == nil {
		return
	}
	msg := types.NewAssistantMessage(ev.Data.Content, ev.Data.AgentName, ev.Data.AgentID)
	if ev.Data.Timestamp != 0 {
		msg.Timestamp = ev.Data.Timestamp
	}
	if err := p.transcripts.AppendMessage(ctx, rc.ConversationID, msg); err != nil {
		// A persistence hiccup must not kill a live conversation.
		p.logger.Error("persist turn failed",
			zap.String("conversation_id", rc.ConversationID),
			zap.String("agent_id", ev.Data.AgentID),
			zap.Error(err))
	}
}

// charge debits the user for one generated turn. It returns the
// credit_update event to emit (nil when billing is disabled or failed)
// and whether the stream must stop because the balance ran out.
func (p *Pipeline) charge(ctx context.Context, rc RunContext, ev conversation.Event, totalUsed *int64) (*conversation.Event, bool) {
	if p.charger == nil || rc.UserID == "" {
		return nil, false
	}
	cfg, ok := rc.Models[ev.Data.AgentID]
	if !ok {
		p.logger.Warn("no model binding for agent, skipping charge",
			zap.String("agent_id", ev.Data.AgentID))
		return nil, false
	}

	amount, res, err := p.charger.ChargeMessage(ctx, rc.UserID, cfg.Provider, cfg.Model,
		ev.Data.Content, credits.TransactionMetadata{
			ConversationID: rc.ConversationID,
			AgentID:        ev.Data.AgentID,
			Model:          cfg.Model,
		})
	if err != nil {
		p.logger.Error("charge failed", zap.String("agent_id", ev.Data.AgentID), zap.Error(err))
		return nil, false
	}

	if res.Insufficient {
		stop := conversation.Event{Type: conversation.EventError, Data: conversation.EventData{
			Error:            "insufficient credits to continue the conversation",
			ConversationID:   rc.ConversationID,
			RemainingCredits: res.Balance,
			TotalCreditsUsed: *totalUsed,
		}}
		return &stop, true
	}

	*totalUsed += amount
	update := conversation.Event{Type: conversation.EventCreditUpdate, Data: conversation.EventData{
		AgentID:          ev.Data.AgentID,
		CreditsUsed:      amount,
		RemainingCredits: res.Balance,
		TotalCreditsUsed: *totalUsed,
	}}
	return &update, false
}

// windDown clears the liveness flag and drains the run channel so the
// executor observes the stop and releases its roster.
func (p *Pipeline) windDown(ctx context.Context, rc RunContext, in <-chan conversation.Event) {
	if p.deactivate != nil {
		if err := p.deactivate.Deactivate(context.WithoutCancel(ctx), rc.ConversationID); err != nil {
			p.logger.Warn("deactivate failed",
				zap.String("conversation_id", rc.ConversationID), zap.Error(err))
		}
	}
	for range in {
	}
}

func (p *Pipeline) send(ctx context.Context, out chan<- conversation.Event, ev conversation.Event) bool {
	if p.metrics != nil {
		p.metrics.EventEmitted(string(ev.Type))
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
