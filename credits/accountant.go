// Package credits implements the cost accounting protocol: convert
// message and token volume into a credit cost via a pricing lookup, and
// atomically deduct it from a user balance. Insufficient balance is a
// first-class outcome, never an exception.
package credits

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/metrics"
)

// ErrPriceNotFound signals that neither an exact nor a default pricing
// row exists for a provider.
var ErrPriceNotFound = errors.New("price not found")

// ModelPrice is one pricing table row.
type ModelPrice struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	CostPerMessage  float64 `json:"cost_per_message"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens"`
	IsDefaultModel  bool    `json:"is_default_model"`
	Active          bool    `json:"active"`
}

// PriceStore is the pricing table collaborator.
type PriceStore interface {
	// LookupPrice returns the active row for an exact (provider, model)
	// pair, or ErrPriceNotFound.
	LookupPrice(ctx context.Context, provider, model string) (*ModelPrice, error)
	// DefaultPrice returns the provider's row flagged as the default
	// model, or ErrPriceNotFound.
	DefaultPrice(ctx context.Context, provider string) (*ModelPrice, error)
}

// TransactionMetadata ties a debit to its conversation context.
type TransactionMetadata struct {
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	Model          string `json:"model,omitempty"`
}

// Transaction is one recorded balance change. Amount is negative for usage.
type Transaction struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Amount       int64               `json:"amount"`
	Reason       string              `json:"reason"`
	Metadata     TransactionMetadata `json:"metadata"`
	BalanceAfter int64               `json:"balance_after"`
	CreatedAt    time.Time           `json:"created_at"`
}

// DebitResult is the outcome of a debit attempt. When Insufficient is
// true no balance was changed and Transaction is nil.
type DebitResult struct {
	Transaction  *Transaction
	Balance      int64
	Insufficient bool
}

// BalanceStore is the balance storage collaborator. Debit must apply the
// read-check-write-record sequence atomically: concurrent debits for one
// user must not race past each other, and the balance never goes below
// zero.
type BalanceStore interface {
	Debit(ctx context.Context, userID string, amount int64, reason string, md TransactionMetadata) (*DebitResult, error)
}

// approxInputChars stands in for the true prompt size when charging a
// mid-loop turn; the real prompt length is not tracked there.
const approxInputChars = 100

// Accountant prices generated messages and debits user balances.
type Accountant struct {
	prices    PriceStore
	balances  BalanceStore
	estimator TokenEstimator
	metrics   *metrics.Collector // optional
	logger    *zap.Logger
}

// NewAccountant creates an Accountant. estimator defaults to
// CharEstimator; collector may be nil.
func NewAccountant(prices PriceStore, balances BalanceStore, estimator TokenEstimator,
	collector *metrics.Collector, logger *zap.Logger) *Accountant {
	if estimator == nil {
		estimator = CharEstimator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accountant{
		prices:    prices,
		balances:  balances,
		estimator: estimator,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "accountant")),
	}
}

// PriceOf computes the credit cost of messageCount messages carrying
// tokenCount tokens for the given model. Exact (provider, model) pricing
// wins; otherwise the provider's default-model row applies, relabeled
// with the requested model name. Token cost accrues per full or partial
// 1000-token bucket.
func (a *Accountant) PriceOf(ctx context.Context, provider, model string, messageCount, tokenCount int) (int64, error) {
	price, err := a.resolvePrice(ctx, provider, model)
	if err != nil {
		return 0, err
	}
	buckets := (tokenCount + 999) / 1000
	cost := float64(messageCount)*price.CostPerMessage + float64(buckets)*price.CostPer1KTokens
	return int64(math.Ceil(cost)), nil
}

// ChargeMessage prices one generated assistant message (content plus the
// approximate input volume) and debits the user. The returned result
// reports insufficient balance explicitly instead of erroring.
func (a *Accountant) ChargeMessage(ctx context.Context, userID, provider, model, content string, md TransactionMetadata) (int64, *DebitResult, error) {
	tokens := a.estimator.EstimateTokens(content) + (approxInputChars+3)/4
	amount, err := a.PriceOf(ctx, provider, model, 1, tokens)
	if err != nil {
		return 0, nil, err
	}

	res, err := a.balances.Debit(ctx, userID, amount, "agent message", md)
	if err != nil {
		return 0, nil, err
	}

	if res.Insufficient {
		if a.metrics != nil {
			a.metrics.DebitRefused()
		}
		a.logger.Warn("debit refused, balance too low",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.Int64("balance", res.Balance),
		)
		return amount, res, nil
	}

	if a.metrics != nil {
		a.metrics.CreditsDebited(provider, model, amount)
	}
	a.logger.Debug("credits debited",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance_after", res.Balance),
	)
	return amount, res, nil
}

func (a *Accountant) resolvePrice(ctx context.Context, provider, model string) (*ModelPrice, error) {
	price, err := a.prices.LookupPrice(ctx, provider, model)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, ErrPriceNotFound) {
		return nil, err
	}

	def, err := a.prices.DefaultPrice(ctx, provider)
	if err != nil {
		return nil, err
	}
	relabeled := *def
	relabeled.Model = model
	return &relabeled, nil
}
