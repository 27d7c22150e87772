package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/credits"
	"github.com/parleyhq/parley/types"
)

// Store is the gorm-backed persistence facade. It implements the agent,
// transcript, pricing, and balance collaborator interfaces of the
// conversation and credits packages.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps a gorm handle.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}
}

// ResolveAgents loads the given agent records, enforcing that each one
// belongs to userID. Every requested ID must resolve.
func (s *Store) ResolveAgents(ctx context.Context, userID string, agentIDs []string) ([]types.Agent, error) {
	var records []AgentRecord
	q := s.db.WithContext(ctx).Where("id IN ?", agentIDs)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	byID := make(map[string]AgentRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	agents := make([]types.Agent, 0, len(agentIDs))
	for _, id := range agentIDs {
		r, ok := byID[id]
		if !ok {
			return nil, types.NewError(types.ErrAgentNotFound, fmt.Sprintf("agent %s not found", id))
		}
		agent, err := recordToAgent(r)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// SaveAgent upserts an agent record.
func (s *Store) SaveAgent(ctx context.Context, userID string, agent types.Agent) error {
	style, err := json.Marshal(agent.Style)
	if err != nil {
		return fmt.Errorf("encode chat style: %w", err)
	}
	rec := AgentRecord{
		ID:              agent.ID,
		UserID:          userID,
		Name:            agent.Name,
		Prompt:          agent.Prompt,
		Characteristics: agent.Characteristics,
		Provider:        agent.AI.Provider,
		Model:           agent.AI.Model,
		CredentialRef:   agent.AI.CredentialRef,
		Style:           string(style),
		MaxTokens:       agent.MaxTokens,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func recordToAgent(r AgentRecord) (types.Agent, error) {
	var style types.ChatStyle
	if r.Style != "" {
		if err := json.Unmarshal([]byte(r.Style), &style); err != nil {
			return types.Agent{}, fmt.Errorf("decode chat style for agent %s: %w", r.ID, err)
		}
	}
	return types.Agent{
		ID:              r.ID,
		Name:            r.Name,
		Prompt:          r.Prompt,
		Characteristics: r.Characteristics,
		AI: types.AIConfig{
			Provider:      r.Provider,
			Model:         r.Model,
			CredentialRef: r.CredentialRef,
		},
		Style:     style.Normalize(),
		MaxTokens: r.MaxTokens,
	}, nil
}

// AppendMessage appends one transcript entry. The sequence number is
// assigned inside a transaction so concurrent appends cannot collide.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		row := tx.Model(&MessageRecord{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(seq), 0)").
			Row()
		if err := row.Scan(&maxSeq); err != nil {
			return fmt.Errorf("read max seq: %w", err)
		}

		rec := MessageRecord{
			ConversationID: conversationID,
			Seq:            maxSeq + 1,
			Role:           string(msg.Role),
			Content:        msg.Content,
			Speaker:        msg.Speaker,
			AgentID:        msg.AgentID,
			Timestamp:      msg.Timestamp,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("append message: %w", err)
		}

		conv := ConversationRecord{ID: conversationID}
		if err := tx.Where(conv).FirstOrCreate(&conv).Error; err != nil {
			return fmt.Errorf("ensure conversation: %w", err)
		}
		if msg.Role == types.RoleAssistant {
			if err := tx.Model(&ConversationRecord{}).
				Where("id = ?", conversationID).
				Update("turn_count", gorm.Expr("turn_count + 1")).Error; err != nil {
				return fmt.Errorf("bump turn count: %w", err)
			}
		}
		return nil
	})
}

// LoadTranscript returns the full transcript in append order.
func (s *Store) LoadTranscript(ctx context.Context, conversationID string) ([]types.Message, error) {
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	msgs := make([]types.Message, len(records))
	for i, r := range records {
		msgs[i] = types.Message{
			Role:      types.Role(r.Role),
			Content:   r.Content,
			Speaker:   r.Speaker,
			AgentID:   r.AgentID,
			Timestamp: r.Timestamp,
		}
	}
	return msgs, nil
}

// MarkComplete flags a conversation as finished.
func (s *Store) MarkComplete(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Model(&ConversationRecord{}).
		Where("id = ?", conversationID).
		Update("complete", true).Error
}

// LookupPrice returns the active pricing row for an exact
// (provider, model) pair.
func (s *Store) LookupPrice(ctx context.Context, provider, model string) (*credits.ModelPrice, error) {
	var rec ModelPriceRecord
	err := s.db.WithContext(ctx).
		Where("provider = ? AND model = ? AND active", provider, model).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, credits.ErrPriceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup price: %w", err)
	}
	return priceFromRecord(rec), nil
}

// DefaultPrice returns the provider's default-model pricing row.
func (s *Store) DefaultPrice(ctx context.Context, provider string) (*credits.ModelPrice, error) {
	var rec ModelPriceRecord
	err := s.db.WithContext(ctx).
		Where("provider = ? AND is_default_model AND active", provider).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, credits.ErrPriceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("default price: %w", err)
	}
	return priceFromRecord(rec), nil
}

func priceFromRecord(r ModelPriceRecord) *credits.ModelPrice {
	return &credits.ModelPrice{
		Provider:        r.Provider,
		Model:           r.Model,
		CostPerMessage:  r.CostPerMessage,
		CostPer1KTokens: r.CostPer1KTokens,
		IsDefaultModel:  r.IsDefaultModel,
		Active:          r.Active,
	}
}

// SavePrice upserts a pricing row.
func (s *Store) SavePrice(ctx context.Context, p credits.ModelPrice) error {
	var rec ModelPriceRecord
	err := s.db.WithContext(ctx).
		Where("provider = ? AND model = ?", p.Provider, p.Model).
		First(&rec).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup existing price: %w", err)
	}
	rec.Provider = p.Provider
	rec.Model = p.Model
	rec.CostPerMessage = p.CostPerMessage
	rec.CostPer1KTokens = p.CostPer1KTokens
	rec.IsDefaultModel = p.IsDefaultModel
	rec.Active = p.Active
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Balance returns a user's current credit balance; unknown users read
// as zero.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var rec UserBalanceRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return rec.Balance, nil
}

// Credit adds amount to a user's balance, creating the row if needed,
// and records the transaction.
func (s *Store) Credit(ctx context.Context, userID string, amount int64, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := UserBalanceRecord{UserID: userID}
		if err := tx.Where(rec).FirstOrCreate(&rec).Error; err != nil {
			return fmt.Errorf("ensure balance row: %w", err)
		}
		if err := tx.Model(&UserBalanceRecord{}).
			Where("user_id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		var after UserBalanceRecord
		if err := tx.Where("user_id = ?", userID).First(&after).Error; err != nil {
			return fmt.Errorf("read balance after credit: %w", err)
		}
		txRec := CreditTransactionRecord{
			ID:           uuid.NewString(),
			UserID:       userID,
			Amount:       amount,
			Reason:       reason,
			BalanceAfter: after.Balance,
			CreatedAt:    time.Now(),
		}
		return tx.Create(&txRec).Error
	})
}

// Debit atomically subtracts amount from the user's balance, refusing
// the debit outright when the balance would go below zero. The guard is
// a conditional UPDATE so concurrent debits serialize on the row.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, reason string,
	md credits.TransactionMetadata) (*credits.DebitResult, error) {
	if amount < 0 {
		return nil, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}

	var result *credits.DebitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&UserBalanceRecord{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("debit balance: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			var rec UserBalanceRecord
			err := tx.Where("user_id = ?", userID).First(&rec).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("read balance: %w", err)
			}
			result = &credits.DebitResult{Balance: rec.Balance, Insufficient: true}
			return nil
		}

		var after UserBalanceRecord
		if err := tx.Where("user_id = ?", userID).First(&after).Error; err != nil {
			return fmt.Errorf("read balance after debit: %w", err)
		}

		txRec := CreditTransactionRecord{
			ID:             uuid.NewString(),
			UserID:         userID,
			Amount:         -amount,
			Reason:         reason,
			ConversationID: md.ConversationID,
			AgentID:        md.AgentID,
			Model:          md.Model,
			BalanceAfter:   after.Balance,
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(&txRec).Error; err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		result = &credits.DebitResult{
			Transaction: &credits.Transaction{
				ID:           txRec.ID,
				UserID:       userID,
				Amount:       -amount,
				Reason:       reason,
				Metadata:     md,
				BalanceAfter: after.Balance,
				CreatedAt:    txRec.CreatedAt,
			},
			Balance: after.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Transactions returns a user's transaction history, newest first.
func (s *Store) Transactions(ctx context.Context, userID string, limit int) ([]credits.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []CreditTransactionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	txs := make([]credits.Transaction, len(records))
	for i, r := range records {
		txs[i] = credits.Transaction{
			ID:     r.ID,
			UserID: r.UserID,
			Amount: r.Amount,
			Reason: r.Reason,
			Metadata: credits.TransactionMetadata{
				ConversationID: r.ConversationID,
				AgentID:        r.AgentID,
				Model:          r.Model,
			},
			BalanceAfter: r.BalanceAfter,
			CreatedAt:    r.CreatedAt,
		}
	}
	return txs, nil
}
