// Package store provides the relational persistence layer: agent
// records, conversation transcripts, pricing, and credit balances,
// backed by gorm over postgres, mysql, or sqlite.
package store

import "time"

// AgentRecord is the durable form of a configured agent persona.
type AgentRecord struct {
	ID              string    `gorm:"primaryKey;size:64"`
	UserID          string    `gorm:"index;size:64;not null"`
	Name            string    `gorm:"size:128;not null"`
	Prompt          string    `gorm:"type:text"`
	Characteristics string    `gorm:"type:text"`
	Provider        string    `gorm:"size:32;not null"`
	Model           string    `gorm:"size:64;not null"`
	CredentialRef   string    `gorm:"size:128"`
	Style           string    `gorm:"type:text"` // ChatStyle as JSON
	MaxTokens       int       ``
	CreatedAt       time.Time ``
	UpdatedAt       time.Time ``
}

func (AgentRecord) TableName() string { return "agents" }

// ConversationRecord tracks one conversation's lifecycle.
type ConversationRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"index;size:64"`
	Complete  bool      ``
	TurnCount int       ``
	CreatedAt time.Time ``
	UpdatedAt time.Time ``
}

func (ConversationRecord) TableName() string { return "conversations" }

// MessageRecord is one transcript entry. Rows are append-only; Seq
// orders them within a conversation.
type MessageRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"index:idx_messages_conv_seq,priority:1;size:64;not null"`
	Seq            int       `gorm:"index:idx_messages_conv_seq,priority:2;not null"`
	Role           string    `gorm:"size:16;not null"`
	Content        string    `gorm:"type:text"`
	Speaker        string    `gorm:"size:128"`
	AgentID        string    `gorm:"size:64"`
	Timestamp      int64     `gorm:"not null"` // wall clock, milliseconds
	CreatedAt      time.Time ``
}

func (MessageRecord) TableName() string { return "messages" }

// ModelPriceRecord is one pricing table row.
type ModelPriceRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Provider        string    `gorm:"uniqueIndex:idx_prices_provider_model,priority:1;size:32;not null"`
	Model           string    `gorm:"uniqueIndex:idx_prices_provider_model,priority:2;size:64;not null"`
	CostPerMessage  float64   ``
	CostPer1KTokens float64   ``
	IsDefaultModel  bool      ``
	Active          bool      `gorm:"default:true"`
	CreatedAt       time.Time ``
	UpdatedAt       time.Time ``
}

func (ModelPriceRecord) TableName() string { return "model_prices" }

// UserBalanceRecord holds one user's credit balance. Balance never goes
// below zero; debits are guarded at the SQL level.
type UserBalanceRecord struct {
	UserID    string    `gorm:"primaryKey;size:64"`
	Balance   int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time ``
}

func (UserBalanceRecord) TableName() string { return "user_balances" }

// CreditTransactionRecord is one recorded balance change.
type CreditTransactionRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	UserID         string    `gorm:"index;size:64;not null"`
	Amount         int64     `gorm:"not null"` // negative for usage
	Reason         string    `gorm:"size:128"`
	ConversationID string    `gorm:"index;size:64"`
	AgentID        string    `gorm:"size:64"`
	Model          string    `gorm:"size:64"`
	BalanceAfter   int64     ``
	CreatedAt      time.Time ``
}

func (CreditTransactionRecord) TableName() string { return "credit_transactions" }
