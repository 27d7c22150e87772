// Package types provides core types shared across the parley engine.
// This package has ZERO dependencies on other parley packages to avoid
// circular imports. All other packages should import types from here.
package types

import "time"

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents one entry in a conversation transcript.
// The transcript is append-only: the engine never edits or removes a
// message once appended.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Speaker   string `json:"speaker,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Timestamp int64  `json:"timestamp"` // wall clock, milliseconds
}

// NewMessage creates a message with the given role and content,
// stamped with the current wall clock.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message attributed to an agent.
func NewAssistantMessage(content, speaker, agentID string) Message {
	m := NewMessage(RoleAssistant, content)
	m.Speaker = speaker
	m.AgentID = agentID
	return m
}
