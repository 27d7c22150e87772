package conversation

import "github.com/parleyhq/parley/types"

// RosterAgent is the read-only projection of a registered agent used for
// prompt building.
type RosterAgent struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Characteristics string `json:"characteristics"`
}

// State holds the mutable state of one conversation run. It is owned
// exclusively by the executor driving the run and must not be shared
// across concurrent runs.
type State struct {
	ConversationID string
	UserID         string
	Messages       []types.Message
	Agents         []RosterAgent
	CurrentSpeaker string
	TurnCount      int
	MaxTurns       int
	Complete       bool
}

// Append adds a message to the transcript. The transcript is append-only.
func (s *State) Append(msg types.Message) {
	s.Messages = append(s.Messages, msg)
}

// Recent returns the last n messages of the transcript.
func (s *State) Recent(n int) []types.Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// RecentAssistantSpeakers scans the transcript backward and returns up to
// n distinct assistant agent ids, most recent first.
func (s *State) RecentAssistantSpeakers(n int) []string {
	if n <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, n)
	speakers := make([]string, 0, n)
	for i := len(s.Messages) - 1; i >= 0 && len(speakers) < n; i-- {
		m := s.Messages[i]
		if m.Role != types.RoleAssistant || m.AgentID == "" {
			continue
		}
		if _, ok := seen[m.AgentID]; ok {
			continue
		}
		seen[m.AgentID] = struct{}{}
		speakers = append(speakers, m.AgentID)
	}
	return speakers
}

// AgentSelection is the supervisor's structured decision about who speaks
// next. Turns zero means "pause and wait for the user".
type AgentSelection struct {
	AgentID   string `json:"agentId"`
	Reasoning string `json:"reasoning"`
	Turns     int    `json:"turns"`
}

// TerminationDecision is the supervisor's structured decision about
// whether the group conversation has naturally concluded.
type TerminationDecision struct {
	ShouldTerminate bool   `json:"shouldTerminate"`
	Reason          string `json:"reason"`
}
