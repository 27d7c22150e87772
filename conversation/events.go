package conversation

import "time"

// EventType tags an event emitted by a conversation run.
type EventType string

const (
	// EventStatus carries progress notices such as "agent is thinking".
	EventStatus EventType = "status"
	// EventAgentResponse carries one generated agent turn.
	EventAgentResponse EventType = "agent_response"
	// EventCreditUpdate reports credits debited for a generated turn.
	EventCreditUpdate EventType = "credit_update"
	// EventConversationComplete is the terminal event for natural or
	// turn-ceiling completion.
	EventConversationComplete EventType = "conversation_complete"
	// EventPaused is the terminal event when the supervisor decides no
	// agent should speak (selection returned none or zero turns). The
	// conversation can be resumed with new user input.
	EventPaused EventType = "paused"
	// EventError is the terminal event for a fatal run failure.
	EventError EventType = "error"
)

// EventData is the payload of an Event. Fields are populated per type;
// unused fields are omitted from the wire encoding.
type EventData struct {
	Message          string `json:"message,omitempty"`
	Content          string `json:"content,omitempty"`
	AgentID          string `json:"agent_id,omitempty"`
	AgentName        string `json:"agent_name,omitempty"`
	IsComplete       bool   `json:"is_complete,omitempty"`
	CreditsUsed      int64  `json:"credits_used,omitempty"`
	RemainingCredits int64  `json:"remaining_credits,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	TotalCreditsUsed int64  `json:"total_credits_used,omitempty"`
	Error            string `json:"error,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
}

// Event is one unit of the run's output stream.
type Event struct {
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventConversationComplete, EventPaused, EventError:
		return true
	}
	return false
}

func statusEvent(message string) Event {
	return Event{Type: EventStatus, Data: EventData{Message: message}}
}

func agentResponseEvent(agentID, agentName, content string) Event {
	return Event{Type: EventAgentResponse, Data: EventData{
		AgentID:    agentID,
		AgentName:  agentName,
		Content:    content,
		IsComplete: true,
		Timestamp:  time.Now().UnixMilli(),
	}}
}

func completeEvent(conversationID, message string) Event {
	return Event{Type: EventConversationComplete, Data: EventData{
		ConversationID: conversationID,
		Message:        message,
	}}
}

func pausedEvent(conversationID, message string) Event {
	return Event{Type: EventPaused, Data: EventData{
		ConversationID: conversationID,
		Message:        message,
	}}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Data: EventData{Error: message}}
}
