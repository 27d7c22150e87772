package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/types"
)

// Style knob expansion is a deterministic text-template lookup: each enum
// value maps to exactly one instruction sentence.

var friendlinessInstructions = map[types.Friendliness]string{
	types.FriendlinessWarm:     "Be warm and welcoming in every reply.",
	types.FriendlinessNeutral:  "Keep an even, neutral tone.",
	types.FriendlinessReserved: "Stay polite but reserved; do not gush.",
}

var responseLengthInstructions = map[types.ResponseLength]string{
	types.ResponseLengthShort:  "Keep replies to one or two sentences.",
	types.ResponseLengthMedium: "Keep replies to a short paragraph.",
	types.ResponseLengthLong:   "Reply in depth when the topic calls for it.",
}

var personalityInstructions = map[types.Personality]string{
	types.PersonalityCasual:       "Speak casually, like chatting with friends.",
	types.PersonalityProfessional: "Maintain a professional register.",
	types.PersonalityPlayful:      "Be playful and spontaneous.",
}

var humorInstructions = map[types.Humor]string{
	types.HumorNone:     "Avoid jokes entirely.",
	types.HumorLight:    "Light humor is welcome when it fits.",
	types.HumorFrequent: "Use humor often; keep the mood fun.",
}

var expertiseInstructions = map[types.ExpertiseLevel]string{
	types.ExpertiseBeginner:     "Explain things simply, assuming no prior knowledge.",
	types.ExpertiseIntermediate: "Assume a generally informed audience.",
	types.ExpertiseExpert:       "Speak with full technical depth.",
}

// styleInstructions renders the fixed instruction sentences for a style.
func styleInstructions(style types.ChatStyle) string {
	style = style.Normalize()
	lines := []string{
		friendlinessInstructions[style.Friendliness],
		responseLengthInstructions[style.ResponseLength],
		personalityInstructions[style.Personality],
		humorInstructions[style.Humor],
		expertiseInstructions[style.ExpertiseLevel],
	}
	return strings.Join(lines, " ")
}

// buildSystemPrompt assembles the system instruction for one agent turn
// from the agent's role prompt, characteristics, and style knobs.
func buildSystemPrompt(agent types.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one participant in a group conversation.\n\n", agent.Name)
	if agent.Prompt != "" {
		b.WriteString(agent.Prompt)
		b.WriteString("\n\n")
	}
	if agent.Characteristics != "" {
		fmt.Fprintf(&b, "Your characteristics: %s\n\n", agent.Characteristics)
	}
	b.WriteString("Style: ")
	b.WriteString(styleInstructions(agent.Style))
	b.WriteString("\nRespond as yourself, in character, to the conversation so far. Do not prefix your reply with your name.")
	return b.String()
}

// formatTranscript renders messages as speaker-labeled lines for
// supervisor prompts.
func formatTranscript(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		speaker := m.Speaker
		if speaker == "" {
			speaker = string(m.Role)
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return b.String()
}

// buildSelectionPrompt renders the supervisor prompt for picking the next
// speaker: the roster, the recent transcript, and, when recent speakers
// exist, an explicit no-repeat instruction.
func buildSelectionPrompt(state *State, recentSpeakers []string) string {
	var b strings.Builder
	b.WriteString("You are supervising a group conversation between the user and several agents.\n")
	b.WriteString("Pick which agent should speak next and how many consecutive turns they get.\n\n")

	b.WriteString("Agents:\n")
	for _, a := range state.Agents {
		fmt.Fprintf(&b, "- id=%s name=%s characteristics=%s\n", a.ID, a.Name, a.Characteristics)
	}

	b.WriteString("\nRecent conversation:\n")
	b.WriteString(formatTranscript(state.Recent(recentMessageWindow)))

	if len(recentSpeakers) > 0 {
		fmt.Fprintf(&b, "\nThe most recent speakers were (newest first): %s.\n",
			strings.Join(recentSpeakers, ", "))
		fmt.Fprintf(&b, "The next speaker MUST be different from %s.\n", recentSpeakers[0])
	}

	b.WriteString("\nRespond with the agent id, your reasoning, and a turn count. ")
	b.WriteString("Use turns=0 if no agent should speak and the group should wait for the user.")
	return b.String()
}

// buildTerminationPrompt renders the supervisor prompt for deciding
// whether the group conversation has naturally concluded.
func buildTerminationPrompt(state *State) string {
	var b strings.Builder
	b.WriteString("You are supervising a group conversation between the user and several agents.\n")
	b.WriteString("Decide whether the conversation has reached a natural stopping point.\n")
	b.WriteString("Simple greetings do not need every agent to respond; ")
	b.WriteString("a greeting exchange that has run its course should stop.\n\n")
	b.WriteString("Recent conversation:\n")
	b.WriteString(formatTranscript(state.Recent(recentMessageWindow)))
	b.WriteString("\nRespond with shouldTerminate and a short reason.")
	return b.String()
}

// Structured-output schemas for the supervisor calls.
var (
	selectionSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"agentId":   {"type": "string"},
			"reasoning": {"type": "string"},
			"turns":     {"type": "integer", "minimum": 0}
		},
		"required": ["agentId"]
	}`)

	terminationSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"shouldTerminate": {"type": "boolean"},
			"reason":          {"type": "string"}
		},
		"required": ["shouldTerminate"]
	}`)
)
