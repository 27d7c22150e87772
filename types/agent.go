package types

// Friendliness controls how warm an agent sounds.
type Friendliness string

const (
	FriendlinessWarm     Friendliness = "warm"
	FriendlinessNeutral  Friendliness = "neutral"
	FriendlinessReserved Friendliness = "reserved"
)

// ResponseLength controls how long an agent's replies should be.
type ResponseLength string

const (
	ResponseLengthShort  ResponseLength = "short"
	ResponseLengthMedium ResponseLength = "medium"
	ResponseLengthLong   ResponseLength = "long"
)

// Personality controls the overall tone of an agent.
type Personality string

const (
	PersonalityCasual       Personality = "casual"
	PersonalityProfessional Personality = "professional"
	PersonalityPlayful      Personality = "playful"
)

// Humor controls how much humor an agent injects.
type Humor string

const (
	HumorNone     Humor = "none"
	HumorLight    Humor = "light"
	HumorFrequent Humor = "frequent"
)

// ExpertiseLevel controls the technical depth of an agent's replies.
type ExpertiseLevel string

const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseExpert       ExpertiseLevel = "expert"
)

// ChatStyle bundles the enumerated style knobs of an agent. Each knob is
// a closed enum; zero values map to the defaults via Normalize.
type ChatStyle struct {
	Friendliness   Friendliness   `json:"friendliness,omitempty" yaml:"friendliness"`
	ResponseLength ResponseLength `json:"response_length,omitempty" yaml:"response_length"`
	Personality    Personality    `json:"personality,omitempty" yaml:"personality"`
	Humor          Humor          `json:"humor,omitempty" yaml:"humor"`
	ExpertiseLevel ExpertiseLevel `json:"expertise_level,omitempty" yaml:"expertise_level"`
}

// DefaultChatStyle returns the default style knobs.
func DefaultChatStyle() ChatStyle {
	return ChatStyle{
		Friendliness:   FriendlinessNeutral,
		ResponseLength: ResponseLengthMedium,
		Personality:    PersonalityCasual,
		Humor:          HumorLight,
		ExpertiseLevel: ExpertiseIntermediate,
	}
}

// Normalize fills unset knobs with their defaults.
func (s ChatStyle) Normalize() ChatStyle {
	def := DefaultChatStyle()
	if s.Friendliness == "" {
		s.Friendliness = def.Friendliness
	}
	if s.ResponseLength == "" {
		s.ResponseLength = def.ResponseLength
	}
	if s.Personality == "" {
		s.Personality = def.Personality
	}
	if s.Humor == "" {
		s.Humor = def.Humor
	}
	if s.ExpertiseLevel == "" {
		s.ExpertiseLevel = def.ExpertiseLevel
	}
	return s
}

// AIConfig references the model an agent speaks through. Credential
// resolution happens outside the engine; CredentialRef is an opaque key.
type AIConfig struct {
	Provider      string `json:"provider" yaml:"provider"`
	Model         string `json:"model" yaml:"model"`
	CredentialRef string `json:"credential_ref,omitempty" yaml:"credential_ref"`
}

// Agent is a configured persona that can generate conversational turns.
// Agents are constructed from durable records by the caller, live for the
// duration of one conversation run, and are never mutated after construction.
type Agent struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Prompt          string    `json:"prompt"`
	Characteristics string    `json:"characteristics"`
	AI              AIConfig  `json:"ai_config"`
	Style           ChatStyle `json:"chat_style"`
	MaxTokens       int       `json:"max_tokens,omitempty"`
}
