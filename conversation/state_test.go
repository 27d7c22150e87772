package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/types"
)

func TestState_Recent(t *testing.T) {
	s := &State{}
	for _, content := range []string{"one", "two", "three"} {
		s.Append(types.NewUserMessage(content))
	}

	assert.Nil(t, s.Recent(0))
	assert.Len(t, s.Recent(2), 2)
	assert.Equal(t, "two", s.Recent(2)[0].Content)
	assert.Len(t, s.Recent(10), 3)
}

func TestState_RecentAssistantSpeakers(t *testing.T) {
	s := &State{}
	s.Append(types.NewUserMessage("hello"))
	s.Append(types.NewAssistantMessage("hi", "Ada", "a1"))
	s.Append(types.NewAssistantMessage("hey", "Bo", "a2"))
	s.Append(types.NewAssistantMessage("again", "Ada", "a1"))

	// distinct, most recent first, user messages ignored
	assert.Equal(t, []string{"a1", "a2"}, s.RecentAssistantSpeakers(3))
	assert.Equal(t, []string{"a1"}, s.RecentAssistantSpeakers(1))
	assert.Empty(t, (&State{}).RecentAssistantSpeakers(3))
}
