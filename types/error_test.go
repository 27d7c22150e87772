package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Chain(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "provider call failed").WithCause(cause).WithRetryable(true)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsErrorCode(t *testing.T) {
	err := NewError(ErrAgentNotFound, "agent missing")
	wrapped := fmt.Errorf("run aborted: %w", err)

	assert.True(t, IsErrorCode(wrapped, ErrAgentNotFound))
	assert.False(t, IsErrorCode(wrapped, ErrGenerationFailure))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrAgentNotFound))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrRateLimited, "slow down").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrAgentNotFound, "gone")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestChatStyle_Normalize(t *testing.T) {
	s := ChatStyle{Humor: HumorFrequent}.Normalize()

	assert.Equal(t, HumorFrequent, s.Humor)
	assert.Equal(t, FriendlinessNeutral, s.Friendliness)
	assert.Equal(t, ResponseLengthMedium, s.ResponseLength)
	assert.Equal(t, PersonalityCasual, s.Personality)
	assert.Equal(t, ExpertiseIntermediate, s.ExpertiseLevel)
}
