// Package llm defines the model-call capability the conversation engine
// depends on. Provider selection, credential resolution, and the concrete
// SDK mechanics live behind the Caller interface; the engine only needs
// "messages in, text out" and "prompt in, structured object out".
package llm

import (
	"context"
	"encoding/json"

	"github.com/parleyhq/parley/types"
)

// TextRequest describes a plain completion call for one agent turn.
type TextRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []types.Message `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// StructuredRequest describes a call that must yield a JSON object
// conforming to Schema. Used for supervisor decisions.
type StructuredRequest struct {
	Model       string          `json:"model"`
	Schema      json.RawMessage `json:"schema"`
	System      string          `json:"system,omitempty"`
	Prompt      string          `json:"prompt"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// Caller is the unified model invocation interface.
type Caller interface {
	// GenerateText performs a completion call and returns the reply text.
	GenerateText(ctx context.Context, req *TextRequest) (string, error)

	// GenerateStructured performs a schema-constrained call and decodes
	// the result into out.
	GenerateStructured(ctx context.Context, req *StructuredRequest, out any) error
}

// CallerFunc adapts plain functions to the Caller interface for tests
// and simple wiring.
type CallerFunc struct {
	TextFn       func(ctx context.Context, req *TextRequest) (string, error)
	StructuredFn func(ctx context.Context, req *StructuredRequest, out any) error
}

func (f CallerFunc) GenerateText(ctx context.Context, req *TextRequest) (string, error) {
	if f.TextFn == nil {
		return "", types.NewError(types.ErrInternalError, "no text handler configured")
	}
	return f.TextFn(ctx, req)
}

func (f CallerFunc) GenerateStructured(ctx context.Context, req *StructuredRequest, out any) error {
	if f.StructuredFn == nil {
		return types.NewError(types.ErrInternalError, "no structured handler configured")
	}
	return f.StructuredFn(ctx, req, out)
}
