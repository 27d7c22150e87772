package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/types"
)

// OpenAICompatConfig configures an OpenAI-compatible caller. Providers
// like DeepSeek, Qwen, and local gateways speak the same wire format;
// only the base URL and key differ.
type OpenAICompatConfig struct {
	Provider     string
	APIKey       string
	BaseURL      string
	EndpointPath string        // defaults to /v1/chat/completions
	Timeout      time.Duration // defaults to 60s
}

// OpenAICompatCaller speaks the OpenAI chat completions wire format.
type OpenAICompatCaller struct {
	cfg    OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatCaller creates a caller for one provider endpoint.
func NewOpenAICompatCaller(cfg OpenAICompatConfig, logger *zap.Logger) *OpenAICompatCaller {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatCaller{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", cfg.Provider)),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateText runs one chat completion over the transcript.
func (c *OpenAICompatCaller) GenerateText(ctx context.Context, req *TextRequest) (string, error) {
	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    buildChatMessages(req.System, req.Messages),
	}
	resp, err := c.complete(ctx, body)
	if err != nil {
		return "", err
	}
	return resp, nil
}

// GenerateStructured runs one JSON-mode completion and decodes the reply
// into out. The schema rides in the system message; json_object mode
// keeps the reply parseable.
func (c *OpenAICompatCaller) GenerateStructured(ctx context.Context, req *StructuredRequest, out any) error {
	system := req.System
	if system == "" {
		system = "You respond only with a single JSON object."
	}
	system += "\n\nThe reply must be a JSON object matching this schema:\n" + string(req.Schema)

	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
	}
	body.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	text, err := c.complete(ctx, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), out); err != nil {
		return types.NewError(types.ErrUpstreamError, "model returned unparseable JSON").
			WithProvider(c.cfg.Provider).WithCause(err)
	}
	return nil
}

func (c *OpenAICompatCaller) complete(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "encode request").WithCause(err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "build request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "provider unreachable").
			WithProvider(c.cfg.Provider).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "read response").
			WithProvider(c.cfg.Provider).WithCause(err).WithRetryable(true)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp.StatusCode, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode response").
			WithProvider(c.cfg.Provider).WithCause(err)
	}
	if parsed.Error != nil {
		return "", types.NewError(types.ErrUpstreamError, parsed.Error.Message).
			WithProvider(c.cfg.Provider)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenAICompatCaller) statusError(status int, body []byte) error {
	msg := fmt.Sprintf("provider returned status %d", status)
	var parsed chatResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		msg = parsed.Error.Message
	}

	code := types.ErrUpstreamError
	retryable := status >= 500
	switch status {
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = types.ErrUpstreamTimeout
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	}
	return types.NewError(code, msg).WithProvider(c.cfg.Provider).WithRetryable(retryable)
}

// buildChatMessages maps a transcript onto chat roles. Assistant turns
// from other speakers keep their attribution in the content so the model
// can follow who said what.
func buildChatMessages(system string, transcript []types.Message) []chatMessage {
	out := make([]chatMessage, 0, len(transcript)+1)
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range transcript {
		content := m.Content
		if m.Role == types.RoleAssistant && m.Speaker != "" {
			content = m.Speaker + ": " + m.Content
		}
		out = append(out, chatMessage{Role: string(m.Role), Content: content})
	}
	return out
}

// stripCodeFence removes a surrounding ```json fence if the model added
// one despite JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
