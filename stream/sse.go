package stream

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/conversation"
	"github.com/parleyhq/parley/types"
)

// SSEHandler streams conversation events over Server-Sent Events. The
// request body is a JSON StartRequest; each event arrives as one
// `data:` frame, and `data: [DONE]` closes the stream.
type SSEHandler struct {
	streamer Streamer
	logger   *zap.Logger
}

// NewSSEHandler creates an SSEHandler.
func NewSSEHandler(streamer Streamer, logger *zap.Logger) *SSEHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHandler{streamer: streamer, logger: logger.With(zap.String("handler", "sse"))}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req conversation.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	events, err := h.streamer.Stream(r.Context(), req)
	if err != nil {
		writeStartError(w, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("encode event failed", zap.Error(err))
			return
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func writeStartError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := http.StatusInternalServerError
	switch {
	case types.IsErrorCode(err, types.ErrInvalidRequest):
		status = http.StatusBadRequest
	case types.IsErrorCode(err, types.ErrAgentNotFound):
		status = http.StatusNotFound
	}
	logger.Warn("start rejected", zap.Int("status", status), zap.Error(err))
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}
