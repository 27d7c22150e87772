package stream

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/conversation"
)

// WSHandler streams conversation events over a WebSocket. The client
// sends one JSON StartRequest as its first text frame; events follow as
// JSON text frames until the terminal event, then the server closes the
// connection normally.
type WSHandler struct {
	streamer Streamer
	logger   *zap.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(streamer Streamer, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{streamer: streamer, logger: logger.With(zap.String("handler", "ws"))}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

	ctx := r.Context()

	_, data, err := conn.Read(ctx)
	if err != nil {
		h.logger.Warn("read start request failed", zap.Error(err))
		return
	}
	var req conversation.StartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid start request")
		return
	}

	events, err := h.streamer.Stream(ctx, req)
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		_ = conn.Write(ctx, websocket.MessageText, payload)
		conn.Close(websocket.StatusPolicyViolation, "start rejected")
		return
	}

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("encode event failed", zap.Error(err))
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			h.logger.Debug("client went away", zap.Error(err))
			return
		}
	}

	conn.Close(websocket.StatusNormalClosure, "conversation finished")
}
