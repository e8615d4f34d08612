package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maninfini/sitebot/internal/assistant"
	"github.com/maninfini/sitebot/internal/chat"
)

// Websocket frame types.
const (
	FrameChat      = "chat"
	FrameAssistant = "assistant"
	FramePing      = "ping"
	FramePong      = "pong"
	FrameError     = "error"
)

const (
	wsReadLimit = 64 << 10
	wsIdle      = 60 * time.Second
	wsWrite     = 10 * time.Second
)

// SocketRequest is a frame sent by the chat widget.
type SocketRequest struct {
	Type        string         `json:"type"`
	Message     string         `json:"message,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// SocketResponse is a frame sent back to the widget. Exactly one payload
// field is set, matching Type.
type SocketResponse struct {
	Type      string              `json:"type"`
	Reply     *chat.Reply         `json:"reply,omitempty"`
	Assistant *assistant.Response `json:"assistant,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
}

// handleChatSocket serves one widget connection. Frames are answered in
// order; a read error or idle timeout closes the socket.
func handleChatSocket(deps Deps) http.HandlerFunc {
	upgrader := newUpgrader(deps.AllowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		conn.SetReadLimit(wsReadLimit)
		conn.SetReadDeadline(time.Now().Add(wsIdle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsIdle))
		})

		ctx := r.Context()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read failed", "error", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsIdle))

			resp := answerFrame(ctx, deps, data)
			conn.SetWriteDeadline(time.Now().Add(wsWrite))
			if err := conn.WriteJSON(resp); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func answerFrame(ctx context.Context, deps Deps, data []byte) SocketResponse {
	var req SocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return SocketResponse{Type: FrameError, Error: "Invalid message format"}
	}

	switch req.Type {
	case FramePing:
		return SocketResponse{Type: FramePong}
	case FrameChat:
		reply, err := deps.Chat.Reply(ctx, req.Message)
		if errors.Is(err, chat.ErrInvalidMessage) {
			return SocketResponse{Type: FrameError, Error: "Invalid message format"}
		}
		if err != nil {
			slog.Error("websocket chat failed", "error", err)
			return SocketResponse{Type: FrameError, Error: chat.ErrorReply}
		}
		return SocketResponse{Type: FrameChat, Reply: &reply}
	case FrameAssistant:
		if strings.TrimSpace(req.Message) == "" {
			return SocketResponse{Type: FrameError, Error: "Invalid message format"}
		}
		resp := sendAssistant(ctx, deps.Assistant, req.SessionID, req.Message, req.Preferences)
		return SocketResponse{Type: FrameAssistant, Assistant: &resp}
	default:
		return SocketResponse{Type: FrameError, Error: "Unknown frame type"}
	}
}
