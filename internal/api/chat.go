package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maninfini/sitebot/internal/assistant"
	"github.com/maninfini/sitebot/internal/chat"
)

type ChatRequest struct {
	Message json.RawMessage `json:"message"`
}

type AssistantRequest struct {
	Message     string         `json:"message"`
	SessionID   string         `json:"sessionId"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

type healthResponse struct {
	Status            string       `json:"status"`
	Uptime            float64      `json:"uptime"`
	Memory            memoryReport `json:"memory"`
	KnowledgeBaseSize int          `json:"knowledgeBaseSize"`
	LastUpdated       time.Time    `json:"lastUpdated"`
}

type memoryReport struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	Sys       uint64 `json:"sys"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		stats := deps.Knowledge.Stats()

		writeJSON(w, http.StatusOK, healthResponse{
			Status: "healthy",
			Uptime: time.Since(deps.Started).Seconds(),
			Memory: memoryReport{
				HeapUsed:  ms.HeapAlloc,
				HeapTotal: ms.HeapSys,
				Sys:       ms.Sys,
			},
			KnowledgeBaseSize: stats.Intents,
			LastUpdated:       stats.LastUpdated,
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Knowledge.Stats())
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		message, ok := decodeChatMessage(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "Invalid message format")
			return
		}

		reply, err := deps.Chat.Reply(r.Context(), message)
		if errors.Is(err, chat.ErrInvalidMessage) {
			httpError(w, http.StatusBadRequest, "Invalid message format")
			return
		}
		if err != nil {
			slog.Error("chat failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"response": chat.ErrorReply,
				"error":    "Internal server error",
			})
			return
		}

		writeJSON(w, http.StatusOK, reply)
	}
}

// decodeChatMessage accepts only a JSON string message.
func decodeChatMessage(r *http.Request) (string, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	var message string
	if err := json.Unmarshal(req.Message, &message); err != nil {
		return "", false
	}
	return message, true
}

func handleAssistant(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AssistantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "Invalid message format")
			return
		}

		writeJSON(w, http.StatusOK, sendAssistant(r.Context(), deps.Assistant, req.SessionID, req.Message, req.Preferences))
	}
}

// sendAssistant stores prefs on the session, when given, before asking.
func sendAssistant(ctx context.Context, a *assistant.Assistant, sessionID, message string, prefs map[string]any) assistant.Response {
	if prefs != nil {
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		a.SetPreferences(sessionID, prefs)
	}
	return a.Send(ctx, sessionID, message)
}

func handleAssistantReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.Reset(chi.URLParam(r, "sessionID"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}
