// Package assistant is the generative "Manu" responder. It asks a language
// model first and answers from a keyword table whenever the model is
// unavailable.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"

	generateTimeout = 30 * time.Second
	maxSessions     = 1000
)

// Response is what Send returns for one user message.
type Response struct {
	SessionID   string    `json:"sessionId"`
	Responses   []Message `json:"responses"`
	Intent      string    `json:"intent"`
	Confidence  float64   `json:"confidence"`
	Sentiment   string    `json:"sentiment"`
	Suggestions []string  `json:"suggestions"`
	Generated   bool      `json:"generated"`
}

type session struct {
	history []Turn
	prefs   map[string]any
	seen    time.Time
}

type Assistant struct {
	gen Generator

	mu       sync.Mutex
	sessions map[string]*session
}

// New returns an assistant backed by gen. A nil gen behaves like
// NoopGenerator.
func New(gen Generator) *Assistant {
	if gen == nil {
		gen = NoopGenerator{}
	}
	return &Assistant{gen: gen, sessions: make(map[string]*session)}
}

// Send records message in the session, asks the generator and falls back to
// the keyword table on any error. An empty sessionID starts a new session.
func (a *Assistant) Send(ctx context.Context, sessionID, message string) Response {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	a.mu.Lock()
	s := a.session(sessionID)
	s.history = append(s.history, Turn{Sender: SenderUser, Text: message})
	prompt := BuildPrompt(message, s.history, s.prefs)
	a.mu.Unlock()

	intent, confidence := FallbackIntent(message)
	resp := Response{
		SessionID:   sessionID,
		Intent:      intent,
		Confidence:  confidence,
		Sentiment:   FallbackSentiment(message),
		Suggestions: Suggestions(intent),
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	text, err := a.gen.Generate(genCtx, prompt)
	if err != nil {
		if !errors.Is(err, ErrNoAPIKey) {
			slog.Warn("assistant generation failed, using fallback", "session", sessionID, "error", err)
		}
		resp.Responses = []Message{Fallback(message)}
		return resp
	}

	a.mu.Lock()
	s = a.session(sessionID)
	s.history = append(s.history, Turn{Sender: SenderBot, Text: text})
	a.mu.Unlock()

	resp.Responses = []Message{{Text: text, Buttons: buttons(intent)}}
	resp.Generated = true
	return resp
}

// SetPreferences replaces the preferences included in the session's prompts.
func (a *Assistant) SetPreferences(sessionID string, prefs map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session(sessionID).prefs = maps.Clone(prefs)
}

// History returns a copy of the session transcript.
func (a *Assistant) History(sessionID string) []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		return nil
	}
	return slices.Clone(s.history)
}

// Reset forgets the session's history and preferences.
func (a *Assistant) Reset(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// session must be called with a.mu held. When the table is full the least
// recently used session is dropped.
func (a *Assistant) session(id string) *session {
	s, ok := a.sessions[id]
	if !ok {
		if len(a.sessions) >= maxSessions {
			a.evictOldest()
		}
		s = &session{}
		a.sessions[id] = s
	}
	s.seen = time.Now()
	return s
}

func (a *Assistant) evictOldest() {
	var oldest string
	var at time.Time
	for id, s := range a.sessions {
		if oldest == "" || s.seen.Before(at) {
			oldest, at = id, s.seen
		}
	}
	delete(a.sessions, oldest)
}

// Sessions reports how many sessions are held.
func (a *Assistant) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
