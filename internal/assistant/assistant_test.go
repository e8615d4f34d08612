package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestSend_UsesGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: "We build RPA bots."}
	a := New(gen)

	resp := a.Send(context.Background(), "", "Tell me about automation")
	if resp.SessionID == "" {
		t.Fatal("expected a session id to be assigned")
	}
	if !resp.Generated {
		t.Error("expected Generated=true")
	}
	if len(resp.Responses) != 1 || resp.Responses[0].Text != "We build RPA bots." {
		t.Errorf("responses = %+v", resp.Responses)
	}
	if resp.Intent != "ask_automation" {
		t.Errorf("intent = %q, want ask_automation", resp.Intent)
	}
	if len(resp.Suggestions) != 4 {
		t.Errorf("suggestions = %v, want 4", resp.Suggestions)
	}

	hist := a.History(resp.SessionID)
	if len(hist) != 2 || hist[0].Sender != SenderUser || hist[1].Sender != SenderBot {
		t.Errorf("history = %+v", hist)
	}
}

func TestSend_FallsBackOnError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	a := New(gen)

	resp := a.Send(context.Background(), "s1", "What does it cost?")
	if resp.Generated {
		t.Error("expected Generated=false")
	}
	if resp.SessionID != "s1" {
		t.Errorf("session = %q, want s1", resp.SessionID)
	}
	if len(resp.Responses) != 1 || !strings.Contains(resp.Responses[0].Text, "pricing is tailored") {
		t.Errorf("responses = %+v", resp.Responses)
	}
	if len(resp.Responses[0].Buttons) != 4 {
		t.Errorf("buttons = %+v", resp.Responses[0].Buttons)
	}

	// Only the user turn is recorded when generation fails.
	if n := len(a.History("s1")); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
}

func TestSend_NilGeneratorNeverFails(t *testing.T) {
	a := New(nil)
	resp := a.Send(context.Background(), "", "zzz")
	if resp.Intent != IntentOutOfScope || resp.Confidence != 0.3 {
		t.Errorf("intent = %q/%v", resp.Intent, resp.Confidence)
	}
	if len(resp.Responses) != 1 || !strings.HasPrefix(resp.Responses[0].Text, "I apologize") {
		t.Errorf("responses = %+v", resp.Responses)
	}
	if resp.Suggestions == nil {
		t.Error("suggestions should be an empty slice, not nil")
	}
}

func TestSend_PromptIncludesHistoryWindow(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	a := New(gen)
	for i := range 4 {
		a.Send(context.Background(), "s", "message "+string(rune('a'+i)))
	}

	last := gen.prompts[len(gen.prompts)-1]
	// 7 turns so far before the last prompt: a,ok,b,ok,c,ok,d. Window keeps the last 5.
	if strings.Contains(last, "user: message a") {
		t.Error("oldest turn should have left the window")
	}
	for _, want := range []string{"user: message c", "bot: ok", "user: message d", "Current user message: message d"} {
		if !strings.Contains(last, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSetPreferencesAndReset(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	a := New(gen)
	a.SetPreferences("s", map[string]any{"service": "design"})
	a.Send(context.Background(), "s", "hello")
	if !strings.Contains(gen.prompts[0], `User preferences: {"service":"design"}`) {
		t.Errorf("prompt missing preferences:\n%s", gen.prompts[0])
	}

	a.Reset("s")
	if h := a.History("s"); h != nil {
		t.Errorf("history after reset = %+v", h)
	}
}

func TestSessionsAreBounded(t *testing.T) {
	a := New(nil)
	for range maxSessions + 10 {
		a.Send(context.Background(), "", "hi")
	}
	if n := a.Sessions(); n != maxSessions {
		t.Errorf("sessions = %d, want %d", n, maxSessions)
	}
}

func TestFallbackIntent(t *testing.T) {
	tests := []struct {
		msg        string
		intent     string
		confidence float64
	}{
		{"Hello there", "greet", 0.9},
		{"What services do you have", "ask_services", 0.9},
		{"How much for a logo", "ask_pricing", 0.9},
		{"How can I get in touch", "ask_contact", 0.8},
		{"I want to book a meeting", "book_consultation", 0.9},
		{"RPA please", "ask_automation", 0.9},
		{"need a new website", "ask_web_development", 0.9},
		{"design work", "ask_design", 0.9},
		// "graphic" contains "hi" and so greets.
		{"graphic work", "greet", 0.9},
		{"WhatsApp bot", "ask_whatsapp", 0.9},
		{"xyz", IntentOutOfScope, 0.3},
		// Substring matching: "this" contains "hi".
		{"is this about automation", "greet", 0.9},
	}
	for _, tt := range tests {
		intent, conf := FallbackIntent(tt.msg)
		if intent != tt.intent || conf != tt.confidence {
			t.Errorf("FallbackIntent(%q) = %q/%v, want %q/%v", tt.msg, intent, conf, tt.intent, tt.confidence)
		}
	}
}

func TestFallback_TextsAndButtons(t *testing.T) {
	m := Fallback("CONTACT")
	if !strings.Contains(m.Text, "info@maninfini.com") {
		t.Errorf("contact text = %q", m.Text)
	}
	if m.Buttons != nil {
		t.Errorf("contact has no suggestions, got %+v", m.Buttons)
	}

	m = Fallback("services")
	if len(m.Buttons) != 4 || m.Buttons[0].Title != "Tell me more about automation" {
		t.Errorf("buttons = %+v", m.Buttons)
	}
}

func TestSuggestions_ReturnsCopy(t *testing.T) {
	s := Suggestions("ask_pricing")
	s[0] = "changed"
	if Suggestions("ask_pricing")[0] != "I need a quote" {
		t.Error("Suggestions must not alias the table")
	}
	if Suggestions("greet") != nil {
		t.Error("greet has no suggestions")
	}
}

func TestFallbackSentiment(t *testing.T) {
	tests := []struct {
		msg, want string
	}{
		{"This is great, I love it", SentimentPositive},
		{"terrible and awful", SentimentNegative},
		{"ok", SentimentNeutral},
		// "dislike" contains "like": one of each.
		{"I dislike it", SentimentNeutral},
	}
	for _, tt := range tests {
		if got := FallbackSentiment(tt.msg); got != tt.want {
			t.Errorf("FallbackSentiment(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestBuildPrompt_EmptyHistory(t *testing.T) {
	p := BuildPrompt("hi", nil, nil)
	if !strings.Contains(p, "You are Manu") || !strings.Contains(p, "User preferences: {}") {
		t.Errorf("unexpected prompt:\n%s", p)
	}
}

func TestNewGenerators_RequireKey(t *testing.T) {
	if _, err := NewGeminiGenerator(context.Background(), "", "m"); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("gemini err = %v, want ErrNoAPIKey", err)
	}
	if _, err := NewOpenAIGenerator("", "", "m"); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("openai err = %v, want ErrNoAPIKey", err)
	}
}
