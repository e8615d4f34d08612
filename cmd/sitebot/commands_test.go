package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maninfini/sitebot/internal/config"
	"github.com/maninfini/sitebot/internal/knowledge"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":"not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useClient points newAPIClient at ts for the duration of the test.
func (ts *testServer) useClient(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

var ctx = context.Background()

func TestSendChat(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"response":"Hello! How can I help?","intent":"greet","confidence":0.91,"timestamp":"2025-01-01T00:00:00Z"}`,
	})

	reply, err := sendChat(ctx, ts.client(), "hi there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Intent != "greet" {
		t.Errorf("intent = %q, want greet", reply.Intent)
	}
	if reply.Response != "Hello! How can I help?" {
		t.Errorf("response = %q", reply.Response)
	}

	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/api/chat" {
		t.Errorf("request = %s %s, want POST /api/chat", r.Method, r.Path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "hi there" {
		t.Errorf("body.message = %q, want 'hi there'", body["message"])
	}
}

func TestChatCommand_JoinsArgs(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"response":"ok","intent":"greet","confidence":0.5}`,
	})
	ts.useClient(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"chat", "what", "services", "do", "you", "offer"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Body, "what services do you offer") {
		t.Errorf("body = %q, want the joined message", ts.requests[0].Body)
	}
}

func TestChatCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"chat"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestLearnCommand_MissingFlags(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"learn", "--type", "", "--file", ""})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestSendLearn(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/learn": `{"success":true,"message":"Learned faq content successfully","stats":{"intents":9,"responses":9,"faqs":2,"services":0}}`,
	})

	content := json.RawMessage(`[{"question":"How long does a project take?","answer":"Usually four to eight weeks."}]`)
	stats, err := sendLearn(ctx, ts.client(), knowledge.TypeFAQ, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.FAQs != 2 || stats.Intents != 9 {
		t.Errorf("stats = %+v, want faqs=2 intents=9", stats)
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Type != "faq" {
		t.Errorf("body.type = %q, want faq", body.Type)
	}
	if !bytes.Contains(body.Content, []byte("four to eight weeks")) {
		t.Errorf("body.content = %s, want the file content forwarded verbatim", body.Content)
	}
}

func TestSendLearn_ServerRejects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":"Invalid content type"}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	_, err := sendLearn(ctx, client, "bogus", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "Invalid content type") {
		t.Errorf("error = %q, want the server's message", err.Error())
	}
}

func TestReadContent(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "intents.json")
	if err := os.WriteFile(good, []byte(`{"pricing":{"examples":["cost"],"responses":["It depends."]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(bad, []byte(`{"pricing":`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := readContent(nil, good); err != nil {
		t.Errorf("readContent(good) error: %v", err)
	}
	if _, err := readContent(nil, bad); err == nil {
		t.Error("readContent(bad) should reject invalid JSON")
	}
	if _, err := readContent(nil, filepath.Join(dir, "missing.json")); err == nil {
		t.Error("readContent(missing) should fail")
	}

	got, err := readContent(strings.NewReader(`[1,2]`), "-")
	if err != nil {
		t.Fatalf("readContent(stdin) error: %v", err)
	}
	if string(got) != "[1,2]" {
		t.Errorf("readContent(stdin) = %s, want [1,2]", got)
	}
}

func TestProbe_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/health": `{"status":"healthy","uptime":42.5,"memory":{"heapUsed":1048576},"knowledgeBaseSize":7}`,
		"GET /api/stats":  `{"intents":7,"responses":12,"faqs":3,"services":2}`,
	})

	health, stats, err := probe(ctx, ts.client())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.Status != "healthy" || health.KnowledgeBaseSize != 7 {
		t.Errorf("health = %+v", health)
	}
	if stats.Responses != 12 {
		t.Errorf("stats.responses = %d, want 12", stats.Responses)
	}
	if len(ts.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(ts.requests))
	}
}

func TestProbe_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, _, err := probe(ctx, ts.client())
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestRunsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/scrape/runs": `[{"id":"0195f3c2-aaaa-bbbb","status":"completed","pages":6,"failedPages":1,"faqs":4}]`,
	})
	ts.useClient(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"runs", "--limit", "5"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/api/scrape/runs?limit=5" {
		t.Errorf("path = %q, want /api/scrape/runs?limit=5", got)
	}
}

func TestFormatRun(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	line := formatRun(runInfo{
		ID:          "0195f3c2-aaaa-bbbb",
		Status:      "failed",
		StartedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Pages:       6,
		FailedPages: 2,
		LastError:   "writing snapshot: disk full",
	})
	for _, want := range []string{"0195f3c2 ", "failed", "pages 4/6", "disk full"} {
		if !strings.Contains(line, want) {
			t.Errorf("formatRun = %q, missing %q", line, want)
		}
	}
	if strings.Contains(line, "aaaa") {
		t.Errorf("formatRun = %q, want the id shortened", line)
	}
}

// resetAskFlags clears flags that persist on the package-level command
// between Execute calls.
func resetAskFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		askCmd.Flags().Set("reset", "false")
		askCmd.Flags().Set("session", "")
	})
}

func TestRootRegistersEachCommandOnce(t *testing.T) {
	counts := make(map[string]int)
	for _, c := range rootCmd.Commands() {
		counts[c.Name()]++
	}
	for _, name := range []string{"serve", "scrape", "monitor", "chat", "ask", "learn", "stats", "status", "runs", "mcp", "config"} {
		if counts[name] != 1 {
			t.Errorf("%s registered %d times, want 1", name, counts[name])
		}
	}
	if cmd, _, err := rootCmd.Find([]string{"ask"}); err != nil || cmd != askCmd {
		t.Errorf("Find(ask) = %v, %v", cmd, err)
	}
}

func TestAskCommand_Reset(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/assistant/abc": `{"status":"reset"}`,
	})
	ts.useClient(t)
	resetAskFlags(t)

	rootCmd.SetArgs([]string{"ask", "--session", "abc", "--reset"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q, want DELETE", ts.requests[0].Method)
	}
}

func TestAskCommand_ResetNeedsSession(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.useClient(t)
	resetAskFlags(t)

	rootCmd.SetArgs([]string{"ask", "--reset"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for --reset without --session")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/health": `{"status":"healthy"}`,
	})

	client := ts.client()
	client.token = ""
	resp, err := client.get(ctx, "/api/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want no Authorization header", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte("bad gateway\n"))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	resp, err := client.get(ctx, "/api/stats")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if err.Error() != "server returned 502: bad gateway" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 7, "this is..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Server.AdminToken = "s3cret"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if strings.Contains(k.Value, "s3cret") {
			t.Errorf("ShowAll leaked a secret under %s", k.Key)
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}
