package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/maninfini/sitebot/internal/chat"
	"github.com/maninfini/sitebot/internal/knowledge"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	env := newTestEnv(t)
	return MCPDeps{Chat: env.deps.Chat, Knowledge: env.kb}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestMCPDeps(t), "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Chat(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpChat(deps)(context.Background(), makeCallToolRequest("chat", map[string]interface{}{
		"message": "hello",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var reply chat.Reply
	if err := json.Unmarshal([]byte(toolText(t, result)), &reply); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if reply.Intent != "greeting" {
		t.Errorf("intent = %q, want greeting", reply.Intent)
	}
}

func TestMCPTool_Chat_MissingMessage(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpChat(deps)(context.Background(), makeCallToolRequest("chat", map[string]interface{}{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPTool_Learn(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpLearn(deps)(context.Background(), makeCallToolRequest("learn", map[string]interface{}{
		"type":    "faq",
		"content": `[{"question":"Do you offer hosting?","answer":"Yes, managed hosting is available."}]`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "1 faqs") {
		t.Errorf("text = %q", toolText(t, result))
	}
	if got := deps.Knowledge.Stats().FAQs; got != 1 {
		t.Errorf("FAQs = %d, want 1", got)
	}
}

func TestMCPTool_Learn_Rejects(t *testing.T) {
	deps := newTestMCPDeps(t)
	tests := []map[string]interface{}{
		{"type": "faq"},
		{"type": "video", "content": `[]`},
		{"type": "faq", "content": `not json`},
	}
	for _, args := range tests {
		result, err := mcpLearn(deps)(context.Background(), makeCallToolRequest("learn", args))
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
	if got := deps.Knowledge.Stats(); got.FAQs != 0 || got.Intents != 0 {
		t.Errorf("knowledge changed: %+v", got)
	}
}

func TestMCPTool_ListFAQs(t *testing.T) {
	deps := newTestMCPDeps(t)
	faqs := `[{"question":"a?","answer":"1"},{"question":"b?","answer":"2"},{"question":"c?","answer":"3"}]`
	if _, err := deps.Knowledge.Learn(knowledge.TypeFAQ, json.RawMessage(faqs)); err != nil {
		t.Fatal(err)
	}

	result, err := mcpListFAQs(deps)(context.Background(), makeCallToolRequest("list_faqs", map[string]interface{}{
		"limit": 2,
	}))
	if err != nil {
		t.Fatal(err)
	}
	var got []knowledge.FAQ
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Question != "a?" {
		t.Errorf("faqs = %+v", got)
	}
}

func TestMCPTool_ListFAQs_Empty(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpListFAQs(deps)(context.Background(), makeCallToolRequest("list_faqs", nil))
	if err != nil {
		t.Fatal(err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Errorf("text = %q, want []", text)
	}
}

func TestMCPTool_ListServices(t *testing.T) {
	deps := newTestMCPDeps(t)
	services := `[{"title":"RPA","description":"Robotic process automation."},{"title":"Design","description":"Brand identity."}]`
	if _, err := deps.Knowledge.Learn(knowledge.TypeService, json.RawMessage(services)); err != nil {
		t.Fatal(err)
	}

	result, err := mcpListServices(deps)(context.Background(), makeCallToolRequest("list_services", map[string]interface{}{
		"limit": 1,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	var got []knowledge.Service
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "RPA" {
		t.Errorf("services = %+v", got)
	}
}

func TestMCPResource_Stats(t *testing.T) {
	deps := newTestMCPDeps(t)
	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "kb://stats"}}

	contents, err := mcpResourceStats(deps)(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var stats knowledge.Stats
	if err := json.Unmarshal([]byte(tc.Text), &stats); err != nil {
		t.Fatal(err)
	}
	if tc.URI != "kb://stats" || tc.MIMEType != "application/json" {
		t.Errorf("contents = %+v", tc)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps := newTestMCPDeps(t)
	chatHandler := mcpChat(deps)
	learnHandler := mcpLearn(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := chatHandler(context.Background(), makeCallToolRequest("chat", map[string]interface{}{"message": "pricing"}))
			if err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			content := `{"custom_` + string(rune('a'+i)) + `":["ok"]}`
			_, err := learnHandler(context.Background(), makeCallToolRequest("learn", map[string]interface{}{"type": "response", "content": content}))
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
	if got := deps.Knowledge.Stats().Responses; got != 5 {
		t.Errorf("responses = %d, want 5", got)
	}
}
