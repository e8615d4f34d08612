package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/maninfini/sitebot/internal/chat"
	"github.com/maninfini/sitebot/internal/knowledge"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Chat      *chat.Service
	Knowledge *knowledge.Store
}

// NewMCPServer exposes the chatbot and its knowledge base as MCP tools and
// resources.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sitebot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sitebot answers questions about Maninfini Automation from a knowledge base learned from its website."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask the site chatbot a question and get its reply with the detected intent."),
			mcp.WithString("message", mcp.Description("Visitor message"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("learn",
			mcp.WithDescription("Merge content into the knowledge base, retrain the classifier and save."),
			mcp.WithString("type", mcp.Description("Content type: faq, service, intent or response"), mcp.Required()),
			mcp.WithString("content", mcp.Description("JSON content: an array for faq/service, an object for intent/response"), mcp.Required()),
		),
		mcpLearn(deps),
	)

	s.AddTool(
		mcp.NewTool("list_faqs",
			mcp.WithDescription("List FAQs held in the knowledge base."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of FAQs (default 20)")),
		),
		mcpListFAQs(deps),
	)

	s.AddTool(
		mcp.NewTool("list_services",
			mcp.WithDescription("List services held in the knowledge base."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of services (default 20)")),
		),
		mcpListServices(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"kb://stats",
			"Knowledge Base Stats",
			mcp.WithResourceDescription("Counts of intents, responses, FAQs and services"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Chat.Reply(ctx, message)
		if errors.Is(err, chat.ErrInvalidMessage) {
			return mcpError("message must not be empty"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLearn(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		if !json.Valid([]byte(content)) {
			return mcpError("content must be valid JSON"), nil
		}

		stats, err := deps.Chat.Learn(knowledge.ContentType(typ), json.RawMessage(content))
		if err != nil {
			return mcpError(fmt.Sprintf("learn failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Learned %s content: %d intents, %d responses, %d faqs, %d services",
			typ, stats.Intents, stats.Responses, stats.FAQs, stats.Services)), nil
	}
}

func mcpListFAQs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		faqs := deps.Knowledge.FAQs()
		if len(faqs) > limit {
			faqs = faqs[:limit]
		}
		if faqs == nil {
			faqs = []knowledge.FAQ{}
		}

		b, err := json.Marshal(faqs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal faqs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListServices(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := min(req.GetInt("limit", 20), 200)
		if limit <= 0 {
			limit = 20
		}

		services := deps.Knowledge.Services()
		if len(services) > limit {
			services = services[:limit]
		}
		if services == nil {
			services = []knowledge.Service{}
		}

		b, err := json.Marshal(services)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal services: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Knowledge.Stats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
