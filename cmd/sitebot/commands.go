package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maninfini/sitebot/internal/api"
	"github.com/maninfini/sitebot/internal/config"
	"github.com/maninfini/sitebot/internal/knowledge"
)

// --- chat ---

type chatReply struct {
	Response   string    `json:"response"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

var chatCmd = &cobra.Command{
	Use:   "chat <message...>",
	Short: "Send a message to the site chatbot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		reply, err := sendChat(cmd.Context(), client, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(reply.Response)
		printStatus("Intent", "%s (%.2f)", reply.Intent, reply.Confidence)
		return nil
	},
}

func sendChat(ctx context.Context, client *apiClient, message string) (chatReply, error) {
	resp, err := client.post(ctx, "/api/chat", map[string]string{"message": message})
	if err != nil {
		return chatReply{}, err
	}
	var reply chatReply
	if err := decodeJSON(resp, &reply); err != nil {
		return chatReply{}, err
	}
	return reply, nil
}

// --- ask ---

type assistantReply struct {
	SessionID string `json:"sessionId"`
	Responses []struct {
		Text    string `json:"text"`
		Buttons []struct {
			Title   string `json:"title"`
			Payload string `json:"payload"`
		} `json:"buttons"`
	} `json:"responses"`
	Intent      string   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	Sentiment   string   `json:"sentiment"`
	Suggestions []string `json:"suggestions"`
}

var askCmd = &cobra.Command{
	Use:   "ask <message...>",
	Short: "Ask the AI assistant",
	Long: `Ask the AI assistant. Pass --session to continue a conversation and
--reset to forget it.

Examples:
  sitebot ask "what does an automation project cost?"
  sitebot ask --session 3f2a... "and how long does it take?"
  sitebot ask --session 3f2a... --reset`,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		reset, _ := cmd.Flags().GetBool("reset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if reset {
			if session == "" {
				return errors.New("--reset requires --session")
			}
			resp, err := client.delete(cmd.Context(), "/api/assistant/"+url.PathEscape(session))
			if err != nil {
				return err
			}
			var out map[string]string
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			printSuccess("Session %s reset", session)
			return nil
		}

		if len(args) == 0 {
			return errors.New("a message is required")
		}
		resp, err := client.post(cmd.Context(), "/api/assistant", map[string]string{
			"message":   strings.Join(args, " "),
			"sessionId": session,
		})
		if err != nil {
			return err
		}
		var reply assistantReply
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		for _, r := range reply.Responses {
			fmt.Println(r.Text)
			for _, b := range r.Buttons {
				fmt.Printf("  [%s]\n", b.Title)
			}
		}
		printStatus("Intent", "%s (%.2f)", reply.Intent, reply.Confidence)
		printStatus("Sentiment", "%s", reply.Sentiment)
		if len(reply.Suggestions) > 0 {
			printStatus("Suggestions", "%s", strings.Join(reply.Suggestions, " | "))
		}
		printStatus("Session", "%s", reply.SessionID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "assistant session id")
	askCmd.Flags().Bool("reset", false, "forget the session's history")
}

// --- learn ---

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Teach the server intents, FAQs or services from a JSON file",
	Long: `Teach the server intents, FAQs or services from a JSON file.

Examples:
  sitebot learn --type intent --file intents.json
  sitebot learn --type faq --file - < faqs.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		file, _ := cmd.Flags().GetString("file")
		if typ == "" || file == "" {
			return errors.New("--type and --file are required")
		}

		content, err := readContent(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		stats, err := sendLearn(cmd.Context(), client, knowledge.ContentType(typ), content)
		if err != nil {
			return err
		}
		printSuccess("Learned %s content", typ)
		printKnowledgeStats(stats)
		return nil
	},
}

func init() {
	learnCmd.Flags().String("type", "", "content type: intent, faq or service")
	learnCmd.Flags().String("file", "", "JSON file to send, - for stdin")
}

// readContent reads a JSON document from path, or from stdin when path is "-".
func readContent(stdin io.Reader, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

func sendLearn(ctx context.Context, client *apiClient, typ knowledge.ContentType, content json.RawMessage) (knowledge.Stats, error) {
	resp, err := client.post(ctx, "/api/learn", api.LearnRequest{Type: typ, Content: content})
	if err != nil {
		return knowledge.Stats{}, err
	}
	var out struct {
		Message string          `json:"message"`
		Stats   knowledge.Stats `json:"stats"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return knowledge.Stats{}, err
	}
	return out.Stats, nil
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base size",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		stats, err := fetchStats(cmd.Context(), client)
		if err != nil {
			return err
		}
		printKnowledgeStats(stats)
		return nil
	},
}

func fetchStats(ctx context.Context, client *apiClient) (knowledge.Stats, error) {
	resp, err := client.get(ctx, "/api/stats")
	if err != nil {
		return knowledge.Stats{}, err
	}
	var stats knowledge.Stats
	if err := decodeJSON(resp, &stats); err != nil {
		return knowledge.Stats{}, err
	}
	return stats, nil
}

func printKnowledgeStats(s knowledge.Stats) {
	printStatus("Intents", "%d", s.Intents)
	printStatus("Responses", "%d", s.Responses)
	printStatus("FAQs", "%d", s.FAQs)
	printStatus("Services", "%d", s.Services)
	if !s.LastUpdated.IsZero() {
		printStatus("Last updated", "%s", s.LastUpdated.Local().Format(time.DateTime))
	}
}

// --- status ---

type healthInfo struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
	Memory struct {
		HeapUsed uint64 `json:"heapUsed"`
	} `json:"memory"`
	KnowledgeBaseSize int `json:"knowledgeBaseSize"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and knowledge base size",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		health, stats, err := probe(cmd.Context(), client)
		if err != nil {
			printStatus("Server", "stopped")
			slog.Debug("status probe failed", "error", err)
			return nil
		}

		printStatus("Server", "%s at %s", health.Status, client.baseURL)
		printStatus("Uptime", "%s", (time.Duration(health.Uptime) * time.Second).String())
		printStatus("Heap", "%.1fMB", float64(health.Memory.HeapUsed)/(1<<20))
		printKnowledgeStats(stats)
		return nil
	},
}

// probe fetches health and stats concurrently.
func probe(ctx context.Context, client *apiClient) (healthInfo, knowledge.Stats, error) {
	var (
		health healthInfo
		stats  knowledge.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := client.get(gctx, "/api/health")
		if err != nil {
			return err
		}
		return decodeJSON(resp, &health)
	})
	g.Go(func() error {
		var err error
		stats, err = fetchStats(gctx, client)
		return err
	})
	if err := g.Wait(); err != nil {
		return healthInfo{}, knowledge.Stats{}, err
	}
	return health, stats, nil
}

// --- runs ---

type runInfo struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	Pages       int       `json:"pages"`
	FailedPages int       `json:"failedPages"`
	FAQs        int       `json:"faqs"`
	Services    int       `json:"services"`
	Intents     int       `json:"intents"`
	LastError   string    `json:"lastError"`
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent scrape runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/scrape/runs?limit=%d", limit))
		if err != nil {
			return err
		}
		var runs []runInfo
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No scrape runs recorded.")
			return nil
		}
		for _, r := range runs {
			fmt.Println(formatRun(r))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}

func formatRun(r runInfo) string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%s  %s  %-9s  pages %d/%d  faqs %d  services %d  intents %d",
		colorize(colorCyan, id),
		r.StartedAt.Local().Format(time.DateTime),
		r.Status,
		r.Pages-r.FailedPages, r.Pages,
		r.FAQs, r.Services, r.Intents,
	)
	if r.LastError != "" {
		line += "  " + colorize(colorRed, truncate(r.LastError, 60))
	}
	return line
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chatbot over MCP on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		s := api.NewMCPServer(api.MCPDeps{Chat: a.chat, Knowledge: a.kb}, version)
		slog.Info("MCP server started (stdio transport)")
		if err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
