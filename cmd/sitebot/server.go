package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/maninfini/sitebot/internal/api"
	"github.com/maninfini/sitebot/internal/assistant"
	"github.com/maninfini/sitebot/internal/chat"
	"github.com/maninfini/sitebot/internal/config"
	"github.com/maninfini/sitebot/internal/interactions"
	"github.com/maninfini/sitebot/internal/knowledge"
	"github.com/maninfini/sitebot/internal/monitor"
	"github.com/maninfini/sitebot/internal/scraper"
	"github.com/maninfini/sitebot/internal/storage"
)

// retrainSchedule rebuilds the classifier and flushes the knowledge base.
const retrainSchedule = "0 */6 * * *"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatbot API server (foreground)",
	Long: `Start the chatbot API server.

The server retrains its classifier every six hours. With --with-scraper it
also scrapes the site on the configured schedule and learns in-process; with
--with-monitor it samples resource usage every five minutes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withScraper, _ := cmd.Flags().GetBool("with-scraper")
		withMonitor, _ := cmd.Flags().GetBool("with-monitor")
		return runServer(withScraper, withMonitor)
	},
}

func init() {
	serveCmd.Flags().Bool("with-scraper", false, "run the scheduled scraper inside the server")
	serveCmd.Flags().Bool("with-monitor", false, "run the resource monitor inside the server")
}

// app holds the data-dir backed services shared by serve and mcp.
type app struct {
	kb    *knowledge.Store
	log   *interactions.Log
	store *storage.Store
	chat  *chat.Service
}

func openApp(cfg config.Config) (*app, error) {
	dataDir := cfg.Storage.DataDir

	kb, err := knowledge.Open(filepath.Join(dataDir, knowledge.FileName))
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}

	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	ilog := interactions.New(filepath.Join(dataDir, interactions.FileName))
	stats := kb.Stats()
	slog.Info("knowledge base loaded", "intents", stats.Intents, "faqs", stats.FAQs, "services", stats.Services)

	return &app{
		kb:    kb,
		log:   ilog,
		store: store,
		chat:  chat.New(kb, ilog),
	}, nil
}

// close saves the knowledge base and closes storage.
func (a *app) close() {
	if err := a.kb.Save(); err != nil {
		slog.Error("saving knowledge base", "error", err)
	}
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

// newGenerator builds the generator for the configured provider. The
// returned close func is never nil.
func newGenerator(ctx context.Context, cfg config.Config) (assistant.Generator, func(), error) {
	a := cfg.Assistant
	switch a.Provider {
	case "openai":
		g, err := assistant.NewOpenAIGenerator(a.OpenAIAPIKey, a.OpenAIBaseURL, a.OpenAIModel)
		if err != nil {
			return nil, func() {}, err
		}
		return g, func() {}, nil
	default:
		g, err := assistant.NewGeminiGenerator(ctx, a.GeminiAPIKey, a.GeminiModel)
		if err != nil {
			return nil, func() {}, err
		}
		return g, func() { g.Close() }, nil
	}
}

func runServer(withScraper, withMonitor bool) error {
	started := time.Now()
	fmt.Fprintf(os.Stderr, "sitebot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	gen, closeGen, err := newGenerator(ctx, cfg)
	switch {
	case errors.Is(err, assistant.ErrNoAPIKey):
		slog.Warn("no assistant API key configured, answering from keyword fallback", "provider", cfg.Assistant.Provider)
	case err != nil:
		return fmt.Errorf("initializing assistant: %w", err)
	default:
		slog.Info("assistant enabled", "provider", cfg.Assistant.Provider)
	}
	defer closeGen()

	sc := scraper.New(scraper.Options{
		SiteURL:      cfg.Scraper.SiteURL,
		Delay:        cfg.ScrapeDelay(),
		SnapshotPath: filepath.Join(cfg.Storage.DataDir, scraper.SnapshotFileName),
		Learner:      scraper.NewLocalLearner(a.chat),
		Recorder:     a.store,
	})

	mon := monitor.New(monitor.Options{
		DataDir: cfg.Storage.DataDir,
		Limits: monitor.Limits{
			MaxMemoryMB: float64(cfg.Monitor.MaxMemoryMB),
			MaxDiskMB:   float64(cfg.Monitor.MaxDiskMB),
		},
		Samples:      a.store,
		Interactions: a.log,
		Started:      started,
	})

	handler := api.NewRouter(api.Deps{
		Chat:           a.chat,
		Knowledge:      a.kb,
		Assistant:      assistant.New(gen),
		Scraper:        sc,
		Runs:           a.store,
		Monitor:        mon,
		AllowedOrigins: cfg.Origins(),
		AdminToken:     cfg.Server.AdminToken,
		Started:        started,
	})
	if cfg.Server.AdminToken == "" {
		slog.Warn("no admin token configured, learn and scrape endpoints are open")
	}

	c := cron.New()
	if _, err := c.AddFunc(retrainSchedule, func() { retrain(a) }); err != nil {
		return fmt.Errorf("scheduling retrain: %w", err)
	}
	if withScraper {
		if _, err := c.AddFunc(cfg.ScrapeSchedule(), func() { runScheduledScrape(ctx, sc) }); err != nil {
			return fmt.Errorf("invalid scrape schedule %q: %w", cfg.ScrapeSchedule(), err)
		}
		slog.Info("scheduled scraping enabled", "schedule", cfg.ScrapeSchedule())
	}
	if withMonitor {
		if err := mon.Register(c); err != nil {
			return err
		}
		mon.Tick()
		slog.Info("resource monitor enabled", "schedule", monitor.TickSchedule)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func retrain(a *app) {
	a.chat.Retrain()
	if err := a.kb.Save(); err != nil {
		slog.Error("saving knowledge base after retrain", "error", err)
		return
	}
	slog.Info("model retrained", "intents", a.kb.Stats().Intents)
}

func runScheduledScrape(ctx context.Context, sc *scraper.Scraper) {
	if _, err := sc.Run(ctx); err != nil {
		slog.Error("scheduled scrape failed", "error", err)
	}
}
