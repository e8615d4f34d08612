package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/maninfini/sitebot/internal/config"
	"github.com/maninfini/sitebot/internal/interactions"
	"github.com/maninfini/sitebot/internal/monitor"
	"github.com/maninfini/sitebot/internal/scraper"
	"github.com/maninfini/sitebot/internal/storage"
)

// --- scrape ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the site and send what was found to the server",
	Long: `Scrape the site and post the extracted FAQs, services and intents to the
running server's learn endpoint (scraper.learn_url).

Without --manual the scraper runs once immediately and then on the configured
schedule until interrupted.

Examples:
  sitebot scrape --manual
  SITEBOT_SCRAPE_SCHEDULE="0 3 * * *" sitebot scrape`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manual, _ := cmd.Flags().GetBool("manual")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		sc := scraper.New(scraper.Options{
			SiteURL:      cfg.Scraper.SiteURL,
			Delay:        cfg.ScrapeDelay(),
			SnapshotPath: filepath.Join(cfg.Storage.DataDir, scraper.SnapshotFileName),
			Learner:      scraper.NewHTTPLearner(cfg.Scraper.LearnURL, cfg.Server.AdminToken),
			Recorder:     store,
		})

		if manual {
			printStep("Scraping %s...", cfg.Scraper.SiteURL)
			res, err := sc.Run(ctx)
			if err != nil {
				return fmt.Errorf("scrape failed: %w", err)
			}
			printScrapeResult(res)
			return nil
		}

		schedule := cfg.ScrapeSchedule()
		c := cron.New()
		if _, err := c.AddFunc(schedule, func() { runScheduledScrape(ctx, sc) }); err != nil {
			return fmt.Errorf("invalid scrape schedule %q: %w", schedule, err)
		}

		runScheduledScrape(ctx, sc)
		c.Start()
		printStep("Scraper scheduled (%s), press Ctrl+C to stop", schedule)

		<-ctx.Done()
		<-c.Stop().Done()
		printSuccess("Scraper stopped")
		return nil
	},
}

func init() {
	scrapeCmd.Flags().Bool("manual", false, "run once and exit")
}

func printScrapeResult(res scraper.Result) {
	printSuccess("Scraped %d FAQs, %d services, %d content blocks", len(res.FAQs), len(res.Services), len(res.Content))
	printStatus("Intents", "%d", len(res.Intents))
	printStatus("Pages", "%d", res.Pages)
	if res.RunID != "" {
		printStatus("Run", "%s", res.RunID)
	}
	if res.FailedPages > 0 {
		printWarning("%d of %d pages failed, see the log for details", res.FailedPages, res.Pages)
	}
}

// --- monitor ---

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch memory and disk usage of the data directory",
	Long: `Sample memory and disk usage every five minutes, record the samples and
trim old data when usage turns critical. Cleanup also runs daily at 02:00.

With --once a single sample is taken, printed and recorded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		mon := monitor.New(monitor.Options{
			DataDir: cfg.Storage.DataDir,
			Limits: monitor.Limits{
				MaxMemoryMB: float64(cfg.Monitor.MaxMemoryMB),
				MaxDiskMB:   float64(cfg.Monitor.MaxDiskMB),
			},
			Samples:      store,
			Interactions: interactions.New(filepath.Join(cfg.Storage.DataDir, interactions.FileName)),
		})

		if once {
			s, h := mon.Tick()
			printHealth(s, h, mon.Limits())
			if h.Critical {
				return fmt.Errorf("resource usage is critical")
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watch(ctx, mon)
	},
}

func init() {
	monitorCmd.Flags().Bool("once", false, "take one sample and exit")
}

func watch(ctx context.Context, mon *monitor.Monitor) error {
	c := cron.New()
	if err := mon.Register(c); err != nil {
		return err
	}
	mon.Tick()
	c.Start()
	printStep("Monitor running (%s), press Ctrl+C to stop", monitor.TickSchedule)

	<-ctx.Done()
	<-c.Stop().Done()
	printSuccess("Monitor stopped")
	return nil
}

func printHealth(s monitor.Stats, h monitor.Health, l monitor.Limits) {
	color := colorGreen
	switch h.Status {
	case monitor.StatusWarning:
		color = colorYellow
	case monitor.StatusCritical:
		color = colorRed
	}
	printStatus("Status", "%s", colorize(color, h.Status))
	printStatus("Heap", "%.1fMB of %.0fMB", s.HeapMB, l.MaxMemoryMB)
	printStatus("Data dir", "%.2fMB of %.0fMB", s.DiskMB, l.MaxDiskMB)
	printStatus("Goroutines", "%d", s.Goroutines)
	printStatus("Uptime", "%s", s.Uptime.Round(time.Second))
	if len(h.Warnings) > 0 {
		printWarning("%s", strings.Join(h.Warnings, ", "))
	}
}
