// Package scraper extracts FAQs, services and free text from the marketing
// site, turns them into intents and hands them to a Learner.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/maninfini/sitebot/internal/jsonfile"
	"github.com/maninfini/sitebot/internal/knowledge"
	"github.com/maninfini/sitebot/internal/storage"
)

const (
	// SnapshotFileName is the reference dump written after each run.
	SnapshotFileName = "scraped-content.json"

	userAgent    = "Mozilla/5.0 (compatible; ManinfiniBot/1.0)"
	fetchTimeout = 10 * time.Second
	maxPageBytes = 5 << 20
)

// DefaultPages are the site paths visited on every run.
var DefaultPages = []string{"/", "/services", "/about", "/contact", "/portfolio", "/blog"}

// RunRecorder keeps a ledger of runs. storage.Store implements it.
type RunRecorder interface {
	StartRun(siteURL string, startedAt time.Time) (string, error)
	FinishRun(r storage.ScrapeRun) error
}

type Options struct {
	SiteURL      string
	Pages        []string      // defaults to DefaultPages
	Delay        time.Duration // pause between page fetches
	SnapshotPath string        // empty disables the snapshot
	Learner      Learner
	Recorder     RunRecorder // optional
	HTTPClient   *http.Client
}

// Snapshot is the content of scraped-content.json.
type Snapshot struct {
	FAQs        []knowledge.FAQ             `json:"faqs"`
	Services    []knowledge.Service         `json:"services"`
	Content     []ContentBlock              `json:"content"`
	Intents     map[string]knowledge.Intent `json:"intents"`
	LastScraped time.Time                   `json:"lastScraped"`
}

// Result summarises one run.
type Result struct {
	Snapshot
	RunID       string `json:"runId,omitempty"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failedPages"`
}

type Scraper struct {
	opts Options
	now  func() time.Time

	mu sync.Mutex // one run at a time
}

func New(opts Options) *Scraper {
	if len(opts.Pages) == 0 {
		opts.Pages = DefaultPages
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: fetchTimeout}
	}
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	return &Scraper{opts: opts, now: time.Now}
}

// Run fetches every page in order, deduplicates what was found, sends the
// non-empty batches to the learner and writes the snapshot. Page and learner
// failures are logged and skipped; only a snapshot write failure or
// cancellation fails the run.
func (s *Scraper) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	slog.Info("scrape started", "site", s.opts.SiteURL, "pages", len(s.opts.Pages))

	var res Result
	if s.opts.Recorder != nil {
		id, err := s.opts.Recorder.StartRun(s.opts.SiteURL, started)
		if err != nil {
			slog.Warn("could not record scrape run", "error", err)
		}
		res.RunID = id
	}

	runErr := s.run(ctx, &res)
	s.finish(res, runErr)
	if runErr != nil {
		return res, runErr
	}

	slog.Info("scrape completed",
		"faqs", len(res.FAQs), "services", len(res.Services), "content", len(res.Content),
		"intents", len(res.Intents), "failed_pages", res.FailedPages, "duration", s.now().Sub(started))
	return res, nil
}

func (s *Scraper) run(ctx context.Context, res *Result) error {
	var faqs []knowledge.FAQ
	var services []knowledge.Service
	var content []ContentBlock

	for i, path := range s.opts.Pages {
		if i > 0 && s.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		url := s.opts.SiteURL + path
		res.Pages++
		page, err := s.scrapePage(ctx, url)
		if err != nil {
			res.FailedPages++
			slog.Warn("page scrape failed", "url", url, "error", err)
			continue
		}
		slog.Debug("page scraped", "url", url, "faqs", len(page.FAQs), "services", len(page.Services), "content", len(page.Content))
		faqs = append(faqs, page.FAQs...)
		services = append(services, page.Services...)
		content = append(content, page.Content...)
	}

	res.FAQs = Dedupe(faqs, faqKey)
	res.Services = Dedupe(services, serviceKey)
	res.Content = Dedupe(content, contentKey)
	res.Intents = GenerateIntents(res.FAQs, res.Services)

	s.send(ctx, knowledge.TypeFAQ, len(res.FAQs), res.FAQs)
	s.send(ctx, knowledge.TypeService, len(res.Services), res.Services)
	s.send(ctx, knowledge.TypeIntent, len(res.Intents), res.Intents)

	res.LastScraped = s.now().UTC()
	if s.opts.SnapshotPath != "" {
		if err := jsonfile.Write(s.opts.SnapshotPath, res.Snapshot); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	return nil
}

func (s *Scraper) send(ctx context.Context, typ knowledge.ContentType, n int, batch any) {
	if n == 0 || s.opts.Learner == nil {
		return
	}
	if err := s.opts.Learner.Learn(ctx, typ, batch); err != nil {
		slog.Warn("sending batch to learner failed", "type", typ, "items", n, "error", err)
		return
	}
	slog.Info("sent batch to learner", "type", typ, "items", n)
}

func (s *Scraper) finish(res Result, runErr error) {
	if s.opts.Recorder == nil || res.RunID == "" {
		return
	}
	r := storage.ScrapeRun{
		ID:          res.RunID,
		FinishedAt:  s.now(),
		Pages:       res.Pages,
		FailedPages: res.FailedPages,
		FAQs:        len(res.FAQs),
		Services:    len(res.Services),
		Content:     len(res.Content),
		Intents:     len(res.Intents),
	}
	if runErr != nil {
		r.LastError = runErr.Error()
	}
	if err := s.opts.Recorder.FinishRun(r); err != nil {
		slog.Warn("could not finish scrape run record", "run_id", res.RunID, "error", err)
	}
}

func (s *Scraper) scrapePage(ctx context.Context, url string) (Page, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	root, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("parsing html: %w", err)
	}
	return ExtractPage(goquery.NewDocumentFromNode(root), url, s.now().UTC()), nil
}

// ReadSnapshot loads a snapshot written by Run.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	if err := jsonfile.Read(path, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
