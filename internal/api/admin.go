package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maninfini/sitebot/internal/knowledge"
	"github.com/maninfini/sitebot/internal/storage"
)

type LearnRequest struct {
	Content json.RawMessage       `json:"content"`
	Type    knowledge.ContentType `json:"type"`
}

type learnResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Stats   knowledge.Stats `json:"stats"`
}

type scrapeResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Stats   knowledge.Stats `json:"stats"`
	Run     runView         `json:"run"`
}

type runView struct {
	ID          string     `json:"id"`
	SiteURL     string     `json:"siteUrl,omitempty"`
	Status      string     `json:"status,omitempty"`
	StartedAt   time.Time  `json:"startedAt,omitzero"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Pages       int        `json:"pages"`
	FailedPages int        `json:"failedPages"`
	FAQs        int        `json:"faqs"`
	Services    int        `json:"services"`
	Content     int        `json:"content"`
	Intents     int        `json:"intents"`
	LastError   string     `json:"lastError,omitempty"`
}

func toRunView(r storage.ScrapeRun) runView {
	v := runView{
		ID:          r.ID,
		SiteURL:     r.SiteURL,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		Pages:       r.Pages,
		FailedPages: r.FailedPages,
		FAQs:        r.FAQs,
		Services:    r.Services,
		Content:     r.Content,
		Intents:     r.Intents,
		LastError:   r.LastError,
	}
	if !r.FinishedAt.IsZero() {
		f := r.FinishedAt
		v.FinishedAt = &f
	}
	return v
}

func handleLearn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req LearnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "Missing content or type")
			return
		}

		stats, err := deps.Chat.Learn(req.Type, req.Content)
		switch {
		case err == nil:
		case errors.Is(err, knowledge.ErrMissingContent):
			httpError(w, http.StatusBadRequest, "Missing content or type")
			return
		case errors.Is(err, knowledge.ErrInvalidType):
			httpError(w, http.StatusBadRequest, "Invalid content type")
			return
		case errors.Is(err, knowledge.ErrInvalidContent):
			httpError(w, http.StatusBadRequest, "Invalid content for type %s", req.Type)
			return
		default:
			slog.Error("learning failed", "type", req.Type, "error", err)
			httpError(w, http.StatusInternalServerError, "Learning failed")
			return
		}

		writeJSON(w, http.StatusOK, learnResponse{
			Success: true,
			Message: fmt.Sprintf("Learned %s content successfully", req.Type),
			Stats:   stats,
		})
	}
}

func handleScrape(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Scraper == nil {
			httpError(w, http.StatusServiceUnavailable, "Scraper not configured")
			return
		}

		slog.Info("manual scrape triggered via API")
		// A dropped client does not abort a scrape already under way.
		res, err := deps.Scraper.Run(context.WithoutCancel(r.Context()))
		if err != nil {
			slog.Error("manual scrape failed", "error", err)
			httpError(w, http.StatusInternalServerError, "Manual scraping failed")
			return
		}

		writeJSON(w, http.StatusOK, scrapeResponse{
			Success: true,
			Message: "Manual scraping completed successfully",
			Stats:   deps.Knowledge.Stats(),
			Run: runView{
				ID:          res.RunID,
				Pages:       res.Pages,
				FailedPages: res.FailedPages,
				FAQs:        len(res.FAQs),
				Services:    len(res.Services),
				Content:     len(res.Content),
				Intents:     len(res.Intents),
			},
		})
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusServiceUnavailable, "Run history not available")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		runs, err := deps.Runs.ListRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list runs: %v", err)
			return
		}

		views := make([]runView, len(runs))
		for i, run := range runs {
			views[i] = toRunView(run)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusServiceUnavailable, "Run history not available")
			return
		}
		id := chi.URLParam(r, "runID")

		run, err := deps.Runs.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "run %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get run: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toRunView(run))
	}
}

func handleMonitor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Monitor == nil {
			httpError(w, http.StatusServiceUnavailable, "Monitor not enabled")
			return
		}
		writeJSON(w, http.StatusOK, deps.Monitor.Report())
	}
}
