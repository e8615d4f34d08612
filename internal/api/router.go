// Package api exposes the chatbot over HTTP, a websocket and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/maninfini/sitebot/internal/assistant"
	"github.com/maninfini/sitebot/internal/chat"
	"github.com/maninfini/sitebot/internal/knowledge"
	"github.com/maninfini/sitebot/internal/monitor"
	"github.com/maninfini/sitebot/internal/scraper"
	"github.com/maninfini/sitebot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Scraper runs one scrape. *scraper.Scraper implements it.
type Scraper interface {
	Run(ctx context.Context) (scraper.Result, error)
}

// RunLister reads the scrape ledger. *storage.Store implements it.
type RunLister interface {
	ListRuns(limit int) ([]storage.ScrapeRun, error)
	GetRun(id string) (storage.ScrapeRun, error)
}

// Reporter produces the resource report. *monitor.Monitor implements it.
type Reporter interface {
	Report() monitor.Report
}

type Deps struct {
	Chat      *chat.Service
	Knowledge *knowledge.Store
	Assistant *assistant.Assistant

	Scraper Scraper   // optional; /api/scrape answers 503 without it
	Runs    RunLister // optional
	Monitor Reporter  // optional

	AllowedOrigins []string
	AdminToken     string    // guards learn and scrape when set
	Started        time.Time // process start, for uptime
}

// Response headers set on every reply.
var securityHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'self';base-uri 'self';font-src 'self' https: data:;form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';upgrade-insecure-requests"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "cross-origin"},
	{"Origin-Agent-Cluster", "?1"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-DNS-Prefetch-Control", "off"},
	{"X-Download-Options", "noopen"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"X-XSS-Protection", "0"},
}

// NewRouter builds the HTTP handler: the public chat routes, the admin
// routes behind BearerAuth and the websocket endpoint.
func NewRouter(deps Deps) http.Handler {
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	for _, h := range securityHeaders {
		r.Use(middleware.SetHeader(h[0], h[1]))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The websocket upgrade needs the raw connection, so it stays outside
	// the compressing group.
	r.Get("/ws/chat", handleChatSocket(deps))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/api/health", handleHealth(deps))
		r.Get("/api/stats", handleStats(deps))
		r.Post("/api/chat", handleChat(deps))
		r.Post("/api/assistant", handleAssistant(deps))
		r.Delete("/api/assistant/{sessionID}", handleAssistantReset(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.AdminToken))
			r.Post("/api/learn", handleLearn(deps))
			r.Post("/api/scrape", handleScrape(deps))
			r.Get("/api/scrape/runs", handleListRuns(deps))
			r.Get("/api/scrape/runs/{runID}", handleGetRun(deps))
			r.Get("/api/monitor", handleMonitor(deps))
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
