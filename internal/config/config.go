package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Scraper   ScraperConfig
	Assistant AssistantConfig
	Monitor   MonitorConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins string
	AdminToken     string // guards learn and scrape when set
}

type StorageConfig struct {
	DataDir string
}

type ScraperConfig struct {
	SiteURL  string
	LearnURL string
	Schedule string
	Delay    string
}

type AssistantConfig struct {
	Provider      string
	GeminiModel   string
	GeminiAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIAPIKey  string
}

type MonitorConfig struct {
	MaxMemoryMB int
	MaxDiskMB   int
}

type LogConfig struct {
	Level string
}

const (
	devScrapeSchedule  = "*/30 * * * *"
	prodScrapeSchedule = "0 */12 * * *"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           3001,
			Env:            "production",
			AllowedOrigins: "http://localhost:8080,http://localhost:3000,http://localhost:5173,https://maninfini.com",
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Scraper: ScraperConfig{
			SiteURL:  "https://maninfini.com",
			LearnURL: "http://localhost:3001/api/learn",
			Delay:    "1s",
		},
		Assistant: AssistantConfig{
			Provider:      "gemini",
			GeminiModel:   "gemini-2.0-flash-exp",
			OpenAIBaseURL: "https://openrouter.ai/api/v1",
			OpenAIModel:   "google/gemini-2.0-flash-exp:free",
		},
		Monitor: MonitorConfig{
			MaxMemoryMB: 1024,
			MaxDiskMB:   100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// JSON config file at $XDG_CONFIG_HOME/sitebot/config.json and the process
// environment, in increasing order of precedence. API keys missing from the
// environment are looked up in the secrets file.
//
// No key is required: without an AI key the assistant answers from its
// keyword fallback.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.AdminToken == "" {
		if tok, err := secrets.Get("admin_token"); err == nil && tok != "" {
			cfg.Server.AdminToken = tok
		}
	}
	if cfg.Assistant.GeminiAPIKey == "" {
		if key, err := secrets.Get("gemini_api_key"); err == nil && key != "" {
			cfg.Assistant.GeminiAPIKey = key
		}
	}
	if cfg.Assistant.OpenAIAPIKey == "" {
		if key, err := secrets.Get("openai_api_key"); err == nil && key != "" {
			cfg.Assistant.OpenAIAPIKey = key
		}
	}

	switch cfg.Assistant.Provider {
	case "gemini", "openai":
	default:
		return Config{}, fmt.Errorf("invalid assistant.provider %q: want gemini or openai", cfg.Assistant.Provider)
	}
	if _, err := time.ParseDuration(cfg.Scraper.Delay); err != nil {
		return Config{}, fmt.Errorf("invalid scraper.delay %q: %w", cfg.Scraper.Delay, err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs with env=development.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Env, "development")
}

// ScrapeSchedule returns the configured cron expression, or the
// environment-dependent default when none is set.
func (c Config) ScrapeSchedule() string {
	if c.Scraper.Schedule != "" {
		return c.Scraper.Schedule
	}
	if c.IsDevelopment() {
		return devScrapeSchedule
	}
	return prodScrapeSchedule
}

// ScrapeDelay is the pause between page fetches. Load validates it.
func (c Config) ScrapeDelay() time.Duration {
	d, err := time.ParseDuration(c.Scraper.Delay)
	if err != nil {
		return time.Second
	}
	return d
}

// Origins splits the allowed origins list.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
