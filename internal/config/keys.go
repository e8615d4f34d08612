package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	legacy  string // plain env var honoured when env is unset
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SITEBOT_SERVER_PORT", legacy: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.env", typ: kString, env: "SITEBOT_ENV", legacy: "NODE_ENV",
		apply:   func(cfg *Config, v any) { cfg.Server.Env = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Env },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "SITEBOT_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "server.admin_token", typ: kString, env: "SITEBOT_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SITEBOT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "scraper.site_url", typ: kString, env: "SITEBOT_SITE_URL",
		apply:   func(cfg *Config, v any) { cfg.Scraper.SiteURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.SiteURL },
	},
	{
		key: "scraper.learn_url", typ: kString, env: "SITEBOT_LEARN_URL",
		apply:   func(cfg *Config, v any) { cfg.Scraper.LearnURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.LearnURL },
	},
	{
		key: "scraper.schedule", typ: kString, env: "SITEBOT_SCRAPE_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Scraper.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.Schedule },
	},
	{
		key: "scraper.delay", typ: kString, env: "SITEBOT_SCRAPE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Scraper.Delay = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.Delay },
	},
	{
		key: "assistant.provider", typ: kString, env: "SITEBOT_ASSISTANT_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.Provider },
	},
	{
		key: "assistant.gemini_model", typ: kString, env: "SITEBOT_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.GeminiModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.GeminiModel },
	},
	{
		key: "assistant.gemini_api_key", typ: kString, env: "GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Assistant.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.GeminiAPIKey },
	},
	{
		key: "assistant.openai_base_url", typ: kString, env: "SITEBOT_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.OpenAIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.OpenAIBaseURL },
	},
	{
		key: "assistant.openai_model", typ: kString, env: "SITEBOT_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.OpenAIModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.OpenAIModel },
	},
	{
		key: "assistant.openai_api_key", typ: kString, env: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Assistant.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.OpenAIAPIKey },
	},
	{
		key: "monitor.max_memory_mb", typ: kInt, env: "SITEBOT_MAX_MEMORY_MB",
		apply:   func(cfg *Config, v any) { cfg.Monitor.MaxMemoryMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitor.MaxMemoryMB },
	},
	{
		key: "monitor.max_disk_mb", typ: kInt, env: "SITEBOT_MAX_DISK_MB",
		apply:   func(cfg *Config, v any) { cfg.Monitor.MaxDiskMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitor.MaxDiskMB },
	},
	{
		key: "log.level", typ: kString, env: "SITEBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.env, os.Getenv(s.env)
		if raw == "" && s.legacy != "" {
			name, raw = s.legacy, os.Getenv(s.legacy)
		}
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "var", name, "value", raw, "error", err)
			}
		}
	}
}
