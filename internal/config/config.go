// Package config loads runtime configuration: compiled defaults, then an
// optional .env file, then BRIEFWIRE_* environment variables, each layer
// overriding the previous one. The feed allow-list can additionally be
// replaced from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Model   ModelConfig
	Sources SourcesConfig
	Mail    MailConfig
	Log     LogConfig
}

type LogConfig struct {
	Level string
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

// ModelConfig points at an OpenAI-compatible completion endpoint. All fields
// empty means run without a model; the deterministic fallbacks carry runs.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Name    string
}

type SourcesConfig struct {
	// AllowedFeedDomains is the feed fetch allow-list. Subdomains of an
	// entry are allowed too.
	AllowedFeedDomains []string
	AllowlistFile      string
	NewsBaseURL        string
	NewsAPIKey         string
	SocialBaseURL      string
	SocialBearerToken  string
	WebSearchBaseURL   string
	WebSearchAPIKey    string
}

type MailConfig struct {
	SMTPAddr string
	From     string
	Username string
	Password string
}

// defaultAllowedFeedDomains is the built-in feed allow-list of widely known
// publications.
var defaultAllowedFeedDomains = []string{
	"techcrunch.com",
	"theverge.com",
	"arstechnica.com",
	"wired.com",
	"engadget.com",
	"cnet.com",
	"zdnet.com",
	"reuters.com",
	"bbc.co.uk",
	"cnn.com",
	"nytimes.com",
	"wsj.com",
	"bloomberg.com",
	"ft.com",
	"economist.com",
	"forbes.com",
	"medium.com",
	"dev.to",
	"hackernoon.com",
	"smashingmagazine.com",
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Model: ModelConfig{
			Name: "gpt-4o-mini",
		},
		Sources: SourcesConfig{
			AllowedFeedDomains: defaultAllowedFeedDomains,
			NewsBaseURL:        "https://api.nytimes.com/svc/search/v2",
			SocialBaseURL:      "https://api.x.com",
		},
		Mail: MailConfig{
			From: "digest@localhost",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration. A .env file in the working directory is loaded
// first when present; BRIEFWIRE_* environment variables override everything.
func Load() (Config, error) {
	// Missing .env is fine; env vars and defaults still apply.
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Sources.AllowlistFile != "" {
		domains, err := loadAllowlistFile(cfg.Sources.AllowlistFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources.AllowedFeedDomains = domains
	}
	return cfg, nil
}

type envSpec struct {
	env   string
	apply func(cfg *Config, raw string)
}

var specs = []envSpec{
	{"BRIEFWIRE_PORT", func(c *Config, v string) { setInt(&c.Server.Port, "BRIEFWIRE_PORT", v) }},
	{"BRIEFWIRE_API_TOKEN", func(c *Config, v string) { c.Server.APIToken = v }},
	{"BRIEFWIRE_DATA_DIR", func(c *Config, v string) { c.Storage.DataDir = v }},
	{"BRIEFWIRE_MODEL_BASE_URL", func(c *Config, v string) { c.Model.BaseURL = v }},
	{"BRIEFWIRE_MODEL_API_KEY", func(c *Config, v string) { c.Model.APIKey = v }},
	{"BRIEFWIRE_MODEL_NAME", func(c *Config, v string) { c.Model.Name = v }},
	{"BRIEFWIRE_ALLOWLIST_FILE", func(c *Config, v string) { c.Sources.AllowlistFile = v }},
	{"BRIEFWIRE_NEWS_BASE_URL", func(c *Config, v string) { c.Sources.NewsBaseURL = v }},
	{"BRIEFWIRE_NEWS_API_KEY", func(c *Config, v string) { c.Sources.NewsAPIKey = v }},
	{"BRIEFWIRE_SOCIAL_BASE_URL", func(c *Config, v string) { c.Sources.SocialBaseURL = v }},
	{"BRIEFWIRE_SOCIAL_BEARER_TOKEN", func(c *Config, v string) { c.Sources.SocialBearerToken = v }},
	{"BRIEFWIRE_WEBSEARCH_BASE_URL", func(c *Config, v string) { c.Sources.WebSearchBaseURL = v }},
	{"BRIEFWIRE_WEBSEARCH_API_KEY", func(c *Config, v string) { c.Sources.WebSearchAPIKey = v }},
	{"BRIEFWIRE_SMTP_ADDR", func(c *Config, v string) { c.Mail.SMTPAddr = v }},
	{"BRIEFWIRE_MAIL_FROM", func(c *Config, v string) { c.Mail.From = v }},
	{"BRIEFWIRE_SMTP_USERNAME", func(c *Config, v string) { c.Mail.Username = v }},
	{"BRIEFWIRE_SMTP_PASSWORD", func(c *Config, v string) { c.Mail.Password = v }},
	{"BRIEFWIRE_LOG_LEVEL", func(c *Config, v string) { c.Log.Level = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if raw := os.Getenv(s.env); raw != "" {
			s.apply(cfg, raw)
		}
	}
}

func setInt(dst *int, env, raw string) {
	i, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", env, raw, err)
		return
	}
	*dst = i
}

type allowlistFile struct {
	AllowedFeedDomains []string `yaml:"allowed_feed_domains"`
}

func loadAllowlistFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allow-list file: %w", err)
	}
	var parsed allowlistFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing allow-list file %s: %w", path, err)
	}
	if len(parsed.AllowedFeedDomains) == 0 {
		return nil, fmt.Errorf("allow-list file %s names no domains", path)
	}
	return parsed.AllowedFeedDomains, nil
}
