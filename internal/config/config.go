package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GeminiKeyEnv = "GEMINI_API_KEY"
	TavilyKeyEnv = "TAVILY_API_KEY"
	ConfigEnv    = "DOCUEXPLORE_CONFIG"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Gemini      GeminiConfig              `json:"gemini"`
	Search      SearchConfig              `json:"search"`
	Title       TitleConfig               `json:"title"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Redis       RedisConfig               `json:"redis"`
	Log         LogConfig                 `json:"log"`

	// Secrets are read from the environment only.
	GeminiAPIKey string `json:"-"`
	TavilyAPIKey string `json:"-"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address"`
	UploadDir         string   `json:"upload_dir"`
	MaxUploadMB       int      `json:"max_upload_mb"`
	SessionTTLMinutes int      `json:"session_ttl_minutes"`
	QueueSize         int      `json:"queue_size"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

type GeminiConfig struct {
	Model                    string  `json:"model"`
	Temperature              float32 `json:"temperature"`
	TopP                     float32 `json:"top_p"`
	TopK                     float32 `json:"top_k"`
	MaxOutputTokens          int32   `json:"max_output_tokens"`
	PollIntervalSeconds      int     `json:"poll_interval_seconds"`
	ProcessingTimeoutSeconds int     `json:"processing_timeout_seconds"`
}

type SearchConfig struct {
	Provider       string `json:"provider"`
	BaseURL        string `json:"base_url"`
	MaxRetries     int    `json:"max_retries"`
	BackoffBaseMS  int    `json:"backoff_base_ms"`
	MaxResults     int    `json:"max_results"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type TitleConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type LogConfig struct {
	Mode string `json:"mode"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:     ":8501",
			MaxUploadMB:       20,
			SessionTTLMinutes: 60,
			QueueSize:         4,
		},
		Gemini: GeminiConfig{
			Model:                    "gemini-1.5-pro",
			Temperature:              0.7,
			TopP:                     1,
			TopK:                     32,
			MaxOutputTokens:          4096,
			PollIntervalSeconds:      2,
			ProcessingTimeoutSeconds: 300,
		},
		Search: SearchConfig{
			Provider:       "tavily",
			BaseURL:        "https://api.tavily.com",
			MaxRetries:     3,
			BackoffBaseMS:  1000,
			MaxResults:     5,
			TimeoutSeconds: 30,
		},
		Title: TitleConfig{
			Provider: "gemini",
		},
		Providers: map[string]ProviderConfig{},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		Log: LogConfig{Mode: "development"},
	}
}

// Load reads configuration from the provided path (defaults to config.json)
// and the API keys from the environment. A missing file falls back to defaults;
// a missing key is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv(GeminiKeyEnv))
	cfg.TavilyAPIKey = strings.TrimSpace(os.Getenv(TavilyKeyEnv))
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the secrets required by the configured services exist.
// GEMINI_API_KEY is always required; TAVILY_API_KEY only when the search
// provider is tavily, since duckduckgo and google do not use it.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%s must be set", GeminiKeyEnv)
	}
	if c.Search.Provider == "tavily" && c.TavilyAPIKey == "" {
		return fmt.Errorf("%s must be set", TavilyKeyEnv)
	}
	switch c.Title.Provider {
	case "gemini":
	case "openai", "claude":
		if c.Providers[c.Title.Provider].APIKey == "" {
			return fmt.Errorf("providers.%s.api_key must be configured for title generation", c.Title.Provider)
		}
	default:
		return fmt.Errorf("unknown title provider: %s", c.Title.Provider)
	}
	switch c.Search.Provider {
	case "tavily", "duckduckgo", "google":
	default:
		return fmt.Errorf("unknown search provider: %s", c.Search.Provider)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = def.BasicConfig.ServerAddress
	}
	if c.BasicConfig.MaxUploadMB <= 0 {
		c.BasicConfig.MaxUploadMB = def.BasicConfig.MaxUploadMB
	}
	if c.BasicConfig.SessionTTLMinutes <= 0 {
		c.BasicConfig.SessionTTLMinutes = def.BasicConfig.SessionTTLMinutes
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = def.BasicConfig.QueueSize
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = def.Gemini.Model
	}
	if c.Gemini.PollIntervalSeconds <= 0 {
		c.Gemini.PollIntervalSeconds = def.Gemini.PollIntervalSeconds
	}
	if c.Gemini.MaxOutputTokens <= 0 {
		c.Gemini.MaxOutputTokens = def.Gemini.MaxOutputTokens
	}
	c.Search.Provider = strings.ToLower(strings.TrimSpace(c.Search.Provider))
	if c.Search.Provider == "" {
		c.Search.Provider = def.Search.Provider
	}
	if c.Search.BaseURL == "" {
		c.Search.BaseURL = def.Search.BaseURL
	}
	if c.Search.MaxRetries <= 0 {
		c.Search.MaxRetries = def.Search.MaxRetries
	}
	if c.Search.BackoffBaseMS <= 0 {
		c.Search.BackoffBaseMS = def.Search.BackoffBaseMS
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = def.Search.MaxResults
	}
	if c.Search.TimeoutSeconds <= 0 {
		c.Search.TimeoutSeconds = def.Search.TimeoutSeconds
	}
	c.Title.Provider = strings.ToLower(strings.TrimSpace(c.Title.Provider))
	if c.Title.Provider == "" {
		c.Title.Provider = def.Title.Provider
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Redis.Host == "" {
		c.Redis.Host = def.Redis.Host
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = def.Redis.Port
	}
	if c.Log.Mode == "" {
		c.Log.Mode = def.Log.Mode
	}
}

// SessionTTL is the idle lifetime of a user session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.BasicConfig.SessionTTLMinutes) * time.Minute
}

// MaxUploadBytes is the largest accepted PDF.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.BasicConfig.MaxUploadMB) << 20
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gemini.PollIntervalSeconds) * time.Second
}

// ProcessingTimeout bounds the wait for a document to become active; zero means unbounded.
func (c *Config) ProcessingTimeout() time.Duration {
	if c.Gemini.ProcessingTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Gemini.ProcessingTimeoutSeconds) * time.Second
}

func (c *Config) SearchBackoffBase() time.Duration {
	return time.Duration(c.Search.BackoffBaseMS) * time.Millisecond
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}
