package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Extraction policies understood by the extractor.
const (
	PolicyParagraphs         = "paragraphs"
	PolicyParagraphsHeadings = "paragraphs_headings"
	PolicyReadability        = "readability"
)

// Memory backends.
const (
	MemoryBackendLocal = "memory"
	MemoryBackendRedis = "redis"
)

const (
	DefaultLLMURL    = "https://api.together.xyz/v1/chat/completions"
	DefaultLLMModel  = "meta-llama/Llama-3-70b-chat-hf"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultRSSURL    = "https://finance.yahoo.com/news/rssindex"

	DefaultTemperature = 0.7
	DefaultMaxRetries  = 3
)

type LLMConfig struct {
	URL            string  `json:"url"`
	Model          string  `json:"model"`
	APIKey         string  `json:"api_key"`
	TopP           float64 `json:"top_p"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`

	// Pointers so an explicit 0 (greedy decoding, no retries) is kept.
	Temperature *float64 `json:"temperature"`
	MaxRetries  *int     `json:"max_retries"`

	// Consecutive failures before the breaker opens; 0 disables it.
	BreakerThreshold    int `json:"breaker_threshold"`
	BreakerCooldownSecs int `json:"breaker_cooldown_seconds"`
}

// GenerationTemperature is the configured temperature, or the default when unset.
func (l LLMConfig) GenerationTemperature() float64 {
	if l.Temperature == nil {
		return DefaultTemperature
	}
	return *l.Temperature
}

// RetryBudget is the configured retry count, or the default when unset.
func (l LLMConfig) RetryBudget() int {
	if l.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *l.MaxRetries
}

type ExtractorConfig struct {
	Policy         string `json:"policy"`
	UserAgent      string `json:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxSizeMB      int    `json:"max_size_mb"`
	PDFLicenseKey  string `json:"pdf_license_key"`
}

type MemoryConfig struct {
	Backend           string `json:"backend"`
	Capacity          int    `json:"capacity"`
	SessionTTLMinutes int    `json:"session_ttl_minutes"`
}

type SourcesConfig struct {
	NewsAPI struct {
		APIKey   string `json:"api_key"`
		Query    string `json:"query"`
		Language string `json:"language"`
	} `json:"newsapi"`
	RSS struct {
		URL string `json:"url"`
	} `json:"rss"`
	Reddit struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		UserAgent    string `json:"user_agent"`
		Subreddit    string `json:"subreddit"`
	} `json:"reddit"`
	Limit          int `json:"limit"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	LLM       LLMConfig       `json:"llm"`
	Extractor ExtractorConfig `json:"extractor"`
	Memory    MemoryConfig    `json:"memory"`
	Sources   SourcesConfig   `json:"sources"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton).
// Secrets missing from the file are taken from the environment; a .env file next to
// the binary is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Printf("[Config] Loaded .env")
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		c.applyEnv()
		c.ApplyDefaults()

		if c.Server.JWTSecret == "" {
			cfgErr = errors.New("jwtSecret must be set in config")
			return
		}
		if err := c.validate(); err != nil {
			cfgErr = err
			return
		}
		cfg = &c
	})
	return cfg, cfgErr
}

// FromEnv builds a config with no file: defaults plus secrets from the
// environment (and .env). Used by one-shot commands that never serve HTTP.
func FromEnv() *Config {
	_ = godotenv.Load()
	c := &Config{}
	c.applyEnv()
	c.ApplyDefaults()
	return c
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}

func (c *Config) applyEnv() {
	setIfEmpty(&c.Server.JWTSecret, "OPENLENS_JWT_SECRET")
	setIfEmpty(&c.LLM.APIKey, "TOGETHER_API_KEY")
	setIfEmpty(&c.Extractor.PDFLicenseKey, "UNIPDF_LICENSE_KEY")
	setIfEmpty(&c.Sources.NewsAPI.APIKey, "NEWSAPI_KEY")
	setIfEmpty(&c.Sources.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setIfEmpty(&c.Sources.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setIfEmpty(&c.Sources.Reddit.UserAgent, "REDDIT_USER_AGENT")
}

func setIfEmpty(dst *string, env string) {
	if *dst != "" {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	c.Server.Subpath = strings.TrimRight(c.Server.Subpath, "/")

	if c.LLM.URL == "" {
		c.LLM.URL = DefaultLLMURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLLMModel
	}
	if c.LLM.Temperature == nil {
		t := DefaultTemperature
		c.LLM.Temperature = &t
	}
	if c.LLM.TopP == 0 {
		c.LLM.TopP = 0.9
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxRetries == nil {
		n := DefaultMaxRetries
		c.LLM.MaxRetries = &n
	}
	if c.LLM.BreakerCooldownSecs == 0 {
		c.LLM.BreakerCooldownSecs = 60
	}

	if c.Extractor.Policy == "" {
		c.Extractor.Policy = PolicyParagraphs
	}
	if c.Extractor.UserAgent == "" {
		c.Extractor.UserAgent = DefaultUserAgent
	}
	if c.Extractor.TimeoutSeconds == 0 {
		c.Extractor.TimeoutSeconds = 20
	}
	if c.Extractor.MaxSizeMB == 0 {
		c.Extractor.MaxSizeMB = 10
	}

	if c.Memory.Backend == "" {
		c.Memory.Backend = MemoryBackendLocal
	}
	if c.Memory.SessionTTLMinutes == 0 {
		c.Memory.SessionTTLMinutes = 120
	}

	if c.Sources.NewsAPI.Query == "" {
		c.Sources.NewsAPI.Query = "technology"
	}
	if c.Sources.NewsAPI.Language == "" {
		c.Sources.NewsAPI.Language = "en"
	}
	if c.Sources.RSS.URL == "" {
		c.Sources.RSS.URL = DefaultRSSURL
	}
	if c.Sources.Reddit.Subreddit == "" {
		c.Sources.Reddit.Subreddit = "technology"
	}
	if c.Sources.Reddit.UserAgent == "" {
		c.Sources.Reddit.UserAgent = "openlens/1.0"
	}
	if c.Sources.Limit == 0 {
		c.Sources.Limit = 10
	}
	if c.Sources.TimeoutSeconds == 0 {
		c.Sources.TimeoutSeconds = 15
	}
}

func (c *Config) validate() error {
	switch c.Extractor.Policy {
	case PolicyParagraphs, PolicyParagraphsHeadings, PolicyReadability:
	default:
		return fmt.Errorf("unknown extractor policy %q", c.Extractor.Policy)
	}
	switch c.Memory.Backend {
	case MemoryBackendLocal:
	case MemoryBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("memory backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown memory backend %q", c.Memory.Backend)
	}
	if c.Memory.Capacity < 0 {
		return errors.New("memory.capacity must not be negative")
	}
	return nil
}
