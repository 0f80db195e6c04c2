package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/maprank/feed"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Feed      FeedConfig      `yaml:"feed"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Batch     BatchConfig     `yaml:"batch"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the render session driver.
type BrowserConfig struct {
	// Driver selects the automation backend: "rod" (default) or "chromedp".
	Driver string `yaml:"driver"`

	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"noSandbox"` // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browserBin"`

	// Proxy is the proxy URL for all browser traffic.
	Proxy string `yaml:"proxy"`

	// ControlURL attaches to an already running Chrome over CDP instead of
	// launching one. The attached browser is never killed on shutdown.
	ControlURL string `yaml:"controlURL"`

	UserAgent      string `yaml:"userAgent"`
	AcceptLanguage string `yaml:"acceptLanguage"` // default: "ko-KR,ko;q=0.9"

	// BlockedResourceTypes lists resource types that are never loaded.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string `yaml:"blockedResourceTypes"`
}

// FeedConfig describes where the result feed lives and how it is marked up.
type FeedConfig struct {
	// BaseURL is prefixed to the query to address the search view.
	BaseURL string `yaml:"baseURL"` // default: "https://map.naver.com/p/search/"

	// EncodeQuery path-escapes the query. Disable to reproduce raw concatenation.
	EncodeQuery bool `yaml:"encodeQuery"` // default: true

	// FrameSelector locates the iframe hosting the feed. Empty means the feed
	// is in the top-level document.
	FrameSelector string `yaml:"frameSelector"` // default: "#searchIframe"

	// ContainerSelector must be present before the feed is read.
	ContainerSelector string `yaml:"containerSelector"`

	// ScrollSelector is the scrollable element that lazy-loads more entries.
	ScrollSelector string `yaml:"scrollSelector"`

	Selectors feed.Selectors `yaml:"selectors"`
}

// ResolverConfig controls a single rank resolution.
type ResolverConfig struct {
	MaxScrollAttempts int           `yaml:"maxScrollAttempts"` // default: 50
	ReadyTimeout      time.Duration `yaml:"readyTimeout"`      // default: 10s
	ScrollPause       time.Duration `yaml:"scrollPause"`       // default: 1s

	// StopOnStagnation ends a resolution early once scrolling stops adding entries.
	StopOnStagnation bool `yaml:"stopOnStagnation"` // default: false
	StagnationLimit  int  `yaml:"stagnationLimit"`  // default: 3
}

// BatchConfig controls batch execution and the async job store.
type BatchConfig struct {
	Pace          time.Duration `yaml:"pace"`          // default: 1s
	MaxPairs      int           `yaml:"maxPairs"`      // default: 500
	MaxConcurrent int           `yaml:"maxConcurrent"` // default: 1
	JobTTL        time.Duration `yaml:"jobTTL"`        // default: 1h
	MaxJobs       int           `yaml:"maxJobs"`       // default: 1000
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"apiKeys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"` // default: 2
	Burst             int     `yaml:"burst"`             // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"

	// File, when set, additionally writes logs to a size-rotated file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`  // default: 50
	MaxBackups int    `yaml:"maxBackups"` // default: 3
}

// KafkaConfig controls the optional result-row publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"` // default: "maprank.results"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36"

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Browser: BrowserConfig{
			Driver:               "rod",
			Headless:             true,
			NoSandbox:            true,
			UserAgent:            defaultUserAgent,
			AcceptLanguage:       "ko-KR,ko;q=0.9",
			BlockedResourceTypes: []string{"Image", "Font", "Media"},
		},
		Feed: FeedConfig{
			BaseURL:           "https://map.naver.com/p/search/",
			EncodeQuery:       true,
			FrameSelector:     "#searchIframe",
			ContainerSelector: "div.Ryr1F#_pcmap_list_scroll_container",
			ScrollSelector:    "#_pcmap_list_scroll_container",
			Selectors:         feed.DefaultSelectors,
		},
		Resolver: ResolverConfig{
			MaxScrollAttempts: 50,
			ReadyTimeout:      10 * time.Second,
			ScrollPause:       1 * time.Second,
			StagnationLimit:   3,
		},
		Batch: BatchConfig{
			Pace:          1 * time.Second,
			MaxPairs:      500,
			MaxConcurrent: 1,
			JobTTL:        1 * time.Hour,
			MaxJobs:       1000,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Kafka: KafkaConfig{
			Topic: "maprank.results",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// MAPRANK_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("MAPRANK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("MAPRANK_HOST", c.Server.Host)
	c.Server.Port = envIntOr("MAPRANK_PORT", c.Server.Port)
	c.Server.Mode = envOr("MAPRANK_MODE", c.Server.Mode)

	c.Browser.Driver = envOr("MAPRANK_BROWSER_DRIVER", c.Browser.Driver)
	c.Browser.Headless = envBoolOr("MAPRANK_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = envBoolOr("MAPRANK_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("MAPRANK_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.Proxy = envOr("MAPRANK_PROXY", c.Browser.Proxy)
	c.Browser.ControlURL = envOr("MAPRANK_CDP_URL", c.Browser.ControlURL)
	c.Browser.UserAgent = envOr("MAPRANK_USER_AGENT", c.Browser.UserAgent)
	c.Browser.AcceptLanguage = envOr("MAPRANK_ACCEPT_LANGUAGE", c.Browser.AcceptLanguage)
	c.Browser.BlockedResourceTypes = envSliceOr("MAPRANK_BLOCKED_RESOURCES", c.Browser.BlockedResourceTypes)

	c.Feed.BaseURL = envOr("MAPRANK_BASE_URL", c.Feed.BaseURL)
	c.Feed.EncodeQuery = envBoolOr("MAPRANK_ENCODE_QUERY", c.Feed.EncodeQuery)
	c.Feed.FrameSelector = envOr("MAPRANK_FRAME_SELECTOR", c.Feed.FrameSelector)
	c.Feed.ContainerSelector = envOr("MAPRANK_CONTAINER_SELECTOR", c.Feed.ContainerSelector)
	c.Feed.ScrollSelector = envOr("MAPRANK_SCROLL_SELECTOR", c.Feed.ScrollSelector)
	c.Feed.Selectors.Item = envOr("MAPRANK_ITEM_SELECTOR", c.Feed.Selectors.Item)
	c.Feed.Selectors.Ad = envOr("MAPRANK_AD_SELECTOR", c.Feed.Selectors.Ad)
	c.Feed.Selectors.Name = envOr("MAPRANK_NAME_SELECTOR", c.Feed.Selectors.Name)

	c.Resolver.MaxScrollAttempts = envIntOr("MAPRANK_MAX_SCROLLS", c.Resolver.MaxScrollAttempts)
	c.Resolver.ReadyTimeout = envDurationOr("MAPRANK_READY_TIMEOUT", c.Resolver.ReadyTimeout)
	c.Resolver.ScrollPause = envDurationOr("MAPRANK_SCROLL_PAUSE", c.Resolver.ScrollPause)
	c.Resolver.StopOnStagnation = envBoolOr("MAPRANK_STOP_ON_STAGNATION", c.Resolver.StopOnStagnation)
	c.Resolver.StagnationLimit = envIntOr("MAPRANK_STAGNATION_LIMIT", c.Resolver.StagnationLimit)

	c.Batch.Pace = envDurationOr("MAPRANK_PACE", c.Batch.Pace)
	c.Batch.MaxPairs = envIntOr("MAPRANK_MAX_PAIRS", c.Batch.MaxPairs)
	c.Batch.MaxConcurrent = envIntOr("MAPRANK_MAX_CONCURRENT_BATCHES", c.Batch.MaxConcurrent)
	c.Batch.JobTTL = envDurationOr("MAPRANK_JOB_TTL", c.Batch.JobTTL)
	c.Batch.MaxJobs = envIntOr("MAPRANK_MAX_JOBS", c.Batch.MaxJobs)

	c.Auth.Enabled = envBoolOr("MAPRANK_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("MAPRANK_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("MAPRANK_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("MAPRANK_RATE_BURST", c.RateLimit.Burst)

	c.Log.Level = envOr("MAPRANK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("MAPRANK_LOG_FORMAT", c.Log.Format)
	c.Log.File = envOr("MAPRANK_LOG_FILE", c.Log.File)

	c.Kafka.Brokers = envSliceOr("MAPRANK_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = envOr("MAPRANK_KAFKA_TOPIC", c.Kafka.Topic)

	c.Metrics.Enabled = envBoolOr("MAPRANK_METRICS_ENABLED", c.Metrics.Enabled)
}

// Validate rejects configurations the resolver cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "rod", "chromedp":
	default:
		return fmt.Errorf("config: unknown browser driver %q", c.Browser.Driver)
	}
	if c.Resolver.MaxScrollAttempts < 1 {
		return fmt.Errorf("config: max scroll attempts must be positive, got %d", c.Resolver.MaxScrollAttempts)
	}
	if c.Resolver.ReadyTimeout <= 0 {
		return fmt.Errorf("config: ready timeout must be positive")
	}
	if c.Resolver.StopOnStagnation && c.Resolver.StagnationLimit < 1 {
		return fmt.Errorf("config: stagnation limit must be positive when stop-on-stagnation is enabled")
	}
	if c.Batch.MaxPairs < 1 || c.Batch.MaxConcurrent < 1 {
		return fmt.Errorf("config: batch limits must be positive")
	}
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("config: feed base URL is empty")
	}
	if c.Feed.ContainerSelector == "" || c.Feed.ScrollSelector == "" {
		return fmt.Errorf("config: container and scroll selectors are required")
	}
	if err := c.Feed.Selectors.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
