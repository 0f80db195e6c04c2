package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MAPRANK_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rod", cfg.Browser.Driver)
	assert.Equal(t, 50, cfg.Resolver.MaxScrollAttempts)
	assert.Equal(t, 10*time.Second, cfg.Resolver.ReadyTimeout)
	assert.Equal(t, time.Second, cfg.Resolver.ScrollPause)
	assert.Equal(t, time.Second, cfg.Batch.Pace)
	assert.False(t, cfg.Resolver.StopOnStagnation)
	assert.True(t, cfg.Feed.EncodeQuery)
	assert.Equal(t, "#searchIframe", cfg.Feed.FrameSelector)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAPRANK_CONFIG", "")
	t.Setenv("MAPRANK_MAX_SCROLLS", "5")
	t.Setenv("MAPRANK_PACE", "250ms")
	t.Setenv("MAPRANK_API_KEYS", "a, b ,,c")
	t.Setenv("MAPRANK_BROWSER_DRIVER", "chromedp")
	t.Setenv("MAPRANK_HEADLESS", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Resolver.MaxScrollAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Pace)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.Equal(t, "chromedp", cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless, "unparseable values keep the previous setting")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maprank.yaml")
	yamlDoc := `
resolver:
  maxScrollAttempts: 20
  scrollPause: 500ms
  stopOnStagnation: true
feed:
  baseURL: https://example.test/search/
  frameSelector: ""
kafka:
  brokers: [k1:9092, k2:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("MAPRANK_CONFIG", path)
	t.Setenv("MAPRANK_MAX_SCROLLS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Resolver.MaxScrollAttempts, "env wins over file")
	assert.Equal(t, 500*time.Millisecond, cfg.Resolver.ScrollPause)
	assert.True(t, cfg.Resolver.StopOnStagnation)
	assert.Equal(t, "https://example.test/search/", cfg.Feed.BaseURL)
	assert.Empty(t, cfg.Feed.FrameSelector)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "div.Ryr1F#_pcmap_list_scroll_container", cfg.Feed.ContainerSelector, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("MAPRANK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }},
		{"zero scroll budget", func(c *Config) { c.Resolver.MaxScrollAttempts = 0 }},
		{"zero ready timeout", func(c *Config) { c.Resolver.ReadyTimeout = 0 }},
		{"stagnation without limit", func(c *Config) {
			c.Resolver.StopOnStagnation = true
			c.Resolver.StagnationLimit = 0
		}},
		{"bad item selector", func(c *Config) { c.Feed.Selectors.Item = "li[" }},
		{"no scroll selector", func(c *Config) { c.Feed.ScrollSelector = "" }},
		{"no concurrency", func(c *Config) { c.Batch.MaxConcurrent = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
