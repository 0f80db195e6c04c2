package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/use-agent/maprank/batch"
	"github.com/use-agent/maprank/config"
	"github.com/use-agent/maprank/feed"
	"github.com/use-agent/maprank/logging"
	"github.com/use-agent/maprank/metrics"
	"github.com/use-agent/maprank/resolver"
	"github.com/use-agent/maprank/session"
)

// app holds the components every sub-command shares.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	browser session.Browser
	runner  *batch.Runner

	logCloser io.Closer
}

// newApp loads configuration, sets up logging to logOut and launches the
// browser. Collectors are only registered when withMetrics is set.
func newApp(logOut io.Writer, withMetrics bool) (*app, error) {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	a := &app{cfg: cfg, logCloser: logging.Setup(cfg.Log, logOut)}
	if withMetrics {
		a.metrics = metrics.New(nil)
	}

	// ── 3. Compile feed selectors ───────────────────────────────────
	parser, err := feed.NewParser(cfg.Feed.Selectors)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("compiling feed selectors: %w", err)
	}
	res := resolver.New(resolver.OptionsFromConfig(cfg), parser, a.metrics)
	a.runner = &batch.Runner{Resolver: res, Pace: cfg.Batch.Pace, Metrics: a.metrics}

	// ── 4. Launch browser ───────────────────────────────────────────
	browser, err := session.New(cfg.Browser, cfg.Feed.FrameSelector)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("starting %s browser: %w", cfg.Browser.Driver, err)
	}
	a.browser = browser
	slog.Info("browser ready",
		"driver", a.browser.Name(),
		"headless", cfg.Browser.Headless,
		"attached", cfg.Browser.ControlURL != "",
	)
	return a, nil
}

// Close shuts the browser down and flushes the log file.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			slog.Warn("closing browser failed", "error", err)
		}
	}
	_ = a.logCloser.Close()
}
