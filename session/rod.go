package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/maprank/config"
	"github.com/ysmood/gson"
)

// RodBrowser opens sessions as tabs of one go-rod controlled Chrome.
// It is safe for concurrent use.
type RodBrowser struct {
	browser       *rod.Browser
	launcher      *launcher.Launcher // nil when attached via ControlURL
	cfg           config.BrowserConfig
	frameSelector string
}

// NewRodBrowser launches Chrome, or attaches to cfg.ControlURL when set.
func NewRodBrowser(cfg config.BrowserConfig, frameSelector string) (*RodBrowser, error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher

	if controlURL == "" {
		l = launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.Proxy != "" {
			l = l.Proxy(cfg.Proxy)
		}

		l.Set(flags.Flag("disable-gpu"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("no-first-run"))
		l.Set(flags.Flag("log-level"), "3")

		u, err := l.Launch()
		if err != nil {
			return nil, acquisitionError("failed to launch browser", err)
		}
		controlURL = u
		slog.Info("browser launched", "driver", "rod", "controlURL", controlURL)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, acquisitionError("failed to connect to browser", err)
	}

	return &RodBrowser{
		browser:       browser,
		launcher:      l,
		cfg:           cfg,
		frameSelector: frameSelector,
	}, nil
}

// Name implements Browser.
func (b *RodBrowser) Name() string { return "rod" }

// Open creates a new tab with the configured user agent, language header and
// resource blocking installed before the first navigation.
func (b *RodBrowser) Open(ctx context.Context) (Session, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, acquisitionError("failed to open tab", err)
	}
	// Detach from ctx; each Session call binds its own.
	page = page.Context(context.Background())

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.cfg.UserAgent,
			AcceptLanguage: b.cfg.AcceptLanguage,
		}); err != nil {
			_ = page.Close()
			return nil, acquisitionError("failed to set user agent", err)
		}
	}
	if b.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": b.cfg.AcceptLanguage}),
		}.Call(page)
	}

	return &rodSession{
		page:          page,
		router:        blockResources(page, b.cfg.BlockedResourceTypes),
		frameSelector: b.frameSelector,
	}, nil
}

// Close shuts the browser down. An attached browser is left running.
func (b *RodBrowser) Close() error {
	if b.launcher == nil {
		slog.Info("detaching from browser", "driver", "rod")
		return nil
	}
	slog.Info("browser shutting down", "driver", "rod")
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

type rodSession struct {
	page          *rod.Page
	router        *rod.HijackRouter
	frameSelector string

	// frame is the feed document once WaitForElement has located the iframe.
	frame *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	s.frame = nil
	return s.page.Context(ctx).Navigate(url)
}

func (s *rodSession) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc := s.page.Context(waitCtx)

	// ── 1. Enter the feed frame ─────────────────────────────────────
	if s.frameSelector != "" {
		iframe, err := doc.Element(s.frameSelector)
		if err != nil {
			return waitError(ctx, s.frameSelector, err)
		}
		frame, err := iframe.Frame()
		if err != nil {
			return waitError(ctx, s.frameSelector, err)
		}
		s.frame = frame
		doc = frame.Context(waitCtx)
	}

	// ── 2. Wait for the element inside it ───────────────────────────
	if _, err := doc.Element(selector); err != nil {
		return waitError(ctx, selector, err)
	}
	return nil
}

// document returns the feed document bound to ctx.
func (s *rodSession) document(ctx context.Context) *rod.Page {
	if s.frame != nil {
		return s.frame.Context(ctx)
	}
	return s.page.Context(ctx)
}

func (s *rodSession) Snapshot(ctx context.Context) (string, error) {
	return s.document(ctx).HTML()
}

const scrollJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.scrollTo(0, el.scrollHeight);
	return true;
}`

func (s *rodSession) ScrollToBottom(ctx context.Context, containerSelector string) error {
	res, err := s.document(ctx).Eval(scrollJS, containerSelector)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		slog.Debug("scroll container not present", "selector", containerSelector)
	}
	return nil
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.closeErr = s.page.Close()
	})
	return s.closeErr
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
