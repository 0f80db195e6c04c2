package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/use-agent/maprank/config"
)

// ChromedpBrowser opens sessions as chromedp tabs of one allocated Chrome.
type ChromedpBrowser struct {
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	frameSelector string
}

// NewChromedpBrowser allocates Chrome (or attaches to cfg.ControlURL) and
// starts it by running an empty action list on the first tab.
func NewChromedpBrowser(cfg config.BrowserConfig, frameSelector string) (*ChromedpBrowser, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if cfg.ControlURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.ControlURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", cfg.NoSandbox),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if slices.Contains(cfg.BlockedResourceTypes, "Image") {
			opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		if cfg.BrowserBin != "" {
			opts = append(opts, chromedp.ExecPath(cfg.BrowserBin))
		}
		if cfg.Proxy != "" {
			opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
		}
		if cfg.AcceptLanguage != "" {
			opts = append(opts, chromedp.Flag("lang", cfg.AcceptLanguage))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, acquisitionError("failed to start browser", err)
	}
	slog.Info("browser launched", "driver", "chromedp")

	return &ChromedpBrowser{
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		frameSelector: frameSelector,
	}, nil
}

// Name implements Browser.
func (b *ChromedpBrowser) Name() string { return "chromedp" }

// Open creates a new tab.
func (b *ChromedpBrowser) Open(ctx context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	s := &cdpSession{tab: tabCtx, cancel: cancel, frameSelector: b.frameSelector}
	// The first Run creates the target.
	if err := s.run(ctx); err != nil {
		cancel()
		return nil, acquisitionError("failed to open tab", err)
	}
	return s, nil
}

// Close cancels the browser and allocator contexts, which stops Chrome.
func (b *ChromedpBrowser) Close() error {
	slog.Info("browser shutting down", "driver", "chromedp")
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

type cdpSession struct {
	tab           context.Context
	cancel        context.CancelFunc
	frameSelector string

	// frame is the iframe node hosting the feed, once located.
	frame *cdp.Node

	closeOnce sync.Once
}

// run executes actions on the tab, aborting them (but not the tab) when ctx
// is done.
func (s *cdpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// scope returns query options that address the feed document.
func (s *cdpSession) scope() []chromedp.QueryOption {
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if s.frame != nil {
		opts = append(opts, chromedp.FromNode(s.frame))
	}
	return opts
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	s.frame = nil
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *cdpSession) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.frameSelector != "" {
		var iframes []*cdp.Node
		if err := s.run(waitCtx, chromedp.Nodes(s.frameSelector, &iframes, chromedp.ByQuery)); err != nil {
			return waitError(ctx, s.frameSelector, err)
		}
		s.frame = iframes[0]
	}

	if err := s.run(waitCtx, chromedp.WaitReady(selector, s.scope()...)); err != nil {
		return waitError(ctx, selector, err)
	}
	return nil
}

func (s *cdpSession) Snapshot(ctx context.Context) (string, error) {
	var markup string
	if err := s.run(ctx, chromedp.OuterHTML("html", &markup, s.scope()...)); err != nil {
		return "", err
	}
	return markup, nil
}

const scrollFunc = `function() { this.scrollTo(0, this.scrollHeight); }`

func (s *cdpSession) ScrollToBottom(ctx context.Context, containerSelector string) error {
	var nodes []*cdp.Node
	opts := append(s.scope(), chromedp.AtLeast(0))
	return s.run(ctx,
		chromedp.Nodes(containerSelector, &nodes, opts...),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				slog.Debug("scroll container not present", "selector", containerSelector)
				return nil
			}
			obj, err := dom.ResolveNode().WithBackendNodeID(nodes[0].BackendNodeID).Do(ctx)
			if err != nil {
				return fmt.Errorf("resolve scroll container: %w", err)
			}
			_, exc, err := runtime.CallFunctionOn(scrollFunc).WithObjectID(obj.ObjectID).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return fmt.Errorf("scroll container: %s", exc.Text)
			}
			return nil
		}),
	)
}

func (s *cdpSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
