// Package session drives a rendering browser tab for the resolver.
//
// A Session is one tab: it navigates, waits for the feed to render, hands out
// markup snapshots, and scrolls the feed container so more entries load. Two
// drivers are provided, go-rod (default) and chromedp. Both treat the feed as
// living inside an iframe when a frame selector is configured.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/maprank/config"
	"github.com/use-agent/maprank/models"
)

// ErrTimeout is returned by WaitForElement when the element did not appear
// before the wait expired.
var ErrTimeout = errors.New("session: timed out waiting for element")

// Session is a single render session. It is not safe for concurrent use.
type Session interface {
	// Navigate loads url and resets any frame binding from a previous page.
	Navigate(ctx context.Context, url string) error

	// WaitForElement blocks until selector is present in the feed document or
	// timeout expires, in which case the error wraps ErrTimeout.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error

	// Snapshot returns the current markup of the feed document.
	Snapshot(ctx context.Context) (string, error)

	// ScrollToBottom scrolls the element matched by containerSelector to its
	// end, prompting the feed to load more entries.
	ScrollToBottom(ctx context.Context, containerSelector string) error

	// Close releases the tab. Calling it more than once is harmless.
	Close() error
}

// Opener acquires a fresh Session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Session, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// Browser is an Opener that owns a browser process (or connection).
type Browser interface {
	Opener

	// Name identifies the driver, e.g. "rod".
	Name() string

	// Close shuts the browser down. Sessions must be closed first.
	Close() error
}

// New starts the browser selected by cfg.Driver.
func New(cfg config.BrowserConfig, frameSelector string) (Browser, error) {
	// Return a nil interface, not a nil *RodBrowser, when startup fails.
	switch cfg.Driver {
	case "", "rod":
		b, err := NewRodBrowser(cfg, frameSelector)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "chromedp":
		b, err := NewChromedpBrowser(cfg, frameSelector)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("session: unknown driver %q", cfg.Driver)
	}
}

// waitError maps a failed wait to ErrTimeout when the wait's own deadline
// expired, and passes through cancellation of the caller's context.
func waitError(parent context.Context, selector string, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, selector)
	}
	return err
}

func acquisitionError(msg string, err error) error {
	return models.NewRankError(models.ErrCodeSessionAcquisition, msg, err)
}
