// Package resolver finds the ordinal position of a target place in the
// result feed of a search query.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/maprank/config"
	"github.com/use-agent/maprank/feed"
	"github.com/use-agent/maprank/metrics"
	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/session"
)

// Options tune a resolution.
type Options struct {
	// MaxScrollAttempts bounds the snapshot/scroll cycles per resolution.
	MaxScrollAttempts int

	// ReadyTimeout bounds the wait for the feed container after navigation.
	ReadyTimeout time.Duration

	// ScrollPause is slept after each scroll so new entries can render.
	ScrollPause time.Duration

	// StopOnStagnation ends the resolution once StagnationLimit consecutive
	// cycles did not grow the feed.
	StopOnStagnation bool
	StagnationLimit  int

	BaseURL     string
	EncodeQuery bool

	// ContainerSelector is waited on before the first snapshot.
	ContainerSelector string

	// ScrollSelector is the element scrolled to load more entries.
	ScrollSelector string
}

// OptionsFromConfig collects resolver options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxScrollAttempts: cfg.Resolver.MaxScrollAttempts,
		ReadyTimeout:      cfg.Resolver.ReadyTimeout,
		ScrollPause:       cfg.Resolver.ScrollPause,
		StopOnStagnation:  cfg.Resolver.StopOnStagnation,
		StagnationLimit:   cfg.Resolver.StagnationLimit,
		BaseURL:           cfg.Feed.BaseURL,
		EncodeQuery:       cfg.Feed.EncodeQuery,
		ContainerSelector: cfg.Feed.ContainerSelector,
		ScrollSelector:    cfg.Feed.ScrollSelector,
	}
}

// WithMaxScrollAttempts returns a copy with the cycle budget replaced. Values
// below 1 leave the budget unchanged.
func (o Options) WithMaxScrollAttempts(n int) Options {
	if n > 0 {
		o.MaxScrollAttempts = n
	}
	return o
}

// BuildSearchURL addresses the search view for query. With encode set the
// query is path-escaped; otherwise it is appended verbatim.
func BuildSearchURL(base, query string, encode bool) string {
	query = strings.TrimSpace(query)
	if encode {
		return base + url.PathEscape(query)
	}
	return base + query
}

// Resolution is the result of one resolution attempt.
type Resolution struct {
	Outcome models.Outcome

	// Cycles is the number of snapshots taken.
	Cycles int

	// Entries is the feed length at the last snapshot.
	Entries int
}

// Resolver runs resolutions. It holds no per-resolution state and is safe
// for concurrent use, though each Session must only be used by one caller.
type Resolver struct {
	opts    Options
	parser  *feed.Parser
	metrics *metrics.Metrics
}

// New creates a Resolver. m may be nil.
func New(opts Options, parser *feed.Parser, m *metrics.Metrics) *Resolver {
	return &Resolver{opts: opts, parser: parser, metrics: m}
}

// Options returns the options in effect.
func (r *Resolver) Options() Options { return r.opts }

// WithOptions returns a Resolver sharing the parser and metrics but using opts.
func (r *Resolver) WithOptions(opts Options) *Resolver {
	return &Resolver{opts: opts, parser: r.parser, metrics: r.metrics}
}

// Resolve navigates sess to the pair's search view and walks the feed,
// scrolling for more entries, until the target is found or the cycle budget
// is spent.
//
// The returned Outcome is always valid. A non-nil error is the reported
// cause of a NotFound outcome (navigation timeout, navigation failure,
// unexpected failure, cancellation); it never means the batch should stop.
func (r *Resolver) Resolve(ctx context.Context, sess session.Session, pair models.Pair) (res Resolution, err error) {
	start := time.Now()
	maxAnomalies := 0

	defer func() {
		if p := recover(); p != nil {
			slog.Error("resolution panicked", "query", pair.Query, "target", pair.Target, "panic", p)
			res.Outcome = models.NotFound
			err = models.NewRankError(models.ErrCodeUnexpected, fmt.Sprintf("panic during resolution: %v", p), nil)
		}
		code := ""
		if d := models.DetailOf(err); d != nil {
			code = d.Code
		}
		rank, found := res.Outcome.Rank()
		r.metrics.ObserveLookup(found, rank, code, res.Cycles, time.Since(start))
		r.metrics.AddAnomalies(maxAnomalies)
	}()

	res.Outcome = models.NotFound
	if err := pair.Validate(); err != nil {
		return res, models.NewRankError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	log := slog.With("query", pair.Query, "target", pair.Target)

	// ── 1. Navigate ─────────────────────────────────────────────────
	target := BuildSearchURL(r.opts.BaseURL, pair.Query, r.opts.EncodeQuery)
	if err := sess.Navigate(ctx, target); err != nil {
		return res, categorizeError(err, models.ErrCodeNavigation, "navigation to search view failed")
	}

	// ── 2. Wait for the feed container ──────────────────────────────
	if err := sess.WaitForElement(ctx, r.opts.ContainerSelector, r.opts.ReadyTimeout); err != nil {
		if errors.Is(err, session.ErrTimeout) {
			return res, models.NewRankError(models.ErrCodeNavigationTimeout,
				fmt.Sprintf("result feed did not load within %s", r.opts.ReadyTimeout), err)
		}
		return res, categorizeError(err, models.ErrCodeNavigation, "waiting for result feed failed")
	}

	// ── 3. Snapshot, match, scroll ──────────────────────────────────
	limit := max(r.opts.StagnationLimit, 1)
	lastLen, stagnant := 0, 0

	for cycle := 1; cycle <= r.opts.MaxScrollAttempts; cycle++ {
		res.Cycles = cycle

		markup, err := sess.Snapshot(ctx)
		if err != nil {
			return res, categorizeError(err, models.ErrCodeUnexpected, "reading feed snapshot failed")
		}
		page, err := r.parser.Parse(markup)
		if err != nil {
			return res, err
		}
		res.Entries = len(page.Entries)
		maxAnomalies = max(maxAnomalies, page.Anomalies)

		if e, ok := page.FirstMatch(pair.Target); ok {
			res.Outcome = models.Found(e.Position)
			log.Debug("target found", "rank", e.Position, "cycle", cycle)
			return res, nil
		}
		log.Debug("target not in feed yet", "cycle", cycle, "entries", res.Entries)

		if r.opts.StopOnStagnation {
			if cycle > 1 && res.Entries <= lastLen {
				stagnant++
				if stagnant >= limit {
					log.Debug("feed stopped growing", "cycle", cycle, "entries", res.Entries)
					break
				}
			} else {
				stagnant = 0
			}
			lastLen = res.Entries
		}

		if err := sess.ScrollToBottom(ctx, r.opts.ScrollSelector); err != nil {
			return res, categorizeError(err, models.ErrCodeUnexpected, "scrolling result feed failed")
		}
		if err := pause(ctx, r.opts.ScrollPause); err != nil {
			return res, categorizeError(err, models.ErrCodeUnexpected, "resolution interrupted")
		}
	}

	if maxAnomalies > 0 {
		log.Debug("entries without display name", "count", maxAnomalies)
	}
	return res, nil
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// categorizeError maps a driver error to a RankError. Context errors take
// precedence over fallback.
func categorizeError(err error, fallback, msg string) *models.RankError {
	var re *models.RankError
	switch {
	case errors.As(err, &re):
		return re
	case errors.Is(err, context.Canceled):
		return models.NewRankError(models.ErrCodeCanceled, "resolution canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewRankError(models.ErrCodeNavigationTimeout, msg, err)
	default:
		return models.NewRankError(fallback, msg, err)
	}
}
