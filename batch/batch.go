// Package batch resolves an ordered list of pairs over one render session.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/maprank/metrics"
	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/resolver"
	"github.com/use-agent/maprank/session"
)

// Progress receives the fraction of the batch started so far, in [0,1], and a
// human-readable status line.
type Progress func(fraction float64, status string)

// Runner resolves pairs strictly one after another on a single session.
type Runner struct {
	Resolver *resolver.Resolver

	// Pace is slept between two consecutive pairs.
	Pace time.Duration

	Metrics *metrics.Metrics
}

// Run opens one session from opener, resolves every pair in input order, and
// closes the session exactly once before returning.
//
// Per-pair failures never stop the batch: the pair's row carries NotFound and
// the error detail. Only a failure to open the session is batch-fatal; it
// returns no rows and a SESSION_ACQUISITION_FAILURE error. When ctx is
// canceled no further pairs are started and the rows so far are returned
// with a CANCELED error.
//
// progress may be nil. It receives i/len(pairs) before pair i starts and 1.0
// exactly once, when the batch completes.
func (r *Runner) Run(ctx context.Context, opener session.Opener, pairs []models.Pair, progress Progress) ([]models.ResultRow, error) {
	report := func(fraction float64, status string) {
		if progress != nil {
			progress(fraction, status)
		}
	}

	if len(pairs) == 0 {
		report(1, "nothing to search")
		return []models.ResultRow{}, nil
	}

	start := time.Now()
	finish := r.Metrics.BatchStarted()

	// ── 1. Acquire the session ──────────────────────────────────────
	sess, err := opener.Open(ctx)
	if err != nil {
		finish(models.StatusFailed)
		slog.Error("render session unavailable", "pairs", len(pairs), "error", err)
		var re *models.RankError
		if errors.As(err, &re) && re.Code == models.ErrCodeSessionAcquisition {
			return nil, re
		}
		return nil, models.NewRankError(models.ErrCodeSessionAcquisition, "render session could not be created", err)
	}

	// ── 2. Release on every exit path ───────────────────────────────
	status := models.StatusCompleted
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("closing render session failed", "error", cerr)
		}
		finish(status)
	}()

	// ── 3. Resolve in order ─────────────────────────────────────────
	total := len(pairs)
	rows := make([]models.ResultRow, 0, total)
	found := 0

	for i, pair := range pairs {
		if cerr := ctx.Err(); cerr != nil {
			status = models.StatusPartial
			slog.Warn("batch canceled", "completed", i, "total", total)
			return rows, models.NewRankError(models.ErrCodeCanceled,
				fmt.Sprintf("batch canceled after %d of %d pairs", i, total), cerr)
		}

		report(float64(i)/float64(total), fmt.Sprintf("searching %q for %q (%d/%d)", pair.Query, pair.Target, i+1, total))

		res, rerr := r.Resolver.Resolve(ctx, sess, pair)
		row := models.ResultRow{
			Query:   pair.Query,
			Target:  pair.Target,
			Outcome: res.Outcome,
			Error:   models.DetailOf(rerr),
		}
		if rerr != nil {
			slog.Warn("pair not resolved",
				"query", pair.Query,
				"target", pair.Target,
				"code", row.Error.Code,
				"error", rerr,
			)
		}
		if res.Outcome.IsFound() {
			found++
		}
		rows = append(rows, row)

		if i < total-1 {
			pace(ctx, r.Pace)
		}
	}

	// The last pair may have been cut short.
	if cerr := ctx.Err(); cerr != nil {
		status = models.StatusPartial
		slog.Warn("batch canceled", "completed", total, "total", total)
		return rows, models.NewRankError(models.ErrCodeCanceled,
			fmt.Sprintf("batch canceled during pair %d of %d", total, total), cerr)
	}

	report(1, fmt.Sprintf("completed %d pairs", total))
	slog.Info("batch completed",
		"pairs", total,
		"found", found,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return rows, nil
}

// pace sleeps for d or until ctx is done.
func pace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
