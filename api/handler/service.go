package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/maprank/batch"
	"github.com/use-agent/maprank/jobs"
	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/report"
	"github.com/use-agent/maprank/session"
	"github.com/use-agent/maprank/sink"
	"golang.org/x/sync/semaphore"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Deps are the collaborators the handlers share.
type Deps struct {
	Runner   *batch.Runner
	Opener   session.Opener
	Jobs     *jobs.Store
	Notifier *sink.Notifier
	Renderer *report.Renderer

	// Driver names the browser driver for the health endpoint.
	Driver string

	// MaxConcurrent bounds lookups and batches running at once. Each holds
	// its own render session.
	MaxConcurrent int

	// MaxPairs bounds the size of one batch.
	MaxPairs int
}

// Service runs lookups and async batches on behalf of the handlers.
type Service struct {
	Deps

	slots *semaphore.Weighted
	busy  atomic.Int64

	// Batch goroutines derive from ctx so Shutdown can stop them.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a Service. MaxConcurrent below 1 is treated as 1.
func NewService(d Deps) *Service {
	if d.MaxConcurrent < 1 {
		d.MaxConcurrent = 1
	}
	if d.Renderer == nil {
		d.Renderer = report.NewRenderer("Rank report")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		Deps:   d,
		slots:  semaphore.NewWeighted(int64(d.MaxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Shutdown cancels running batches and waits for them to record their
// partial rows, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runnerFor returns the shared runner, or a copy with a different scroll
// budget when maxScrolls is set.
func (s *Service) runnerFor(maxScrolls int) *batch.Runner {
	if maxScrolls <= 0 {
		return s.Runner
	}
	r := *s.Runner
	r.Resolver = s.Runner.Resolver.WithOptions(s.Runner.Resolver.Options().WithMaxScrollAttempts(maxScrolls))
	return &r
}

// tryAcquire claims a slot without blocking.
func (s *Service) tryAcquire() bool {
	if !s.slots.TryAcquire(1) {
		return false
	}
	s.busy.Add(1)
	return true
}

func (s *Service) release() {
	s.busy.Add(-1)
	s.slots.Release(1)
}

// BusySlots reports how many lookups and batches hold a slot.
func (s *Service) BusySlots() int {
	return int(s.busy.Load())
}

// errBusy is returned when every slot is taken.
var errBusy = models.NewRankError(models.ErrCodeBusy, "too many lookups in progress, retry later", nil)

// startBatch registers a job and runs it in the background. It fails with
// errBusy when no slot is free.
func (s *Service) startBatch(pairs []models.Pair, opts models.BatchOptions) (*jobs.Job, error) {
	if !s.tryAcquire() {
		return nil, errBusy
	}

	job, err := s.Jobs.Create(pairs, opts)
	if err != nil {
		s.release()
		if errors.Is(err, jobs.ErrStoreFull) {
			return nil, models.NewRankError(models.ErrCodeUnavailable, "job store is full, retry later", err)
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	job.SetCancel(cancel)
	runner := s.runnerFor(opts.MaxScrollAttempts)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		rows, err := runner.Run(ctx, s.Opener, job.Pairs, job.SetProgress)
		cancel()
		s.release()
		job.Finish(rows, err)

		st := job.Status(true)
		slog.Info("batch job finished",
			"id", job.ID,
			"status", st.Status,
			"rows", len(st.Rows),
			"total", st.Total,
		)
		s.Notifier.JobFinished(job.Options, st)
	}()

	return job, nil
}

// validatePairs applies the per-pair and batch size rules.
func (s *Service) validatePairs(pairs []models.Pair) error {
	if len(pairs) == 0 {
		return models.NewRankError(models.ErrCodeInvalidInput, "at least one pair is required", nil)
	}
	if s.MaxPairs > 0 && len(pairs) > s.MaxPairs {
		return models.NewRankError(models.ErrCodeInvalidInput, fmt.Sprintf("at most %d pairs per batch", s.MaxPairs), nil)
	}
	for i, p := range pairs {
		if err := p.Validate(); err != nil {
			return models.NewRankError(models.ErrCodeInvalidInput, fmt.Sprintf("pair %d: %v", i+1, err), err)
		}
	}
	return nil
}

// respondError maps an error to its HTTP status and writes a structured JSON
// error response.
func respondError(c *gin.Context, err error) {
	detail := models.DetailOf(err)
	var re *models.RankError
	if !errors.As(err, &re) {
		detail = &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
	}
	c.JSON(mapErrorToStatus(detail.Code), models.ErrorResponse{Error: detail})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeJobNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeJobRunning:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited, models.ErrCodeBusy:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeSessionAcquisition, models.ErrCodeUnavailable:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeNavigationTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
