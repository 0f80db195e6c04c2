// Package jobs keeps async batch jobs in memory until they expire.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/maprank/models"
)

// ErrStoreFull is returned by Create when every slot holds a running job.
var ErrStoreFull = errors.New("jobs: store is full of running jobs")

// Job is one async batch. Its mutable state is guarded; read it through
// Status.
type Job struct {
	ID        string
	CreatedAt time.Time
	Pairs     []models.Pair
	Options   models.BatchOptions

	mu         sync.RWMutex
	status     string
	progress   float64
	message    string
	rows       []models.ResultRow
	err        *models.ErrorDetail
	finishedAt time.Time
	cancel     context.CancelFunc
}

// SetProgress records the runner's progress. Its signature matches
// batch.Progress.
func (j *Job) SetProgress(fraction float64, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = fraction
	j.message = message
}

// SetCancel registers the function that aborts the job's run.
func (j *Job) SetCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

// Cancel aborts a running job. It reports whether the job was still running.
func (j *Job) Cancel() bool {
	j.mu.RLock()
	cancel, running := j.cancel, j.status == models.StatusProcessing
	j.mu.RUnlock()
	if running && cancel != nil {
		cancel()
	}
	return running
}

// Finish stores the outcome of the run. A nil err completes the job; a
// CANCELED error leaves it partial; anything else fails it.
func (j *Job) Finish(rows []models.ResultRow, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.rows = rows
	j.err = models.DetailOf(err)
	j.finishedAt = time.Now()
	switch {
	case j.err == nil:
		j.status = models.StatusCompleted
		j.progress = 1
	case j.err.Code == models.ErrCodeCanceled:
		j.status = models.StatusPartial
	default:
		j.status = models.StatusFailed
	}
	if j.err != nil {
		j.message = j.err.Message
	}
}

// Done reports whether the job has finished.
func (j *Job) Done() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status != models.StatusProcessing
}

// Rows returns the finished rows, or nil while the job runs.
func (j *Job) Rows() []models.ResultRow {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.rows
}

// Status builds the API view of the job. withRows controls whether rows are
// included.
func (j *Job) Status(withRows bool) models.BatchStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()

	total := len(j.Pairs)
	completed := int(j.progress * float64(total))
	if j.status != models.StatusProcessing {
		completed = len(j.rows)
	}
	resp := models.BatchStatusResponse{
		ID:        j.ID,
		Status:    j.status,
		Completed: completed,
		Total:     total,
		Progress:  j.progress,
		Message:   j.message,
		Error:     j.err,
	}
	if withRows {
		resp.Rows = j.rows
	}
	return resp
}

func (j *Job) finished() (time.Time, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt, j.status != models.StatusProcessing
}

// Store is an in-memory job registry. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	maxJobs int
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a Store holding at most maxJobs jobs. Finished jobs are
// evicted ttl after they finish by a background goroutine; call Close to
// stop it.
func NewStore(maxJobs int, ttl time.Duration) *Store {
	s := &Store{
		jobs:    make(map[string]*Job),
		maxJobs: maxJobs,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create registers a new processing job. At capacity the oldest finished
// job is evicted; when none has finished ErrStoreFull is returned.
func (s *Store) Create(pairs []models.Pair, opts models.BatchOptions) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.maxJobs && !s.evictOldestFinishedLocked() {
		return nil, ErrStoreFull
	}

	job := &Job{
		ID:        "batch-" + uuid.NewString(),
		CreatedAt: time.Now(),
		Pairs:     pairs,
		Options:   opts,
		status:    models.StatusProcessing,
	}
	s.jobs[job.ID] = job
	return job, nil
}

// Get looks a job up by ID.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// Active counts jobs still processing.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if !job.Done() {
			n++
		}
	}
	return n
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) evictOldestFinishedLocked() bool {
	type candidate struct {
		id string
		at time.Time
	}
	var done []candidate
	for id, job := range s.jobs {
		if at, ok := job.finished(); ok {
			done = append(done, candidate{id, at})
		}
	}
	if len(done) == 0 {
		return false
	}
	sort.Slice(done, func(a, b int) bool { return done[a].at.Before(done[b].at) })
	delete(s.jobs, done[0].id)
	return true
}

// evictExpired removes jobs that finished before now-ttl.
func (s *Store) evictExpired(now time.Time) int {
	cutoff := now.Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if at, ok := job.finished(); ok && at.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func (s *Store) cleanupLoop() {
	interval := min(5*time.Minute, s.ttl)
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.evictExpired(now)
		}
	}
}
