package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/maprank/models"
)

var twoPairs = []models.Pair{{Query: "a", Target: "A"}, {Query: "b", Target: "B"}}

func newStore(t *testing.T, max int) *Store {
	t.Helper()
	s := NewStore(max, time.Hour)
	t.Cleanup(s.Close)
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newStore(t, 10)
	job, err := s.Create(twoPairs, models.BatchOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.ID, "batch-"))

	got, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
	assert.Equal(t, 1, s.Active())

	_, ok = s.Get("batch-missing")
	assert.False(t, ok)
}

func TestJob_ProgressAndFinish(t *testing.T) {
	s := newStore(t, 10)
	job, err := s.Create(twoPairs, models.BatchOptions{})
	require.NoError(t, err)

	job.SetProgress(0.5, "searching (2/2)")
	st := job.Status(true)
	assert.Equal(t, models.StatusProcessing, st.Status)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, "searching (2/2)", st.Message)
	assert.Nil(t, st.Rows)

	rows := []models.ResultRow{
		{Query: "a", Target: "A", Outcome: models.Found(1)},
		{Query: "b", Target: "B", Outcome: models.NotFound},
	}
	job.Finish(rows, nil)
	st = job.Status(true)
	assert.Equal(t, models.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.Completed)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, rows, st.Rows)
	assert.Zero(t, s.Active())

	assert.Nil(t, job.Status(false).Rows)
}

func TestJob_FinishStatuses(t *testing.T) {
	s := newStore(t, 10)

	canceled, _ := s.Create(twoPairs, models.BatchOptions{})
	canceled.Finish(twoRows()[:1], models.NewRankError(models.ErrCodeCanceled, "batch canceled after 1 of 2 pairs", context.Canceled))
	assert.Equal(t, models.StatusPartial, canceled.Status(false).Status)
	assert.Equal(t, 1, canceled.Status(false).Completed)

	failed, _ := s.Create(twoPairs, models.BatchOptions{})
	failed.Finish(nil, models.NewRankError(models.ErrCodeSessionAcquisition, "no browser", errors.New("exec: chrome")))
	st := failed.Status(false)
	assert.Equal(t, models.StatusFailed, st.Status)
	assert.Equal(t, models.ErrCodeSessionAcquisition, st.Error.Code)
	assert.Equal(t, "no browser", st.Message)
}

func twoRows() []models.ResultRow {
	return []models.ResultRow{{Query: "a", Target: "A"}, {Query: "b", Target: "B"}}
}

func TestJob_Cancel(t *testing.T) {
	s := newStore(t, 10)
	job, _ := s.Create(twoPairs, models.BatchOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	job.SetCancel(cancel)
	assert.True(t, job.Cancel())
	assert.Error(t, ctx.Err())

	job.Finish(nil, ctx.Err())
	assert.False(t, job.Cancel(), "finished jobs cannot be canceled")
}

func TestStore_CapacityEvictsOldestFinished(t *testing.T) {
	s := newStore(t, 2)
	first, _ := s.Create(twoPairs, models.BatchOptions{})
	second, _ := s.Create(twoPairs, models.BatchOptions{})

	_, err := s.Create(twoPairs, models.BatchOptions{})
	assert.ErrorIs(t, err, ErrStoreFull)

	first.Finish(twoRows(), nil)
	third, err := s.Create(twoPairs, models.BatchOptions{})
	require.NoError(t, err)

	_, ok := s.Get(first.ID)
	assert.False(t, ok)
	_, ok = s.Get(second.ID)
	assert.True(t, ok)
	_, ok = s.Get(third.ID)
	assert.True(t, ok)
}

func TestStore_EvictExpired(t *testing.T) {
	s := newStore(t, 10)
	done, _ := s.Create(twoPairs, models.BatchOptions{})
	running, _ := s.Create(twoPairs, models.BatchOptions{})
	done.Finish(twoRows(), nil)

	assert.Zero(t, s.evictExpired(time.Now()))
	assert.Equal(t, 1, s.evictExpired(time.Now().Add(2*time.Hour)))

	_, ok := s.Get(done.ID)
	assert.False(t, ok)
	_, ok = s.Get(running.ID)
	assert.True(t, ok, "running jobs never expire")
}
