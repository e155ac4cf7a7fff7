package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/biblequest-duels/internal/tournament"
	"github.com/stretchr/testify/require"
)

type staleCounter struct {
	calls     atomic.Int32
	olderThan atomic.Int64
}

func (s *staleCounter) CancelStaleSearches(ctx context.Context, olderThan time.Duration) (int, error) {
	s.calls.Add(1)
	s.olderThan.Store(int64(olderThan))
	return 0, nil
}

type dailyCounter struct{ calls atomic.Int32 }

func (d *dailyCounter) EnsureDaily(ctx context.Context, now time.Time) (*tournament.Tournament, error) {
	d.calls.Add(1)
	return nil, tournament.ErrNotOpenYet
}

func TestJobsRun(t *testing.T) {
	stale := &staleCounter{}
	daily := &dailyCounter{}
	s, err := New(stale, daily, Options{
		SearchTimeout: 42 * time.Second,
		StaleEvery:    20 * time.Millisecond,
		DailyEvery:    time.Hour,
	})
	require.NoError(t, err)
	s.Start()
	defer func() { require.NoError(t, s.Shutdown()) }()

	require.Eventually(t, func() bool { return stale.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return daily.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(42*time.Second), stale.olderThan.Load())
}
