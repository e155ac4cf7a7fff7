package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/park285/biblequest-duels/internal/obslog"
	"github.com/park285/biblequest-duels/internal/tournament"
	"go.uber.org/zap"
)

type StaleCanceller interface {
	CancelStaleSearches(ctx context.Context, olderThan time.Duration) (int, error)
}

type DailyEnsurer interface {
	EnsureDaily(ctx context.Context, now time.Time) (*tournament.Tournament, error)
}

type Options struct {
	SearchTimeout time.Duration
	StaleEvery    time.Duration
	DailyEvery    time.Duration
	JobTimeout    time.Duration
}

// Scheduler runs the background housekeeping jobs.
type Scheduler struct {
	sched gocron.Scheduler
}

func New(stale StaleCanceller, daily DailyEnsurer, opts Options) (*Scheduler, error) {
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 60 * time.Second
	}
	if opts.StaleEvery <= 0 {
		opts.StaleEvery = 15 * time.Second
	}
	if opts.DailyEvery <= 0 {
		opts.DailyEvery = time.Minute
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Second
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	log := obslog.Named("scheduler")

	if stale != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(opts.StaleEvery),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), opts.JobTimeout)
				defer cancel()
				if _, err := stale.CancelStaleSearches(ctx, opts.SearchTimeout); err != nil {
					log.Warn("stale_search_job_failed", zap.Error(err))
				}
			}),
			gocron.WithName("cancel-stale-searches"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}
	if daily != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(opts.DailyEvery),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), opts.JobTimeout)
				defer cancel()
				if _, err := daily.EnsureDaily(ctx, time.Now()); err != nil && !errors.Is(err, tournament.ErrNotOpenYet) {
					log.Warn("daily_tournament_job_failed", zap.Error(err))
				}
			}),
			gocron.WithName("ensure-daily-tournament"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return nil, err
		}
	}
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	obslog.L().Info("scheduler_started", zap.Int("jobs", len(s.sched.Jobs())))
}

func (s *Scheduler) Shutdown() error { return s.sched.Shutdown() }
