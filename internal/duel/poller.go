package duel

import (
	"context"
	"time"

	"github.com/park285/biblequest-duels/internal/obslog"
	"go.uber.org/zap"
)

// Snapshot is anything a Poller can watch for change and completion.
type Snapshot interface {
	SnapshotVersion() int64
	Finished() bool
}

// Poller re-fetches a snapshot on a fixed interval and emits it whenever the
// version moves. It stops after emitting a finished snapshot or when ctx ends.
// Fetch errors are logged and the next tick tries again.
type Poller[S Snapshot] struct {
	fetch    func(ctx context.Context) (S, error)
	interval time.Duration
	out      chan S
}

func NewPoller[S Snapshot](fetch func(ctx context.Context) (S, error), interval time.Duration) *Poller[S] {
	if interval <= 0 {
		interval = 2500 * time.Millisecond
	}
	return &Poller[S]{fetch: fetch, interval: interval, out: make(chan S, 1)}
}

// Updates is closed when Run returns.
func (p *Poller[S]) Updates() <-chan S { return p.out }

func (p *Poller[S]) Run(ctx context.Context) error {
	defer close(p.out)
	last := int64(-1)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		snap, err := p.fetch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			obslog.L().Warn("poll_fetch_failed", zap.Error(err))
		case snap.SnapshotVersion() != last || snap.Finished():
			last = snap.SnapshotVersion()
			select {
			case p.out <- snap:
			case <-ctx.Done():
				return ctx.Err()
			}
			if snap.Finished() {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
