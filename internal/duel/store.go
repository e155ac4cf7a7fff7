package duel

import (
	"context"
	"time"
)

// Store persists live match state and the turn log.
//
// UpdateMatch is the atomic read-modify-write capability every mutation goes
// through: fn runs against the latest stored match and the write only lands if
// the match version is still the one fn observed. On a lost race fn is re-run
// against the fresh state; after the retry budget ErrConflict is returned.
// fn may return ErrNoChange to skip the write and get the current match back.
type Store interface {
	CreateMatch(ctx context.Context, m *Match) error
	LoadMatch(ctx context.Context, id string) (*Match, error)
	UpdateMatch(ctx context.Context, id string, fn func(*Match) error) (*Match, error)

	// LatestWaiting returns the most recently created waiting match of a format, or nil.
	LatestWaiting(ctx context.Context, f Format) (*Match, error)
	// WaitingCreatedBefore lists waiting match ids of a format created before cutoff.
	WaitingCreatedBefore(ctx context.Context, f Format, cutoff time.Time) ([]string, error)

	AppendTurn(ctx context.Context, t *Turn) error
	Turns(ctx context.Context, matchID string) ([]*Turn, error)

	// ClaimOutcome leases the outcome of a match for lease. Only one caller
	// holds the lease; once it expires without FinishOutcome another caller
	// can claim again. FinishOutcome marks the outcome applied for good and
	// ReleaseOutcome drops the lease after a failed apply.
	ClaimOutcome(ctx context.Context, matchID string, lease time.Duration) (bool, error)
	FinishOutcome(ctx context.Context, matchID string) error
	ReleaseOutcome(ctx context.Context, matchID string) error
}
