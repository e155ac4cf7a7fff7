package progress

import (
	"context"
	"sync"
)

type memrepo struct {
	mu       sync.Mutex
	applied  map[string]bool
	progress map[string]*Progress
}

// NewMemoryRepository is used when no DATABASE_URL is configured.
func NewMemoryRepository() Repository {
	return &memrepo{applied: make(map[string]bool), progress: make(map[string]*Progress)}
}

func (r *memrepo) row(playerID string) *Progress {
	p, ok := r.progress[playerID]
	if !ok {
		p = &Progress{PlayerID: playerID}
		r.progress[playerID] = p
	}
	return p
}

func (r *memrepo) ApplyOutcome(ctx context.Context, matchID string, awards []Award) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applied[matchID] {
		return false, nil
	}
	r.applied[matchID] = true
	for _, a := range awards {
		p := r.row(a.PlayerID)
		p.XPTotal += a.XP
		p.Coins += a.Coins
		p.Duels++
		if a.Won {
			p.DuelWins++
		}
	}
	return true, nil
}

func (r *memrepo) AwardBadge(ctx context.Context, playerID, badge, source string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.row(playerID)
	if p.HasBadge(badge) {
		return false, nil
	}
	p.Badges = append(p.Badges, badge)
	return true, nil
}

func (r *memrepo) Get(ctx context.Context, playerID string) (*Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *r.row(playerID)
	c.Badges = append([]string(nil), c.Badges...)
	return &c, nil
}
