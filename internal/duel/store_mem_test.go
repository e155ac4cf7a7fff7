package duel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is an in-process Store used to check the manager against a second
// Store implementation.
type memStore struct {
	mu sync.Mutex

	matches map[string]*Match
	turns   map[string][]*Turn
	// outcomes holds the lease expiry per match; the zero time means finished.
	outcomes map[string]time.Time
}

func newMemoryStore() Store {
	return &memStore{
		matches:  make(map[string]*Match),
		turns:    make(map[string][]*Turn),
		outcomes: make(map[string]time.Time),
	}
}

func (s *memStore) CreateMatch(ctx context.Context, m *Match) error {
	if m == nil || m.ID == "" {
		return ErrInvalidArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[m.ID]; exists {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	s.matches[m.ID] = m.clone()
	return nil
}

func (s *memStore) LoadMatch(ctx context.Context, id string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m.clone(), nil
}

// UpdateMatch holds the lock for the whole closure, so it never conflicts.
func (s *memStore) UpdateMatch(ctx context.Context, id string, fn func(*Match) error) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	work := cur.clone()
	if err := fn(work); err != nil {
		if errors.Is(err, ErrNoChange) {
			return cur.clone(), nil
		}
		return nil, err
	}
	work.Version = cur.Version + 1
	s.matches[id] = work
	return work.clone(), nil
}

func (s *memStore) waiting(f Format) []*Match {
	var list []*Match
	for _, m := range s.matches {
		if m.Format == f && m.Status == StatusWaiting {
			list = append(list, m)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

func (s *memStore) LatestWaiting(ctx context.Context, f Format) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiting(f)
	if len(list) == 0 {
		return nil, nil
	}
	return list[0].clone(), nil
}

func (s *memStore) WaitingCreatedBefore(ctx context.Context, f Format, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.waiting(f) {
		if m.CreatedAt.Before(cutoff) {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (s *memStore) AppendTurn(ctx context.Context, t *Turn) error {
	if t == nil || t.MatchID == "" {
		return ErrInvalidArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.turns[t.MatchID] = append(s.turns[t.MatchID], &c)
	return nil
}

func (s *memStore) Turns(ctx context.Context, matchID string) ([]*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Turn, 0, len(s.turns[matchID]))
	for _, t := range s.turns[matchID] {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (s *memStore) ClaimOutcome(ctx context.Context, matchID string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if until, held := s.outcomes[matchID]; held && (until.IsZero() || now.Before(until)) {
		return false, nil
	}
	s.outcomes[matchID] = now.Add(lease)
	return true, nil
}

func (s *memStore) FinishOutcome(ctx context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[matchID] = time.Time{}
	return nil
}

func (s *memStore) ReleaseOutcome(ctx context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outcomes, matchID)
	return nil
}
