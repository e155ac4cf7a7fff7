package archive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/obslog"
	"go.uber.org/zap"
)

// Entry is one finished match from a player's point of view.
type Entry struct {
	MatchID      string         `json:"match_id"`
	Format       duel.Format    `json:"format"`
	Status       duel.Status    `json:"status"`
	PlayerIDs    []string       `json:"player_ids"`
	Team         duel.Team      `json:"team,omitempty"`
	WinnerTeam   duel.Team      `json:"winner_team,omitempty"`
	EndReason    duel.EndReason `json:"end_reason,omitempty"`
	StreakA      int            `json:"team_a_streak"`
	StreakB      int            `json:"team_b_streak"`
	TournamentID string         `json:"tournament_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	EndedAt      time.Time      `json:"ended_at"`
}

// Won reports whether the viewing player's team took the match.
func (e *Entry) Won() bool { return e.Team != "" && e.Team == e.WinnerTeam }

type Repository interface {
	SaveMatch(ctx context.Context, m *duel.Match, turns []*duel.Turn) error
	RecentMatches(ctx context.Context, playerID string, limit int) ([]*Entry, error)
}

// Hook archives every finished match with its turn log.
func Hook(repo Repository) duel.OutcomeHook {
	return func(ctx context.Context, o *duel.Outcome) error {
		if err := repo.SaveMatch(ctx, o.Match, o.Turns); err != nil {
			return err
		}
		obslog.L().Debug("archive_match_saved", zap.String("match_id", o.Match.ID), zap.Int("turns", len(o.Turns)))
		return nil
	}
}

func entryFor(m *duel.Match, playerID string) *Entry {
	e := &Entry{
		MatchID:      m.ID,
		Format:       m.Format,
		Status:       m.Status,
		PlayerIDs:    append([]string(nil), m.PlayerIDs...),
		WinnerTeam:   m.WinnerTeam,
		EndReason:    m.EndReason,
		StreakA:      m.StreakA,
		StreakB:      m.StreakB,
		TournamentID: m.TournamentID,
		CreatedAt:    m.CreatedAt,
		EndedAt:      m.EndedAt,
	}
	if team, ok := m.TeamOf(playerID); ok {
		e.Team = team
	}
	return e
}

type memrepo struct {
	mu      sync.RWMutex
	matches map[string]*duel.Match
	turns   map[string][]*duel.Turn
}

// NewMemoryRepository keeps the archive in process memory.
func NewMemoryRepository() Repository {
	return &memrepo{matches: make(map[string]*duel.Match), turns: make(map[string][]*duel.Turn)}
}

func (r *memrepo) SaveMatch(ctx context.Context, m *duel.Match, turns []*duel.Turn) error {
	if m == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *m
	r.matches[m.ID] = &c
	r.turns[m.ID] = append([]*duel.Turn(nil), turns...)
	return nil
}

func (r *memrepo) RecentMatches(ctx context.Context, playerID string, limit int) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entry
	for _, m := range r.matches {
		if m.HasPlayer(playerID) {
			out = append(out, entryFor(m, playerID))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].MatchID > out[j].MatchID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
