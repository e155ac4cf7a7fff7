package progress

import (
	"context"
	"strings"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/obslog"
	"go.uber.org/zap"
)

const (
	BadgeFirstDuel          = "First Duel"
	BadgeDuelChampion       = "Duel Champion"
	BadgeTournamentChampion = "Tournament Champion"
	BadgeFinalist           = "Finalist"
)

// Progress is a player's running totals.
type Progress struct {
	PlayerID string   `json:"player_id"`
	XPTotal  int      `json:"xp_total"`
	Coins    int      `json:"coins"`
	Duels    int      `json:"duels"`
	DuelWins int      `json:"duel_wins"`
	Badges   []string `json:"badges"`
}

func (p *Progress) HasBadge(b string) bool {
	for _, have := range p.Badges {
		if have == b {
			return true
		}
	}
	return false
}

// Award is the delta one match applies to one player.
type Award struct {
	PlayerID string
	XP       int
	Coins    int
	Won      bool
}

type Repository interface {
	// ApplyOutcome applies every award for matchID as one unit. It returns
	// false without changing anything when matchID was applied before.
	ApplyOutcome(ctx context.Context, matchID string, awards []Award) (bool, error)
	// AwardBadge grants a badge once. It returns false when the player already had it.
	AwardBadge(ctx context.Context, playerID, badge, source string) (bool, error)
	Get(ctx context.Context, playerID string) (*Progress, error)
}

type Rewards struct {
	XPWin    int
	XPLoss   int
	CoinsWin int
}

type Service struct {
	repo    Repository
	rewards Rewards
}

func NewService(repo Repository, rewards Rewards) *Service {
	return &Service{repo: repo, rewards: rewards}
}

var ErrNotCompleted = errf("match is not completed")

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Awards computes the per-player deltas of a completed match: winners get the
// win bonus and coins, losers the consolation XP, and everyone +1 XP per correct answer.
func (s *Service) Awards(m *duel.Match, res *duel.Results) []Award {
	out := make([]Award, 0, len(m.PlayerIDs))
	for _, p := range m.PlayerIDs {
		team, _ := m.TeamOf(p)
		a := Award{PlayerID: p}
		if team != "" && team == m.WinnerTeam {
			a.Won = true
			a.XP += s.rewards.XPWin
			a.Coins += s.rewards.CoinsWin
		} else {
			a.XP += s.rewards.XPLoss
		}
		if res != nil {
			if st := res.Player(p); st != nil {
				a.XP += st.Correct
			}
		}
		out = append(out, a)
	}
	return out
}

// ApplyMatchOutcome is the single apply step for a completed match. Repeated
// calls for the same match change nothing but still top up missing duel badges.
func (s *Service) ApplyMatchOutcome(ctx context.Context, m *duel.Match, res *duel.Results) (bool, error) {
	if m == nil || m.Status != duel.StatusCompleted {
		return false, ErrNotCompleted
	}
	applied, err := s.repo.ApplyOutcome(ctx, m.ID, s.Awards(m, res))
	if err != nil {
		return false, err
	}
	for _, p := range m.PlayerIDs {
		prog, err := s.repo.Get(ctx, p)
		if err != nil {
			return applied, err
		}
		if prog.Duels > 0 {
			if _, err := s.repo.AwardBadge(ctx, p, BadgeFirstDuel, m.ID); err != nil {
				return applied, err
			}
		}
		if prog.DuelWins > 0 {
			if _, err := s.repo.AwardBadge(ctx, p, BadgeDuelChampion, m.ID); err != nil {
				return applied, err
			}
		}
	}
	if applied {
		obslog.L().Info("progress_outcome_applied", zap.String("match_id", m.ID), zap.String("winner_team", string(m.WinnerTeam)))
	}
	return applied, nil
}

func (s *Service) AwardBadge(ctx context.Context, playerID, badge, source string) error {
	if strings.TrimSpace(playerID) == "" || strings.TrimSpace(badge) == "" {
		return nil
	}
	granted, err := s.repo.AwardBadge(ctx, playerID, badge, source)
	if err != nil {
		return err
	}
	if granted {
		obslog.L().Info("progress_badge_awarded", zap.String("player_id", playerID), zap.String("badge", badge))
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, playerID string) (*Progress, error) {
	return s.repo.Get(ctx, playerID)
}

// Hook applies rewards for completed matches and ignores cancelled ones.
func Hook(s *Service) duel.OutcomeHook {
	return func(ctx context.Context, o *duel.Outcome) error {
		if o.Match.Status != duel.StatusCompleted {
			return nil
		}
		_, err := s.ApplyMatchOutcome(ctx, o.Match, o.Results)
		return err
	}
}
