package duel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/biblequest-duels/internal/obslog"
	"github.com/park285/biblequest-duels/internal/question"
	"go.uber.org/zap"
)

// Outcome is handed to hooks once a match reaches a terminal status.
type Outcome struct {
	Match   *Match
	Turns   []*Turn
	Results *Results
}

// OutcomeHook applies a side effect of a finished match. Hooks must be
// idempotent: a failed run releases the once-guard and the whole set runs again.
type OutcomeHook func(ctx context.Context, o *Outcome) error

type Options struct {
	DefaultTargetStreak int
	LivenessTimeout     time.Duration
	Now                 func() time.Time
	NewID               func() string
}

type Manager struct {
	store     Store
	questions question.Source
	opts      Options

	mu    sync.RWMutex
	hooks []OutcomeHook
}

const maxJoinAttempts = 3

// outcomeLease bounds how long a settler may hold the outcome claim. A settler
// that dies mid-apply leaves the claim to expire, and the next settle takes over.
const outcomeLease = 2 * time.Minute

// errRosterClosed means the candidate filled or moved on between lookup and join.
var errRosterClosed = errf("roster closed")

func NewManager(store Store, questions question.Source, opts Options) *Manager {
	if opts.DefaultTargetStreak <= 0 {
		opts.DefaultTargetStreak = 8
	}
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Manager{store: store, questions: questions, opts: opts}
}

// OnFinished registers a hook that runs once per terminal match.
func (m *Manager) OnFinished(h OutcomeHook) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

func (m *Manager) Store() Store { return m.store }

// FindOrJoinMatch joins the most recent waiting match of the format or opens a new one.
func (m *Manager) FindOrJoinMatch(ctx context.Context, s Session, format Format) (*Match, error) {
	if !s.valid() {
		return nil, ErrInvalidArgs
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	playerID := strings.TrimSpace(s.PlayerID)

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		cand, err := m.store.LatestWaiting(ctx, format)
		if err != nil {
			obslog.L().Error("duel_search_lookup_failed", zap.String("format", string(format)), zap.Error(err))
			return nil, fmt.Errorf("lookup waiting match: %w", err)
		}
		if cand == nil {
			break
		}
		if cand.HasPlayer(playerID) {
			return cand, nil
		}
		joined, err := m.store.UpdateMatch(ctx, cand.ID, func(cur *Match) error {
			return m.join(cur, playerID)
		})
		if errors.Is(err, errRosterClosed) || errors.Is(err, ErrMatchNotFound) {
			continue
		}
		if err != nil {
			obslog.L().Error("duel_join_failed", zap.String("match_id", cand.ID), zap.String("player_id", playerID), zap.Error(err))
			return nil, err
		}
		obslog.L().Info("duel_join",
			zap.String("match_id", joined.ID),
			zap.String("player_id", playerID),
			zap.Int("players", len(joined.PlayerIDs)),
			zap.String("status", string(joined.Status)),
		)
		return joined, nil
	}

	now := m.opts.Now()
	match := &Match{
		ID:           m.opts.NewID(),
		Format:       format,
		PlayerIDs:    []string{playerID},
		TargetStreak: m.opts.DefaultTargetStreak,
		Status:       StatusWaiting,
		LastActivity: map[string]time.Time{playerID: now},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateMatch(ctx, match); err != nil {
		obslog.L().Error("duel_create_failed", zap.String("player_id", playerID), zap.Error(err))
		return nil, fmt.Errorf("create match: %w", err)
	}
	obslog.L().Info("duel_create", zap.String("match_id", match.ID), zap.String("format", string(format)), zap.String("player_id", playerID))
	return match, nil
}

func (m *Manager) join(cur *Match, playerID string) error {
	if cur.Status != StatusWaiting {
		return errRosterClosed
	}
	if cur.HasPlayer(playerID) {
		return ErrNoChange
	}
	if cur.Full() {
		return errRosterClosed
	}
	now := m.opts.Now()
	cur.PlayerIDs = append(cur.PlayerIDs, playerID)
	if cur.LastActivity == nil {
		cur.LastActivity = make(map[string]time.Time)
	}
	cur.LastActivity[playerID] = now
	cur.UpdatedAt = now
	if cur.Full() {
		cur.assignTeams()
		return cur.transition(StatusInProgress)
	}
	return nil
}

// CreateBracketMatch opens an in-progress tournament match between two players.
// Neither player has activity yet, so liveness only applies to a player after
// their own first poll or answer.
func (m *Manager) CreateBracketMatch(ctx context.Context, tournamentID, bracketID, playerA, playerB string) (*Match, error) {
	if strings.TrimSpace(playerA) == "" || strings.TrimSpace(playerB) == "" || playerA == playerB {
		return nil, ErrInvalidArgs
	}
	now := m.opts.Now()
	match := &Match{
		ID:           m.opts.NewID(),
		Format:       FormatTournament,
		PlayerIDs:    []string{playerA, playerB},
		TargetStreak: m.opts.DefaultTargetStreak,
		Status:       StatusWaiting,
		LastActivity: make(map[string]time.Time),
		TournamentID: tournamentID,
		BracketID:    bracketID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	match.assignTeams()
	if err := match.transition(StatusInProgress); err != nil {
		return nil, err
	}
	if err := m.store.CreateMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("create bracket match: %w", err)
	}
	obslog.L().Info("duel_bracket_match_create",
		zap.String("match_id", match.ID),
		zap.String("tournament_id", tournamentID),
		zap.String("bracket_id", bracketID),
	)
	return match, nil
}

// PollMatch returns the latest snapshot, records the poller's heartbeat and
// applies the opponent liveness check.
func (m *Manager) PollMatch(ctx context.Context, s Session, matchID string) (*PollResult, error) {
	if !s.valid() {
		return nil, ErrInvalidArgs
	}
	playerID := strings.TrimSpace(s.PlayerID)
	cur, err := m.store.LoadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !cur.HasPlayer(playerID) {
		return nil, ErrNotParticipant
	}
	if cur.Status.Terminal() {
		return &PollResult{Match: cur, Done: true}, nil
	}

	var timedOut []string
	updated, err := m.store.UpdateMatch(ctx, matchID, func(mt *Match) error {
		timedOut = nil
		if mt.Status.Terminal() {
			return ErrNoChange
		}
		now := m.opts.Now()
		if mt.LastActivity == nil {
			mt.LastActivity = make(map[string]time.Time)
		}
		mt.LastActivity[playerID] = now
		mt.UpdatedAt = now
		if mt.Status != StatusInProgress {
			return nil
		}
		timedOut = mt.StaleOpponents(playerID, now, m.opts.LivenessTimeout)
		if len(timedOut) == 0 {
			return nil
		}
		team, _ := mt.TeamOf(playerID)
		return mt.complete(team, EndOpponentTimeout, now)
	})
	if err != nil {
		// A lost heartbeat is not fatal to the caller; return what we read.
		obslog.L().Warn("duel_poll_update_failed", zap.String("match_id", matchID), zap.String("player_id", playerID), zap.Error(err))
		return &PollResult{Match: cur, Done: cur.Status.Terminal()}, nil
	}
	if len(timedOut) > 0 && updated.EndReason == EndOpponentTimeout {
		obslog.L().Info("duel_opponent_timeout",
			zap.String("match_id", matchID),
			zap.String("winner_team", string(updated.WinnerTeam)),
			zap.Strings("stale", timedOut),
		)
		m.settle(ctx, updated)
	}
	return &PollResult{Match: updated, Done: updated.Status.Terminal(), TimedOut: timedOut}, nil
}

// SubmitAnswer records the turn and then applies it to the team streak.
func (m *Manager) SubmitAnswer(ctx context.Context, s Session, matchID, questionID string, choiceIndex int) (*AnswerResult, error) {
	if !s.valid() || strings.TrimSpace(questionID) == "" {
		return nil, ErrInvalidArgs
	}
	playerID := strings.TrimSpace(s.PlayerID)
	cur, err := m.store.LoadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	team, ok := cur.TeamOf(playerID)
	if !ok {
		if cur.HasPlayer(playerID) {
			return nil, ErrNotInProgress
		}
		return nil, ErrNotParticipant
	}
	if cur.Status == StatusWaiting {
		return nil, ErrNotInProgress
	}
	q, err := m.questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	correct, err := q.Check(choiceIndex)
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		ID:          m.opts.NewID(),
		MatchID:     matchID,
		QuestionID:  q.ID,
		PlayerID:    playerID,
		Team:        team,
		ChoiceIndex: choiceIndex,
		Correct:     correct,
		CreatedAt:   m.opts.Now(),
	}
	if err := m.store.AppendTurn(ctx, turn); err != nil {
		obslog.L().Error("duel_turn_write_failed", zap.String("match_id", matchID), zap.Error(err))
		return nil, fmt.Errorf("record turn: %w", err)
	}

	applied := false
	updated, err := m.store.UpdateMatch(ctx, matchID, func(mt *Match) error {
		applied = false
		if mt.Status != StatusInProgress {
			return ErrNoChange
		}
		now := m.opts.Now()
		if correct {
			mt.setStreak(team, mt.Streak(team)+1)
		} else {
			mt.setStreak(team, 0)
		}
		if mt.LastActivity == nil {
			mt.LastActivity = make(map[string]time.Time)
		}
		mt.LastActivity[playerID] = now
		mt.UpdatedAt = now
		applied = true
		if mt.Streak(team) >= mt.TargetStreak {
			return mt.complete(team, EndStreak, now)
		}
		return nil
	})
	if err != nil {
		obslog.L().Error("duel_streak_update_failed", zap.String("match_id", matchID), zap.String("player_id", playerID), zap.Error(err))
		return nil, fmt.Errorf("update match: %w", err)
	}
	if applied && updated.Status == StatusCompleted {
		obslog.L().Info("duel_streak_win",
			zap.String("match_id", matchID),
			zap.String("winner_team", string(updated.WinnerTeam)),
			zap.Int("streak", updated.Streak(updated.WinnerTeam)),
		)
		m.settle(ctx, updated)
	}
	return &AnswerResult{
		Turn:         turn,
		Correct:      correct,
		CorrectIndex: q.AnswerIndex,
		Explanation:  q.Feedback(),
		Match:        updated,
		Applied:      applied,
	}, nil
}

// CancelMatch abandons a waiting match on behalf of one of its participants.
func (m *Manager) CancelMatch(ctx context.Context, s Session, matchID string) (*Match, error) {
	if !s.valid() {
		return nil, ErrInvalidArgs
	}
	playerID := strings.TrimSpace(s.PlayerID)
	updated, err := m.store.UpdateMatch(ctx, matchID, func(mt *Match) error {
		if !mt.HasPlayer(playerID) {
			return ErrNotParticipant
		}
		if mt.Status != StatusWaiting {
			return ErrNotCancellable
		}
		return m.cancel(mt)
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("duel_cancel", zap.String("match_id", matchID), zap.String("player_id", playerID))
	m.settle(ctx, updated)
	return updated, nil
}

func (m *Manager) cancel(mt *Match) error {
	if err := mt.transition(StatusCancelled); err != nil {
		return err
	}
	now := m.opts.Now()
	mt.EndReason = EndCancelled
	mt.EndedAt = now
	mt.UpdatedAt = now
	return nil
}

// CancelStaleSearches cancels waiting matches created more than olderThan ago.
// It returns the number of matches cancelled.
func (m *Manager) CancelStaleSearches(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.opts.Now().Add(-olderThan)
	n := 0
	for _, f := range SearchFormats {
		ids, err := m.store.WaitingCreatedBefore(ctx, f, cutoff)
		if err != nil {
			return n, err
		}
		for _, id := range ids {
			cancelled := false
			updated, err := m.store.UpdateMatch(ctx, id, func(mt *Match) error {
				cancelled = false
				if mt.Status != StatusWaiting || !mt.CreatedAt.Before(cutoff) {
					return ErrNoChange
				}
				cancelled = true
				return m.cancel(mt)
			})
			if errors.Is(err, ErrMatchNotFound) {
				continue
			}
			if err != nil {
				obslog.L().Warn("duel_stale_cancel_failed", zap.String("match_id", id), zap.Error(err))
				continue
			}
			if cancelled {
				n++
				m.settle(ctx, updated)
			}
		}
	}
	if n > 0 {
		obslog.L().Info("duel_stale_searches_cancelled", zap.Int("count", n))
	}
	return n, nil
}

// ForceComplete ends an in-progress match with the given winner.
func (m *Manager) ForceComplete(ctx context.Context, matchID string, winner Team) (*Match, error) {
	if winner != TeamA && winner != TeamB {
		return nil, ErrInvalidArgs
	}
	updated, err := m.store.UpdateMatch(ctx, matchID, func(mt *Match) error {
		return mt.complete(winner, EndForced, m.opts.Now())
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("duel_force_complete", zap.String("match_id", matchID), zap.String("winner_team", string(winner)))
	m.settle(ctx, updated)
	return updated, nil
}

// ComputeResults aggregates the turn log. For finished matches it also makes
// sure the outcome hooks have run.
func (m *Manager) ComputeResults(ctx context.Context, matchID string) (*Results, error) {
	mt, err := m.store.LoadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	turns, err := m.store.Turns(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	res := Aggregate(mt, turns)
	if mt.Status.Terminal() {
		m.settleWith(ctx, &Outcome{Match: mt, Turns: turns, Results: res})
	}
	return res, nil
}

// Settle runs outcome hooks for a finished match if they have not run yet.
func (m *Manager) Settle(ctx context.Context, matchID string) error {
	mt, err := m.store.LoadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if !mt.Status.Terminal() {
		return ErrNotInProgress
	}
	turns, err := m.store.Turns(ctx, matchID)
	if err != nil {
		return err
	}
	return m.settleWith(ctx, &Outcome{Match: mt, Turns: turns, Results: Aggregate(mt, turns)})
}

func (m *Manager) settle(ctx context.Context, mt *Match) {
	turns, err := m.store.Turns(ctx, mt.ID)
	if err != nil {
		obslog.L().Warn("duel_settle_turns_failed", zap.String("match_id", mt.ID), zap.Error(err))
		return
	}
	_ = m.settleWith(ctx, &Outcome{Match: mt, Turns: turns, Results: Aggregate(mt, turns)})
}

func (m *Manager) settleWith(ctx context.Context, o *Outcome) error {
	m.mu.RLock()
	hooks := append([]OutcomeHook(nil), m.hooks...)
	m.mu.RUnlock()
	if len(hooks) == 0 {
		return nil
	}
	claimed, err := m.store.ClaimOutcome(ctx, o.Match.ID, outcomeLease)
	if err != nil {
		obslog.L().Warn("duel_outcome_claim_failed", zap.String("match_id", o.Match.ID), zap.Error(err))
		return err
	}
	if !claimed {
		return nil
	}
	for _, h := range hooks {
		if err := h(ctx, o); err != nil {
			obslog.L().Error("duel_outcome_hook_failed", zap.String("match_id", o.Match.ID), zap.Error(err))
			if rerr := m.store.ReleaseOutcome(ctx, o.Match.ID); rerr != nil {
				obslog.L().Warn("duel_outcome_release_failed", zap.String("match_id", o.Match.ID), zap.Error(rerr))
			}
			return err
		}
	}
	if err := m.store.FinishOutcome(ctx, o.Match.ID); err != nil {
		// The lease runs out and the idempotent hooks run again.
		obslog.L().Warn("duel_outcome_finish_failed", zap.String("match_id", o.Match.ID), zap.Error(err))
	}
	obslog.L().Info("duel_outcome_applied", zap.String("match_id", o.Match.ID), zap.String("status", string(o.Match.Status)))
	return nil
}
