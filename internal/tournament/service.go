package tournament

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/obslog"
	"go.uber.org/zap"
)

const (
	BadgeChampion = "Tournament Champion"
	BadgeFinalist = "Finalist"
)

// MatchCreator opens the duel behind a bracket entry.
type MatchCreator interface {
	CreateBracketMatch(ctx context.Context, tournamentID, bracketID, playerA, playerB string) (*duel.Match, error)
}

type BadgeAwarder interface {
	AwardBadge(ctx context.Context, playerID, badge, source string) error
}

type Options struct {
	Location   *time.Location
	OpenHour   int
	StartSizes []int
	Now        func() time.Time
	NewID      func() string
	Shuffle    func([]string)
}

type Service struct {
	store   *Store
	matches MatchCreator
	badges  BadgeAwarder
	opts    Options
}

func NewService(store *Store, matches MatchCreator, badges BadgeAwarder, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.OpenHour < 0 || opts.OpenHour > 23 {
		opts.OpenHour = 19
	}
	if len(opts.StartSizes) == 0 {
		opts.StartSizes = []int{4, 8, 16}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Shuffle == nil {
		opts.Shuffle = func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		}
	}
	return &Service{store: store, matches: matches, badges: badges, opts: opts}
}

func (s *Service) localDay(now time.Time) (time.Time, string) {
	local := now.In(s.opts.Location)
	return local, local.Format("2006-01-02")
}

// EnsureDaily creates today's bracket once the local open hour has passed.
// Before that it returns ErrNotOpenYet.
func (s *Service) EnsureDaily(ctx context.Context, now time.Time) (*Tournament, error) {
	local, day := s.localDay(now)
	if local.Hour() < s.opts.OpenHour {
		if id, err := s.store.DailyID(ctx, day); err == nil {
			return s.store.Tournament(ctx, id)
		}
		return nil, ErrNotOpenYet
	}
	id := s.opts.NewID()
	owner, created, err := s.store.ClaimDaily(ctx, day, id)
	if err != nil {
		return nil, err
	}
	if !created {
		return s.store.Tournament(ctx, owner)
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), s.opts.OpenHour, 0, 0, 0, s.opts.Location)
	t := &Tournament{
		ID:        id,
		Name:      DailyName(local),
		Day:       day,
		StartDate: start,
		Status:    StatusRegistering,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveTournament(ctx, t); err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_daily_create", zap.String("tournament_id", id), zap.String("name", t.Name))
	return t, nil
}

// Today returns the tournament of the current local day.
func (s *Service) Today(ctx context.Context) (*Tournament, error) {
	_, day := s.localDay(s.opts.Now())
	id, err := s.store.DailyID(ctx, day)
	if err != nil {
		return nil, err
	}
	return s.store.Tournament(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Tournament, error) {
	return s.store.Tournament(ctx, id)
}

// Register adds a player. Reaching one of the start sizes starts the bracket.
func (s *Service) Register(ctx context.Context, sess duel.Session, tournamentID string) (*Tournament, error) {
	playerID := strings.TrimSpace(sess.PlayerID)
	if playerID == "" {
		return nil, ErrInvalidArgs
	}
	t, err := s.store.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusRegistering {
		if t.seeded(playerID) {
			return t, nil
		}
		return nil, ErrClosed
	}
	count, err := s.store.AddParticipant(ctx, tournamentID, playerID, s.opts.Now())
	if err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_register", zap.String("tournament_id", tournamentID), zap.String("player_id", playerID), zap.Int("count", count))
	if slices.Contains(s.opts.StartSizes, count) {
		if t, err = s.Start(ctx, tournamentID); err != nil {
			return nil, err
		}
	} else if t, err = s.store.Tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	// The bracket may have been seeded between our status check and the add.
	if t.Status != StatusRegistering && !t.seeded(playerID) {
		_ = s.store.RemoveParticipant(ctx, tournamentID, playerID)
		return nil, ErrClosed
	}
	return t, nil
}

// Start seeds round 1 from the registered players. Only one caller seeds.
func (s *Service) Start(ctx context.Context, tournamentID string) (*Tournament, error) {
	ids, err := s.store.Participants(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("start tournament: %w", ErrInvalidArgs)
	}
	seeds := append([]string(nil), ids...)
	s.opts.Shuffle(seeds)

	started := false
	t, err := s.store.UpdateTournament(ctx, tournamentID, func(cur *Tournament) error {
		started = false
		if cur.Status != StatusRegistering {
			return errNoChange
		}
		cur.Status = StatusInProgress
		cur.Size = len(seeds)
		cur.Seeds = seeds
		cur.CurrentRound = 1
		cur.UpdatedAt = s.opts.Now()
		started = true
		return nil
	})
	if err != nil || !started {
		return t, err
	}
	obslog.L().Info("tournament_start", zap.String("tournament_id", tournamentID), zap.Int("size", len(seeds)))
	if err := s.openRound(ctx, t, 1, seeds); err != nil {
		return nil, err
	}
	return s.store.Tournament(ctx, tournamentID)
}

// openRound pairs players in order. An odd player out gets a resolved bye.
func (s *Service) openRound(ctx context.Context, t *Tournament, round int, players []string) error {
	for i := 0; i < len(players); i += 2 {
		e := &Entry{
			ID:           s.opts.NewID(),
			TournamentID: t.ID,
			Round:        round,
			MatchInRound: i/2 + 1,
			PlayerA:      players[i],
			CreatedAt:    s.opts.Now(),
		}
		if i+1 < len(players) {
			e.PlayerB = players[i+1]
		} else {
			e.WinnerID = e.PlayerA
		}
		if err := s.store.SaveEntry(ctx, e); err != nil {
			return err
		}
		if e.Bye() {
			obslog.L().Info("tournament_bye", zap.String("tournament_id", t.ID), zap.Int("round", round), zap.String("player_id", e.PlayerA))
			continue
		}
		m, err := s.matches.CreateBracketMatch(ctx, t.ID, e.ID, e.PlayerA, e.PlayerB)
		if err != nil {
			return fmt.Errorf("create bracket match: %w", err)
		}
		if _, err := s.store.UpdateEntry(ctx, e.ID, func(cur *Entry) error {
			cur.MatchID = m.ID
			return nil
		}); err != nil {
			return err
		}
	}
	return s.advance(ctx, t.ID, round)
}

// RecordMatchResult resolves the bracket entry behind a finished tournament match.
func (s *Service) RecordMatchResult(ctx context.Context, m *duel.Match) error {
	if m == nil || m.TournamentID == "" || m.BracketID == "" || m.Status != duel.StatusCompleted {
		return nil
	}
	e, err := s.store.UpdateEntry(ctx, m.BracketID, func(cur *Entry) error {
		if cur.Resolved() {
			return errNoChange
		}
		if m.WinnerTeam == duel.TeamA {
			cur.WinnerID = cur.PlayerA
		} else {
			cur.WinnerID = cur.PlayerB
		}
		if cur.MatchID == "" {
			cur.MatchID = m.ID
		}
		return nil
	})
	if err != nil {
		return err
	}
	obslog.L().Info("tournament_entry_resolved",
		zap.String("tournament_id", e.TournamentID),
		zap.String("entry_id", e.ID),
		zap.Int("round", e.Round),
		zap.String("winner_id", e.WinnerID),
	)
	return s.advance(ctx, e.TournamentID, e.Round)
}

// Hook adapts RecordMatchResult to the duel outcome hook.
func (s *Service) Hook() duel.OutcomeHook {
	return func(ctx context.Context, o *duel.Outcome) error {
		return s.RecordMatchResult(ctx, o.Match)
	}
}

// advance closes round once every entry has a winner: the last entry of the
// final round completes the tournament, otherwise winners are re-paired.
func (s *Service) advance(ctx context.Context, tournamentID string, round int) error {
	all, err := s.store.Entries(ctx, tournamentID)
	if err != nil {
		return err
	}
	var entries []*Entry
	for _, e := range all {
		if e.Round == round {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	winners := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Resolved() {
			return nil
		}
		winners = append(winners, e.WinnerID)
	}

	if len(entries) == 1 {
		return s.complete(ctx, tournamentID, round, entries[0])
	}

	s.opts.Shuffle(winners)
	moved := false
	t, err := s.store.UpdateTournament(ctx, tournamentID, func(cur *Tournament) error {
		moved = false
		if cur.Status != StatusInProgress || cur.CurrentRound != round {
			return errNoChange
		}
		cur.CurrentRound = round + 1
		cur.UpdatedAt = s.opts.Now()
		moved = true
		return nil
	})
	if err != nil || !moved {
		return err
	}
	obslog.L().Info("tournament_round_advance", zap.String("tournament_id", tournamentID), zap.Int("round", round+1), zap.Int("players", len(winners)))
	return s.openRound(ctx, t, round+1, winners)
}

func (s *Service) complete(ctx context.Context, tournamentID string, round int, final *Entry) error {
	done := false
	_, err := s.store.UpdateTournament(ctx, tournamentID, func(cur *Tournament) error {
		done = false
		if cur.Status != StatusInProgress || cur.CurrentRound != round {
			return errNoChange
		}
		now := s.opts.Now()
		cur.Status = StatusCompleted
		cur.WinnerID = final.WinnerID
		cur.RunnerUpID = final.Loser()
		cur.CompletedAt = now
		cur.UpdatedAt = now
		done = true
		return nil
	})
	if err != nil {
		return err
	}
	if done {
		obslog.L().Info("tournament_complete", zap.String("tournament_id", tournamentID), zap.String("winner_id", final.WinnerID))
	}
	// Badge grants are idempotent, so a retried hook tops up anything missed.
	if s.badges == nil {
		return nil
	}
	var errs []error
	if err := s.badges.AwardBadge(ctx, final.WinnerID, BadgeChampion, tournamentID); err != nil {
		errs = append(errs, err)
	}
	if loser := final.Loser(); loser != "" {
		if err := s.badges.AwardBadge(ctx, loser, BadgeFinalist, tournamentID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bracket groups a tournament's entries by round.
func (s *Service) Bracket(ctx context.Context, id string) (*Bracket, error) {
	t, err := s.store.Tournament(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Entries(ctx, id)
	if err != nil {
		return nil, err
	}
	b := &Bracket{Tournament: t}
	for _, e := range entries {
		for len(b.Rounds) < e.Round {
			b.Rounds = append(b.Rounds, nil)
		}
		b.Rounds[e.Round-1] = append(b.Rounds[e.Round-1], e)
	}
	return b, nil
}
