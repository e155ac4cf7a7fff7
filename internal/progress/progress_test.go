package progress

import (
	"context"
	"testing"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed1v1(id string, winner duel.Team) *duel.Match {
	return &duel.Match{
		ID:         id,
		Format:     duel.Format1v1,
		Status:     duel.StatusCompleted,
		PlayerIDs:  []string{"a", "b"},
		TeamA:      []string{"a"},
		TeamB:      []string{"b"},
		WinnerTeam: winner,
	}
}

func newService() *Service {
	return NewService(NewMemoryRepository(), Rewards{XPWin: 50, XPLoss: 10, CoinsWin: 10})
}

func TestApplyMatchOutcomeOnce(t *testing.T) {
	s := newService()
	ctx := context.Background()
	m := completed1v1("m1", duel.TeamA)
	res := duel.Aggregate(m, []*duel.Turn{
		{PlayerID: "a", Correct: true},
		{PlayerID: "a", Correct: true},
		{PlayerID: "b", Correct: true},
		{PlayerID: "b"},
	})

	applied, err := s.ApplyMatchOutcome(ctx, m, res)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.ApplyMatchOutcome(ctx, m, res)
	require.NoError(t, err)
	assert.False(t, applied)

	a, err := s.Profile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 52, a.XPTotal)
	assert.Equal(t, 10, a.Coins)
	assert.Equal(t, 1, a.DuelWins)
	assert.ElementsMatch(t, []string{BadgeFirstDuel, BadgeDuelChampion}, a.Badges)

	b, err := s.Profile(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 11, b.XPTotal)
	assert.Equal(t, 0, b.Coins)
	assert.Equal(t, 1, b.Duels)
	assert.Equal(t, []string{BadgeFirstDuel}, b.Badges)
}

func TestBadgesAreNotDuplicated(t *testing.T) {
	s := newService()
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := s.ApplyMatchOutcome(ctx, completed1v1(id, duel.TeamB), nil)
		require.NoError(t, err)
	}
	require.NoError(t, s.AwardBadge(ctx, "b", BadgeFinalist, "t1"))
	require.NoError(t, s.AwardBadge(ctx, "b", BadgeFinalist, "t1"))

	b, err := s.Profile(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 3, b.Duels)
	assert.Equal(t, 3, b.DuelWins)
	assert.Equal(t, 150, b.XPTotal)
	assert.ElementsMatch(t, []string{BadgeFirstDuel, BadgeDuelChampion, BadgeFinalist}, b.Badges)
}

func TestHookSkipsCancelledMatches(t *testing.T) {
	s := newService()
	hook := Hook(s)
	m := &duel.Match{ID: "c1", Status: duel.StatusCancelled, PlayerIDs: []string{"a"}}
	require.NoError(t, hook(context.Background(), &duel.Outcome{Match: m}))
	a, err := s.Profile(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Duels)

	_, err = s.ApplyMatchOutcome(context.Background(), m, nil)
	assert.ErrorIs(t, err, ErrNotCompleted)
}
