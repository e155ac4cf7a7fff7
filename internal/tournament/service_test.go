package tournament

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type badgeLog struct {
	mu     sync.Mutex
	grants map[string][]string
}

func (b *badgeLog) AwardBadge(ctx context.Context, playerID, badge, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, have := range b.grants[playerID] {
		if have == badge {
			return nil
		}
	}
	b.grants[playerID] = append(b.grants[playerID], badge)
	return nil
}

type fixture struct {
	svc    *Service
	duels  *duel.Manager
	badges *badgeLog
	now    time.Time
}

func newFixture(t *testing.T, sizes []int) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bank, err := question.LoadFile("")
	require.NoError(t, err)
	duels := duel.NewManager(duel.NewRedisStore(rdb, 10), bank, duel.Options{})

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	f := &fixture{
		duels:  duels,
		badges: &badgeLog{grants: map[string][]string{}},
		now:    time.Date(2026, 10, 15, 20, 0, 0, 0, chicago),
	}
	var seq atomic.Int64
	f.svc = NewService(NewStore(rdb, 10), duels, f.badges, Options{
		Location:   chicago,
		OpenHour:   19,
		StartSizes: sizes,
		Now:        func() time.Time { return f.now },
		NewID:      func() string { return fmt.Sprintf("t%d", seq.Add(1)) },
		Shuffle:    func([]string) {},
	})
	duels.OnFinished(f.svc.Hook())
	return f
}

func (f *fixture) registerN(t *testing.T, tid string, n int) *Tournament {
	t.Helper()
	var out *Tournament
	for i := 1; i <= n; i++ {
		var err error
		out, err = f.svc.Register(context.Background(), duel.Session{PlayerID: fmt.Sprintf("p%d", i)}, tid)
		require.NoError(t, err)
	}
	return out
}

func roundOf(t *testing.T, f *fixture, tid string, round int) []*Entry {
	t.Helper()
	b, err := f.svc.Bracket(context.Background(), tid)
	require.NoError(t, err)
	if len(b.Rounds) < round {
		return nil
	}
	return b.Rounds[round-1]
}

// win force-completes the entry's match with player A as the winner.
func (f *fixture) win(t *testing.T, e *Entry) {
	t.Helper()
	require.NotEmpty(t, e.MatchID, "entry %s has no match", e.ID)
	_, err := f.duels.ForceComplete(context.Background(), e.MatchID, duel.TeamA)
	require.NoError(t, err)
}

func TestEnsureDailyOpensAtSevenCentral(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	early := f.now.Add(-2 * time.Hour)
	_, err := f.svc.EnsureDaily(ctx, early)
	assert.ErrorIs(t, err, ErrNotOpenYet)

	first, err := f.svc.EnsureDaily(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, "Daily Bracket - Oct 15th", first.Name)
	assert.Equal(t, StatusRegistering, first.Status)
	assert.Equal(t, "2026-10-15", first.Day)

	again, err := f.svc.EnsureDaily(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	today, err := f.svc.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, today.ID)
}

func TestDailyName(t *testing.T) {
	for day, want := range map[int]string{1: "Jan 1st", 2: "Jan 2nd", 3: "Jan 3rd", 11: "Jan 11th", 12: "Jan 12th", 22: "Jan 22nd", 31: "Jan 31st"} {
		got := DailyName(time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, "Daily Bracket - "+want, got)
	}
}

func TestRegisterStartsAtFour(t *testing.T) {
	f := newFixture(t, []int{4, 8, 16})
	ctx := context.Background()
	tour, err := f.svc.EnsureDaily(ctx, f.now)
	require.NoError(t, err)

	got := f.registerN(t, tour.ID, 3)
	assert.Equal(t, StatusRegistering, got.Status)
	got, err = f.svc.Register(ctx, duel.Session{PlayerID: "p2"}, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRegistering, got.Status)

	got, err = f.svc.Register(ctx, duel.Session{PlayerID: "p4"}, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, 4, got.Size)
	assert.Equal(t, 1, got.CurrentRound)

	round1 := roundOf(t, f, tour.ID, 1)
	require.Len(t, round1, 2)
	for _, e := range round1 {
		assert.False(t, e.Bye())
		m, err := f.duels.Store().LoadMatch(ctx, e.MatchID)
		require.NoError(t, err)
		assert.Equal(t, duel.StatusInProgress, m.Status)
		assert.Equal(t, []string{e.PlayerA}, m.TeamA)
		assert.Equal(t, []string{e.PlayerB}, m.TeamB)
	}

	_, err = f.svc.Register(ctx, duel.Session{PlayerID: "late"}, tour.ID)
	assert.ErrorIs(t, err, ErrClosed)
	again, err := f.svc.Register(ctx, duel.Session{PlayerID: "p1"}, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, tour.ID, again.ID)
}

func TestFourthWinnerOpensNextRound(t *testing.T) {
	f := newFixture(t, []int{8})
	ctx := context.Background()
	tour, err := f.svc.EnsureDaily(ctx, f.now)
	require.NoError(t, err)
	f.registerN(t, tour.ID, 8)

	round1 := roundOf(t, f, tour.ID, 1)
	require.Len(t, round1, 4)
	for _, e := range round1[:3] {
		f.win(t, e)
	}
	assert.Empty(t, roundOf(t, f, tour.ID, 2))

	f.win(t, round1[3])
	round2 := roundOf(t, f, tour.ID, 2)
	require.Len(t, round2, 2)
	var seeded []string
	for _, e := range round2 {
		seeded = append(seeded, e.PlayerA, e.PlayerB)
	}
	var winners []string
	for _, e := range round1 {
		winners = append(winners, e.PlayerA)
	}
	assert.ElementsMatch(t, winners, seeded)

	// Replaying an outcome does not open a second round 2.
	m, err := f.duels.Store().LoadMatch(ctx, round1[3].MatchID)
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordMatchResult(ctx, m))
	assert.Len(t, roundOf(t, f, tour.ID, 2), 2)

	for _, e := range round2 {
		f.win(t, e)
	}
	final := roundOf(t, f, tour.ID, 3)
	require.Len(t, final, 1)
	f.win(t, final[0])

	done, err := f.svc.Get(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, final[0].PlayerA, done.WinnerID)
	assert.Equal(t, final[0].PlayerB, done.RunnerUpID)
	assert.Equal(t, []string{BadgeChampion}, f.badges.grants[final[0].PlayerA])
	assert.Equal(t, []string{BadgeFinalist}, f.badges.grants[final[0].PlayerB])
}

func TestOddFieldGetsByes(t *testing.T) {
	f := newFixture(t, []int{16})
	ctx := context.Background()
	tour, err := f.svc.EnsureDaily(ctx, f.now)
	require.NoError(t, err)
	f.registerN(t, tour.ID, 5)
	_, err = f.svc.Start(ctx, tour.ID)
	require.NoError(t, err)

	round1 := roundOf(t, f, tour.ID, 1)
	require.Len(t, round1, 3)
	bye := round1[2]
	assert.True(t, bye.Bye())
	assert.Equal(t, bye.PlayerA, bye.WinnerID)
	assert.Empty(t, bye.MatchID)

	f.win(t, round1[0])
	f.win(t, round1[1])

	round2 := roundOf(t, f, tour.ID, 2)
	require.Len(t, round2, 2)
	assert.True(t, round2[1].Bye())
	f.win(t, round2[0])

	final := roundOf(t, f, tour.ID, 3)
	require.Len(t, final, 1)
	assert.False(t, final[0].Bye())
	f.win(t, final[0])

	done, err := f.svc.Get(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 5, done.Size)
}

func TestNonTournamentMatchesAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.RecordMatchResult(context.Background(), &duel.Match{ID: "x", Status: duel.StatusCompleted})
	assert.NoError(t, err)
}
