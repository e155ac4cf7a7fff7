package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/biblequest-duels/internal/archive"
	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/msgcat"
	"github.com/park285/biblequest-duels/internal/progress"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/park285/biblequest-duels/internal/tournament"
	"github.com/park285/biblequest-duels/pkg/duelclient"
	"github.com/park285/biblequest-duels/pkg/dueldto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv   *httptest.Server
	duels *duel.Manager
	tours *tournament.Service
}

func newEnv(t *testing.T, target int, opts Options) *env {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bank, err := question.LoadFile("")
	require.NoError(t, err)
	var seq atomic.Int64
	newID := func() string { return fmt.Sprintf("m%d", seq.Add(1)) }
	duels := duel.NewManager(duel.NewRedisStore(rdb, 10), bank, duel.Options{DefaultTargetStreak: target, NewID: newID})

	prog := progress.NewService(progress.NewMemoryRepository(), progress.Rewards{XPWin: 50, XPLoss: 10, CoinsWin: 10})
	arch := archive.NewMemoryRepository()

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, chicago)
	tours := tournament.NewService(tournament.NewStore(rdb, 10), duels, prog, tournament.Options{
		Location:   chicago,
		OpenHour:   19,
		StartSizes: []int{4},
		Now:        func() time.Time { return now },
		NewID:      newID,
		Shuffle:    func([]string) {},
	})
	duels.OnFinished(archive.Hook(arch))
	duels.OnFinished(tours.Hook())
	duels.OnFinished(progress.Hook(prog))

	msgs, err := msgcat.New("")
	require.NoError(t, err)

	s := New(Deps{Duels: duels, Questions: bank, Tournaments: tours, Archive: arch, Progress: prog, Messages: msgs}, opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &env{srv: srv, duels: duels, tours: tours}
}

func (e *env) client(user string) *duelclient.Client {
	return duelclient.New(e.srv.URL, duelclient.WithUser(user), duelclient.WithRetry(1))
}

func startDuel(t *testing.T, e *env) string {
	t.Helper()
	ctx := context.Background()
	first, err := e.client("alice").Search(ctx, "1v1")
	require.NoError(t, err)
	assert.Equal(t, "waiting", first.Status)
	second, err := e.client("bob").Search(ctx, "1v1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "in_progress", second.Status)
	return second.ID
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	e := newEnv(t, 8, Options{})
	resp, err := http.Post(e.srv.URL+"/v1/matches/search", "application/json", strings.NewReader(`{"format":"1v1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, 8, Options{})
	resp, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSearchRejectsUnknownFormat(t *testing.T) {
	e := newEnv(t, 8, Options{})
	_, err := e.client("alice").Search(context.Background(), "3v3")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, duelclient.StatusOf(err))
	assert.Contains(t, err.Error(), "3v3")
}

func TestDuelPlaysToCompletion(t *testing.T) {
	e := newEnv(t, 1, Options{})
	ctx := context.Background()
	id := startDuel(t, e)
	alice := e.client("alice")

	poll, err := alice.Poll(ctx, id)
	require.NoError(t, err)
	assert.False(t, poll.Done)
	team := poll.Match.TeamOf("alice")
	require.NotEmpty(t, team)

	res, err := alice.Answer(ctx, id, "gen-001", 3)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.True(t, res.Applied)
	assert.Equal(t, "completed", res.Match.Status)
	assert.Equal(t, team, res.Match.WinnerTeam)

	results, err := alice.Results(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, results.TotalCorrect)
	require.Len(t, results.Players, 2)

	hist, err := alice.History(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, hist.Matches, 1)
	assert.True(t, hist.Matches[0].Won)

	prog, err := alice.Progress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, prog.DuelWins)
	assert.Equal(t, 51, prog.XPTotal)
	assert.Contains(t, prog.Badges, progress.BadgeDuelChampion)
}

func TestWrongAnswerReturnsFeedback(t *testing.T) {
	e := newEnv(t, 8, Options{})
	id := startDuel(t, e)
	res, err := e.client("bob").Answer(context.Background(), id, "gen-001", 0)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, 3, res.CorrectIndex)
	assert.Equal(t, "See Genesis 2:2", res.Explanation)
}

func TestAnswerErrors(t *testing.T) {
	e := newEnv(t, 8, Options{})
	ctx := context.Background()
	id := startDuel(t, e)

	_, err := e.client("mallory").Answer(ctx, id, "gen-001", 3)
	assert.Equal(t, http.StatusForbidden, duelclient.StatusOf(err))

	_, err = e.client("alice").Answer(ctx, id, "nope", 0)
	assert.Equal(t, http.StatusNotFound, duelclient.StatusOf(err))

	_, err = e.client("alice").Answer(ctx, id, "gen-001", 9)
	assert.Equal(t, http.StatusBadRequest, duelclient.StatusOf(err))
	assert.EqualError(t, err, "Pick one of the listed answers.")

	_, err = e.client("alice").Answer(ctx, "missing", "gen-001", 3)
	assert.Equal(t, http.StatusNotFound, duelclient.StatusOf(err))
}

func TestAnswersAreRateLimited(t *testing.T) {
	e := newEnv(t, 8, Options{AnswerRate: 0.001, AnswerBurst: 1})
	ctx := context.Background()
	id := startDuel(t, e)
	alice := e.client("alice")
	_, err := alice.Answer(ctx, id, "gen-002", 0)
	require.NoError(t, err)
	_, err = alice.Answer(ctx, id, "gen-002", 0)
	assert.Equal(t, http.StatusTooManyRequests, duelclient.StatusOf(err))
	_, err = e.client("bob").Answer(ctx, id, "gen-002", 0)
	assert.NoError(t, err)
}

func TestCancelOnlyWhileSearching(t *testing.T) {
	e := newEnv(t, 8, Options{})
	ctx := context.Background()
	m, err := e.client("alice").Search(ctx, "2v2")
	require.NoError(t, err)

	_, err = e.client("bob").Cancel(ctx, m.ID)
	assert.Equal(t, http.StatusForbidden, duelclient.StatusOf(err))

	out, err := e.client("alice").Cancel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Status)

	id := startDuel(t, e)
	_, err = e.client("alice").Cancel(ctx, id)
	assert.Equal(t, http.StatusConflict, duelclient.StatusOf(err))
}

func TestQuestionBatchHidesAnswers(t *testing.T) {
	e := newEnv(t, 8, Options{})
	qs, err := e.client("alice").QuestionBatch(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, qs, 5)
	for _, q := range qs {
		assert.NotEmpty(t, q.ID)
		assert.NotEmpty(t, q.Choices)
	}

	resp, err := http.Get(e.srv.URL + "/v1/questions/batch?n=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = e.client("alice").QuestionBatch(context.Background(), 500)
	assert.Equal(t, http.StatusBadRequest, duelclient.StatusOf(err))
}

func TestTournamentFlow(t *testing.T) {
	e := newEnv(t, 1, Options{})
	ctx := context.Background()

	_, err := e.client("p1").TournamentToday(ctx)
	assert.Equal(t, http.StatusNotFound, duelclient.StatusOf(err))

	created, err := e.tours.EnsureDaily(ctx, time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	today, err := e.client("p1").TournamentToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, today.ID)
	assert.Equal(t, "Daily Bracket - Oct 15th", today.Name)

	var last *dueldto.Tournament
	for i := 1; i <= 4; i++ {
		last, err = e.client(fmt.Sprintf("p%d", i)).Register(ctx, today.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, "in_progress", last.Status)

	_, err = e.client("p5").Register(ctx, today.ID)
	assert.Equal(t, http.StatusConflict, duelclient.StatusOf(err))

	b, err := e.client("p1").Bracket(ctx, today.ID)
	require.NoError(t, err)
	require.Len(t, b.Rounds, 1)
	require.Len(t, b.Rounds[0], 2)
	first := b.Rounds[0][0]
	require.NotEmpty(t, first.MatchID)

	_, err = e.client(first.PlayerA).Answer(ctx, first.MatchID, "gen-001", 3)
	require.NoError(t, err)
	b, err = e.client("p1").Bracket(ctx, today.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PlayerA, b.Rounds[0][0].WinnerID)
}

func TestWatchStreamsUntilFinished(t *testing.T) {
	e := newEnv(t, 1, Options{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id := startDuel(t, e)

	updates, wait, err := e.client("alice").Watch(ctx, id)
	require.NoError(t, err)
	first := <-updates
	require.NotNil(t, first)
	assert.Equal(t, "in_progress", first.Status)

	_, err = e.client("bob").Answer(ctx, id, "gen-001", 3)
	require.NoError(t, err)

	var last *dueldto.Match
	for m := range updates {
		last = m
	}
	require.NotNil(t, last)
	assert.Equal(t, "completed", last.Status)
	assert.NoError(t, wait())
}

func TestWatchRejectsStrangers(t *testing.T) {
	e := newEnv(t, 8, Options{})
	id := startDuel(t, e)
	_, _, err := e.client("mallory").Watch(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, duelclient.StatusOf(err))
}
