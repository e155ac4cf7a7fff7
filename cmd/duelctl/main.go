package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/park285/biblequest-duels/pkg/duelclient"
	"github.com/park285/biblequest-duels/pkg/dueldto"
)

const usage = `usage: duelctl <command> [args]

  search [1v1|2v2]     find or open a match and wait for it to start
  play <match-id>      answer questions until the match ends
  watch <match-id>     stream match snapshots
  cancel <match-id>    leave a match that is still searching
  results <match-id>   per-player stats
  history              your recent matches
  progress             your XP, coins and badges
  tournament           show and join today's bracket
  bracket <id>         show a tournament bracket

env: DUELS_URL (default http://localhost:8080), DUEL_USER (required)`

func main() {
	_ = godotenv.Load()
	baseURL := os.Getenv("DUELS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	user := strings.TrimSpace(os.Getenv("DUEL_USER"))
	if len(os.Args) < 2 || user == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	client := duelclient.New(baseURL, duelclient.WithUser(user), duelclient.WithTimeout(8*time.Second))
	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "search":
		format := "1v1"
		if len(args) > 0 {
			format = args[0]
		}
		err = runSearch(ctx, client, format)
	case "play":
		err = withMatch(args, func(id string) error { return runPlay(ctx, client, id) })
	case "watch":
		err = withMatch(args, func(id string) error { return runWatch(ctx, client, id) })
	case "cancel":
		err = withMatch(args, func(id string) error {
			m, err := client.Cancel(ctx, id)
			if err == nil {
				fmt.Printf("match %s %s\n", m.ID, m.Status)
			}
			return err
		})
	case "results":
		err = withMatch(args, func(id string) error { return printResults(ctx, client, id) })
	case "history":
		err = runHistory(ctx, client)
	case "progress":
		err = runProgress(ctx, client)
	case "tournament":
		err = runTournament(ctx, client)
	case "bracket":
		err = withMatch(args, func(id string) error { return printBracket(ctx, client, id) })
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func withMatch(args []string, fn func(id string) error) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("missing id")
	}
	return fn(strings.TrimSpace(args[0]))
}

func runSearch(ctx context.Context, c *duelclient.Client, format string) error {
	m, err := c.Search(ctx, format)
	if err != nil {
		return err
	}
	fmt.Printf("match %s (%s) %d player(s), %s\n", m.ID, m.Format, len(m.PlayerIDs), m.Status)
	if m.Status != "waiting" {
		return nil
	}
	updates, wait, err := c.Watch(ctx, m.ID)
	if err != nil {
		return err
	}
	for snap := range updates {
		switch snap.Status {
		case "waiting":
			fmt.Printf("waiting for players %d/%d\n", len(snap.PlayerIDs), len(snap.PlayerIDs)+missing(snap))
		case "in_progress":
			fmt.Printf("match started. team A %v vs team B %v\n", snap.TeamA, snap.TeamB)
			fmt.Printf("run: duelctl play %s\n", snap.ID)
			return nil
		case "cancelled":
			fmt.Println("search cancelled: no opponent found")
			return nil
		}
	}
	return wait()
}

func missing(m *dueldto.Match) int {
	capacity := 2
	if m.Format == "2v2" {
		capacity = 4
	}
	return max(capacity-len(m.PlayerIDs), 0)
}

func runPlay(ctx context.Context, c *duelclient.Client, matchID string) error {
	queue := question.NewQueue(remoteBank{c}, 20)
	in := bufio.NewScanner(os.Stdin)
	for {
		q, err := queue.Current(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n[%s] %s\n", q.ScriptureRef, q.Text)
		for i, ch := range q.Choices {
			fmt.Printf("  %d) %s\n", i+1, ch)
		}
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "h" && q.Hint != "" {
			fmt.Println("hint:", q.Hint)
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(q.Choices) {
			fmt.Printf("pick 1-%d (or h for a hint)\n", len(q.Choices))
			continue
		}
		res, err := c.Answer(ctx, matchID, q.ID, n-1)
		if err != nil {
			if duelclient.StatusOf(err) == 429 {
				fmt.Println(err)
				continue
			}
			return err
		}
		if res.Correct {
			fmt.Println("correct!")
		} else {
			fmt.Printf("wrong. answer: %s. %s\n", q.Choices[res.CorrectIndex], res.Explanation)
		}
		m := res.Match
		fmt.Printf("streaks A %d / B %d (target %d)\n", m.StreakA, m.StreakB, m.TargetStreak)
		if m.Finished() {
			fmt.Printf("match over: %s, winner team %s\n", m.EndReason, m.WinnerTeam)
			return printResults(ctx, c, matchID)
		}
		if _, err := queue.Next(ctx); err != nil {
			return err
		}
	}
}

func runWatch(ctx context.Context, c *duelclient.Client, matchID string) error {
	updates, wait, err := c.Watch(ctx, matchID)
	if err != nil {
		return err
	}
	for m := range updates {
		fmt.Printf("%s v%d %s A:%d B:%d\n", time.Now().Format(time.TimeOnly), m.Version, m.Status, m.StreakA, m.StreakB)
	}
	return wait()
}

func printResults(ctx context.Context, c *duelclient.Client, matchID string) error {
	r, err := c.Results(ctx, matchID)
	if err != nil {
		return err
	}
	fmt.Printf("match %s %s winner=%s total correct=%d\n", r.MatchID, r.Status, r.WinnerTeam, r.TotalCorrect)
	for _, p := range r.Players {
		fmt.Printf("  %-16s team %s  %d/%d (%d%%)  contribution %d%%\n", p.PlayerID, p.Team, p.Correct, p.Attempted, p.Accuracy, p.Contribution)
	}
	return nil
}

func runHistory(ctx context.Context, c *duelclient.Client) error {
	h, err := c.History(ctx, c.UserID(), 10)
	if err != nil {
		return err
	}
	if len(h.Matches) == 0 {
		fmt.Println("no matches yet")
	}
	for _, e := range h.Matches {
		result := "lost"
		if e.Won {
			result = "won"
		} else if e.Status == "cancelled" {
			result = "cancelled"
		}
		fmt.Printf("%s  %-4s %-9s %d:%d  %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Format, result, e.TeamAStreak, e.TeamBStreak, e.MatchID)
	}
	return nil
}

func runProgress(ctx context.Context, c *duelclient.Client) error {
	p, err := c.Progress(ctx, c.UserID())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d XP, %d coins, %d/%d duels won\n", p.PlayerID, p.XPTotal, p.Coins, p.DuelWins, p.Duels)
	if len(p.Badges) > 0 {
		fmt.Println("badges:", strings.Join(p.Badges, ", "))
	}
	return nil
}

func runTournament(ctx context.Context, c *duelclient.Client) error {
	t, err := c.TournamentToday(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", t.Name, t.Status)
	if t.Status == "registering" {
		if t, err = c.Register(ctx, t.ID); err != nil {
			return err
		}
		fmt.Printf("registered. status %s\n", t.Status)
	}
	return printBracket(ctx, c, t.ID)
}

func printBracket(ctx context.Context, c *duelclient.Client, id string) error {
	b, err := c.Bracket(ctx, id)
	if err != nil {
		return err
	}
	for i, round := range b.Rounds {
		fmt.Printf("round %d\n", i+1)
		for _, e := range round {
			opp := e.PlayerB
			if e.Bye {
				opp = "(bye)"
			}
			fmt.Printf("  #%d %s vs %s", e.MatchInRound, e.PlayerA, opp)
			if e.WinnerID != "" {
				fmt.Printf("  -> %s", e.WinnerID)
			} else if e.MatchID != "" {
				fmt.Printf("  match %s", e.MatchID)
			}
			fmt.Println()
		}
	}
	if b.Tournament.WinnerID != "" {
		fmt.Println("champion:", b.Tournament.WinnerID)
	}
	return nil
}

// remoteBank feeds the local question queue from the server. Served questions
// carry no answer key, so Get is unsupported.
type remoteBank struct{ c *duelclient.Client }

func (b remoteBank) Get(ctx context.Context, id string) (*question.Question, error) {
	return nil, question.ErrNotFound
}

func (b remoteBank) Batch(ctx context.Context, n int) ([]*question.Question, error) {
	qs, err := b.c.QuestionBatch(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]*question.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, &question.Question{
			ID:           q.ID,
			Book:         q.Book,
			Text:         q.Question,
			Choices:      q.Choices,
			Hint:         q.Hint,
			ScriptureRef: q.ScriptureRef,
			Difficulty:   q.Difficulty,
		})
	}
	return out, nil
}
