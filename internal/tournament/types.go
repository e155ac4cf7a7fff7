package tournament

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusRegistering Status = "registering"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
)

type Tournament struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Day          string    `json:"day"`
	StartDate    time.Time `json:"start_date"`
	Status       Status    `json:"status"`
	Size         int       `json:"size"`
	Seeds        []string  `json:"seeds,omitempty"`
	CurrentRound int       `json:"current_round"`
	WinnerID     string    `json:"winner_id,omitempty"`
	RunnerUpID   string    `json:"runner_up_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

func (t *Tournament) seeded(playerID string) bool {
	for _, p := range t.Seeds {
		if p == playerID {
			return true
		}
	}
	return false
}

// Entry is one pairing in a round. A bye has no PlayerB and is resolved when created.
type Entry struct {
	ID           string    `json:"id"`
	TournamentID string    `json:"tournament_id"`
	Round        int       `json:"round"`
	MatchInRound int       `json:"match_in_round"`
	PlayerA      string    `json:"player_a_id"`
	PlayerB      string    `json:"player_b_id,omitempty"`
	WinnerID     string    `json:"winner_id,omitempty"`
	MatchID      string    `json:"match_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *Entry) Bye() bool      { return e.PlayerB == "" }
func (e *Entry) Resolved() bool { return e.WinnerID != "" }

// Loser is the other player of a resolved entry, empty for byes.
func (e *Entry) Loser() string {
	switch e.WinnerID {
	case e.PlayerA:
		return e.PlayerB
	case e.PlayerB:
		return e.PlayerA
	default:
		return ""
	}
}

// Bracket is a tournament with its entries grouped by round, round 1 first.
type Bracket struct {
	Tournament *Tournament `json:"tournament"`
	Rounds     [][]*Entry  `json:"rounds"`
}

// DailyName renders the display name of the bracket held on day.
func DailyName(day time.Time) string {
	return fmt.Sprintf("Daily Bracket - %s %s", day.Format("Jan"), ordinal(day.Day()))
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

var (
	ErrNotFound      = errf("tournament not found")
	ErrEntryNotFound = errf("bracket entry not found")
	ErrNotOpenYet    = errf("today's tournament opens later")
	ErrClosed        = errf("registration is closed")
	ErrInvalidArgs   = errf("invalid arguments")
	ErrConflict      = errf("concurrent update conflict")
	errNoChange      = errf("no change")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
