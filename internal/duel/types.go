package duel

import (
	"strings"
	"time"
)

// Format is the roster shape of a match.
type Format string

const (
	Format1v1        Format = "1v1"
	Format2v2        Format = "2v2"
	FormatTournament Format = "tournament"
)

// Capacity is the number of participants that fills a match.
func (f Format) Capacity() int {
	switch f {
	case Format2v2:
		return 4
	case Format1v1, FormatTournament:
		return 2
	default:
		return 0
	}
}

// ParseFormat accepts the formats players can search for. Tournament matches are
// only created by the bracket, never through search.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case Format1v1:
		return Format1v1, nil
	case Format2v2:
		return Format2v2, nil
	default:
		return "", ErrInvalidFormat
	}
}

// SearchFormats lists formats that have a waiting index.
var SearchFormats = []Format{Format1v1, Format2v2}

// Status is the match lifecycle.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

func (t Team) Opponent() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

// EndReason records which path finished the match.
type EndReason string

const (
	EndStreak          EndReason = "streak"
	EndOpponentTimeout EndReason = "opponent_timeout"
	EndForced          EndReason = "forced"
	EndCancelled       EndReason = "cancelled"
)

// Match is stored as JSON under duel:match:<id>. Version increments on every
// write and is the expected-previous-value for UpdateMatch.
type Match struct {
	ID           string               `json:"id"`
	Format       Format               `json:"format"`
	PlayerIDs    []string             `json:"player_ids"`
	TeamA        []string             `json:"team_a_player_ids"`
	TeamB        []string             `json:"team_b_player_ids"`
	StreakA      int                  `json:"team_a_streak"`
	StreakB      int                  `json:"team_b_streak"`
	TargetStreak int                  `json:"target_streak"`
	Status       Status               `json:"status"`
	WinnerTeam   Team                 `json:"winner_team,omitempty"`
	EndReason    EndReason            `json:"end_reason,omitempty"`
	LastActivity map[string]time.Time `json:"last_activity"`

	TournamentID string `json:"tournament_id,omitempty"`
	BracketID    string `json:"bracket_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Version   int64     `json:"version"`
}

func (m *Match) HasPlayer(playerID string) bool {
	for _, p := range m.PlayerIDs {
		if p == playerID {
			return true
		}
	}
	return false
}

// TeamOf reports the team of a participant once teams are assigned.
func (m *Match) TeamOf(playerID string) (Team, bool) {
	for _, p := range m.TeamA {
		if p == playerID {
			return TeamA, true
		}
	}
	for _, p := range m.TeamB {
		if p == playerID {
			return TeamB, true
		}
	}
	return "", false
}

func (m *Match) Roster(t Team) []string {
	if t == TeamA {
		return m.TeamA
	}
	return m.TeamB
}

func (m *Match) Streak(t Team) int {
	if t == TeamA {
		return m.StreakA
	}
	return m.StreakB
}

func (m *Match) setStreak(t Team, v int) {
	if t == TeamA {
		m.StreakA = v
	} else {
		m.StreakB = v
	}
}

// Full reports whether the roster reached the format's capacity.
func (m *Match) Full() bool { return len(m.PlayerIDs) >= m.Format.Capacity() }

// assignTeams splits participants by slot: even slots to A, odd slots to B.
func (m *Match) assignTeams() {
	m.TeamA = m.TeamA[:0]
	m.TeamB = m.TeamB[:0]
	for i, p := range m.PlayerIDs {
		if i%2 == 0 {
			m.TeamA = append(m.TeamA, p)
		} else {
			m.TeamB = append(m.TeamB, p)
		}
	}
}

// StaleOpponents returns members of the other team whose last activity is older
// than timeout at now. Players with no recorded activity are skipped.
func (m *Match) StaleOpponents(playerID string, now time.Time, timeout time.Duration) []string {
	team, ok := m.TeamOf(playerID)
	if !ok || timeout <= 0 {
		return nil
	}
	var stale []string
	for _, p := range m.Roster(team.Opponent()) {
		last, seen := m.LastActivity[p]
		if !seen || last.IsZero() {
			continue
		}
		if now.Sub(last) > timeout {
			stale = append(stale, p)
		}
	}
	return stale
}

// transition enforces waiting → in_progress → {completed, cancelled}.
func (m *Match) transition(to Status) error {
	if m.Status.Terminal() {
		return ErrTerminal
	}
	switch to {
	case StatusInProgress:
		if m.Status != StatusWaiting {
			return ErrInvalidTransition
		}
	case StatusCompleted:
		if m.Status != StatusInProgress {
			return ErrInvalidTransition
		}
	case StatusCancelled:
		if m.Status != StatusWaiting {
			return ErrInvalidTransition
		}
	default:
		return ErrInvalidTransition
	}
	m.Status = to
	return nil
}

func (m *Match) complete(winner Team, reason EndReason, now time.Time) error {
	if err := m.transition(StatusCompleted); err != nil {
		return err
	}
	m.WinnerTeam = winner
	m.EndReason = reason
	m.EndedAt = now
	return nil
}

// SnapshotVersion and Finished let a *Match drive a Poller.
func (m *Match) SnapshotVersion() int64 { return m.Version }
func (m *Match) Finished() bool         { return m.Status.Terminal() }

func (m *Match) clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.PlayerIDs = append([]string(nil), m.PlayerIDs...)
	c.TeamA = append([]string(nil), m.TeamA...)
	c.TeamB = append([]string(nil), m.TeamB...)
	c.LastActivity = make(map[string]time.Time, len(m.LastActivity))
	for k, v := range m.LastActivity {
		c.LastActivity[k] = v
	}
	return &c
}

// Turn is one answered question. Turns are append-only.
type Turn struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"match_id"`
	QuestionID  string    `json:"question_id"`
	PlayerID    string    `json:"player_id"`
	Team        Team      `json:"team"`
	ChoiceIndex int       `json:"choice_index"`
	Correct     bool      `json:"answered_correctly"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session carries the caller identity into every operation.
type Session struct {
	PlayerID string
}

func (s Session) valid() bool { return strings.TrimSpace(s.PlayerID) != "" }

type PollResult struct {
	Match *Match
	// Done is set once the match is terminal and the caller should leave the match loop.
	Done bool
	// TimedOut lists opponents whose inactivity ended the match during this poll.
	TimedOut []string
}

type AnswerResult struct {
	Turn         *Turn
	Correct      bool
	CorrectIndex int
	Explanation  string
	Match        *Match
	// Applied is false when the match had already ended and only the turn was recorded.
	Applied bool
}

// Errors
var (
	ErrInvalidArgs       = errf("invalid arguments")
	ErrInvalidFormat     = errf("unknown match format")
	ErrMatchNotFound     = errf("match not found")
	ErrNotParticipant    = errf("player is not in this match")
	ErrNotInProgress     = errf("match is not in progress")
	ErrNotCancellable    = errf("only waiting matches can be cancelled")
	ErrTerminal          = errf("match already finished")
	ErrInvalidTransition = errf("invalid match status transition")
	ErrConflict          = errf("concurrent update conflict")
	// ErrNoChange aborts an UpdateMatch closure without writing.
	ErrNoChange = errf("no change")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
