package dueldto

import "time"

type Match struct {
	ID           string               `json:"id"`
	Format       string               `json:"format"`
	PlayerIDs    []string             `json:"player_ids"`
	TeamA        []string             `json:"team_a_player_ids"`
	TeamB        []string             `json:"team_b_player_ids"`
	StreakA      int                  `json:"team_a_streak"`
	StreakB      int                  `json:"team_b_streak"`
	TargetStreak int                  `json:"target_streak"`
	Status       string               `json:"status"`
	WinnerTeam   string               `json:"winner_team,omitempty"`
	EndReason    string               `json:"end_reason,omitempty"`
	LastActivity map[string]time.Time `json:"last_activity,omitempty"`
	TournamentID string               `json:"tournament_id,omitempty"`
	BracketID    string               `json:"bracket_id,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	EndedAt      *time.Time           `json:"ended_at,omitempty"`
	Version      int64                `json:"version"`
}

func (m *Match) SnapshotVersion() int64 { return m.Version }
func (m *Match) Finished() bool         { return m.Status == "completed" || m.Status == "cancelled" }

// TeamOf returns "A", "B" or "" for a player.
func (m *Match) TeamOf(playerID string) string {
	for _, p := range m.TeamA {
		if p == playerID {
			return "A"
		}
	}
	for _, p := range m.TeamB {
		if p == playerID {
			return "B"
		}
	}
	return ""
}

type SearchRequest struct {
	Format string `json:"format"`
}

type PollResponse struct {
	Match    *Match   `json:"match"`
	Done     bool     `json:"done"`
	TimedOut []string `json:"timed_out,omitempty"`
}

type AnswerRequest struct {
	QuestionID  string `json:"question_id"`
	ChoiceIndex int    `json:"choice_index"`
}

type AnswerResponse struct {
	TurnID       string `json:"turn_id"`
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correct_index"`
	Explanation  string `json:"explanation,omitempty"`
	Applied      bool   `json:"applied"`
	Match        *Match `json:"match"`
}

type PlayerStats struct {
	PlayerID     string `json:"player_id"`
	Team         string `json:"team"`
	Attempted    int    `json:"attempted"`
	Correct      int    `json:"correct"`
	Accuracy     int    `json:"accuracy"`
	Contribution int    `json:"contribution"`
}

type Results struct {
	MatchID      string        `json:"match_id"`
	Status       string        `json:"status"`
	WinnerTeam   string        `json:"winner_team,omitempty"`
	EndReason    string        `json:"end_reason,omitempty"`
	TotalCorrect int           `json:"total_correct"`
	Players      []PlayerStats `json:"players"`
}
