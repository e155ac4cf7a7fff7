package dueldto

import "time"

type HistoryEntry struct {
	MatchID      string    `json:"match_id"`
	Format       string    `json:"format"`
	Status       string    `json:"status"`
	Team         string    `json:"team,omitempty"`
	WinnerTeam   string    `json:"winner_team,omitempty"`
	EndReason    string    `json:"end_reason,omitempty"`
	Won          bool      `json:"won"`
	TeamAStreak  int       `json:"team_a_streak"`
	TeamBStreak  int       `json:"team_b_streak"`
	TournamentID string    `json:"tournament_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type History struct {
	PlayerID string         `json:"player_id"`
	Matches  []HistoryEntry `json:"matches"`
}

type Progress struct {
	PlayerID string   `json:"player_id"`
	XPTotal  int      `json:"xp_total"`
	Coins    int      `json:"coins"`
	Duels    int      `json:"duels"`
	DuelWins int      `json:"duel_wins"`
	Badges   []string `json:"badges"`
}
