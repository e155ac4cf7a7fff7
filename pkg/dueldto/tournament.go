package dueldto

import "time"

type Tournament struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartDate    time.Time `json:"start_date"`
	Status       string    `json:"status"`
	Size         int       `json:"size"`
	CurrentRound int       `json:"current_round"`
	WinnerID     string    `json:"winner_id,omitempty"`
	RunnerUpID   string    `json:"runner_up_id,omitempty"`
}

type BracketEntry struct {
	ID           string `json:"id"`
	Round        int    `json:"round"`
	MatchInRound int    `json:"match_in_round"`
	PlayerA      string `json:"player_a_id"`
	PlayerB      string `json:"player_b_id,omitempty"`
	WinnerID     string `json:"winner_id,omitempty"`
	MatchID      string `json:"match_id,omitempty"`
	Bye          bool   `json:"bye,omitempty"`
}

type Bracket struct {
	Tournament Tournament       `json:"tournament"`
	Rounds     [][]BracketEntry `json:"rounds"`
}
