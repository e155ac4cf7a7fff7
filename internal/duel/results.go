package duel

import (
	"math"
	"sort"
)

// PlayerStats is the per-participant line of a results screen.
type PlayerStats struct {
	PlayerID     string `json:"player_id"`
	Team         Team   `json:"team"`
	Attempted    int    `json:"attempted"`
	Correct      int    `json:"correct"`
	Accuracy     int    `json:"accuracy"`
	Contribution int    `json:"contribution"`
}

type Results struct {
	MatchID      string         `json:"match_id"`
	Status       Status         `json:"status"`
	WinnerTeam   Team           `json:"winner_team,omitempty"`
	EndReason    EndReason      `json:"end_reason,omitempty"`
	TotalCorrect int            `json:"total_correct"`
	Players      []*PlayerStats `json:"players"`
}

// Player returns the stats line for a participant, or nil.
func (r *Results) Player(id string) *PlayerStats {
	for _, p := range r.Players {
		if p.PlayerID == id {
			return p
		}
	}
	return nil
}

// Aggregate groups turns by participant. Turns from players outside the
// roster are ignored. Percentages round half away from zero and are 0 when
// the denominator is 0.
func Aggregate(m *Match, turns []*Turn) *Results {
	res := &Results{MatchID: m.ID, Status: m.Status, WinnerTeam: m.WinnerTeam, EndReason: m.EndReason}
	byID := make(map[string]*PlayerStats, len(m.PlayerIDs))
	for _, p := range m.PlayerIDs {
		team, _ := m.TeamOf(p)
		st := &PlayerStats{PlayerID: p, Team: team}
		byID[p] = st
		res.Players = append(res.Players, st)
	}
	for _, t := range turns {
		st, ok := byID[t.PlayerID]
		if !ok {
			continue
		}
		st.Attempted++
		if t.Correct {
			st.Correct++
			res.TotalCorrect++
		}
	}
	for _, st := range res.Players {
		st.Accuracy = percent(st.Correct, st.Attempted)
		st.Contribution = percent(st.Correct, res.TotalCorrect)
	}
	sort.SliceStable(res.Players, func(i, j int) bool {
		if res.Players[i].Team != res.Players[j].Team {
			return res.Players[i].Team < res.Players[j].Team
		}
		return false
	})
	return res
}

func percent(n, d int) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(d)))
}
