package api

import (
	"github.com/park285/biblequest-duels/internal/archive"
	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/progress"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/park285/biblequest-duels/internal/tournament"
	"github.com/park285/biblequest-duels/pkg/dueldto"
)

func toMatch(m *duel.Match) *dueldto.Match {
	if m == nil {
		return nil
	}
	out := &dueldto.Match{
		ID:           m.ID,
		Format:       string(m.Format),
		PlayerIDs:    m.PlayerIDs,
		TeamA:        m.TeamA,
		TeamB:        m.TeamB,
		StreakA:      m.StreakA,
		StreakB:      m.StreakB,
		TargetStreak: m.TargetStreak,
		Status:       string(m.Status),
		WinnerTeam:   string(m.WinnerTeam),
		EndReason:    string(m.EndReason),
		LastActivity: m.LastActivity,
		TournamentID: m.TournamentID,
		BracketID:    m.BracketID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Version:      m.Version,
	}
	if !m.EndedAt.IsZero() {
		t := m.EndedAt
		out.EndedAt = &t
	}
	return out
}

func toResults(r *duel.Results) *dueldto.Results {
	out := &dueldto.Results{
		MatchID:      r.MatchID,
		Status:       string(r.Status),
		WinnerTeam:   string(r.WinnerTeam),
		EndReason:    string(r.EndReason),
		TotalCorrect: r.TotalCorrect,
		Players:      make([]dueldto.PlayerStats, 0, len(r.Players)),
	}
	for _, p := range r.Players {
		out.Players = append(out.Players, dueldto.PlayerStats{
			PlayerID:     p.PlayerID,
			Team:         string(p.Team),
			Attempted:    p.Attempted,
			Correct:      p.Correct,
			Accuracy:     p.Accuracy,
			Contribution: p.Contribution,
		})
	}
	return out
}

func toQuestion(q *question.Question) dueldto.Question {
	return dueldto.Question{
		ID:           q.ID,
		Book:         q.Book,
		Question:     q.Text,
		Choices:      q.Choices,
		Hint:         q.Hint,
		ScriptureRef: q.ScriptureRef,
		Difficulty:   q.Difficulty,
	}
}

func toTournament(t *tournament.Tournament) dueldto.Tournament {
	return dueldto.Tournament{
		ID:           t.ID,
		Name:         t.Name,
		StartDate:    t.StartDate,
		Status:       string(t.Status),
		Size:         t.Size,
		CurrentRound: t.CurrentRound,
		WinnerID:     t.WinnerID,
		RunnerUpID:   t.RunnerUpID,
	}
}

func toBracket(b *tournament.Bracket) *dueldto.Bracket {
	out := &dueldto.Bracket{Tournament: toTournament(b.Tournament)}
	for _, round := range b.Rounds {
		entries := make([]dueldto.BracketEntry, 0, len(round))
		for _, e := range round {
			entries = append(entries, dueldto.BracketEntry{
				ID:           e.ID,
				Round:        e.Round,
				MatchInRound: e.MatchInRound,
				PlayerA:      e.PlayerA,
				PlayerB:      e.PlayerB,
				WinnerID:     e.WinnerID,
				MatchID:      e.MatchID,
				Bye:          e.Bye(),
			})
		}
		out.Rounds = append(out.Rounds, entries)
	}
	return out
}

func toHistory(playerID string, entries []*archive.Entry) *dueldto.History {
	out := &dueldto.History{PlayerID: playerID, Matches: make([]dueldto.HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		out.Matches = append(out.Matches, dueldto.HistoryEntry{
			MatchID:      e.MatchID,
			Format:       string(e.Format),
			Status:       string(e.Status),
			Team:         string(e.Team),
			WinnerTeam:   string(e.WinnerTeam),
			EndReason:    string(e.EndReason),
			Won:          e.Won(),
			TeamAStreak:  e.StreakA,
			TeamBStreak:  e.StreakB,
			TournamentID: e.TournamentID,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

func toProgress(p *progress.Progress) *dueldto.Progress {
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	return &dueldto.Progress{
		PlayerID: p.PlayerID,
		XPTotal:  p.XPTotal,
		Coins:    p.Coins,
		Duels:    p.Duels,
		DuelWins: p.DuelWins,
		Badges:   badges,
	}
}
