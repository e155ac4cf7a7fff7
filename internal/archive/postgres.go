package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/park285/biblequest-duels/internal/duel"
)

type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(db *sql.DB) *PGRepository { return &PGRepository{db: db} }

// SaveMatch upserts the match row and inserts any turns not yet archived.
func (r *PGRepository) SaveMatch(ctx context.Context, m *duel.Match, turns []*duel.Turn) error {
	if r == nil || r.db == nil || m == nil {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var endedAt any
	if !m.EndedAt.IsZero() {
		endedAt = m.EndedAt
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO duel_matches (id, format, status, player_ids, team_a_player_ids, team_b_player_ids,
  team_a_streak, team_b_streak, target_streak, winner_team, end_reason, tournament_id, bracket_id, created_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  team_a_streak = EXCLUDED.team_a_streak,
  team_b_streak = EXCLUDED.team_b_streak,
  winner_team = EXCLUDED.winner_team,
  end_reason = EXCLUDED.end_reason,
  ended_at = EXCLUDED.ended_at`,
		m.ID, string(m.Format), string(m.Status), pq.Array(m.PlayerIDs), pq.Array(m.TeamA), pq.Array(m.TeamB),
		m.StreakA, m.StreakB, m.TargetStreak, string(m.WinnerTeam), string(m.EndReason), m.TournamentID, m.BracketID,
		m.CreatedAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert duel_matches: %w", err)
	}
	for _, t := range turns {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO duel_turns (id, match_id, question_id, player_id, team, choice_index, answered_correctly, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING`,
			t.ID, m.ID, t.QuestionID, t.PlayerID, string(t.Team), t.ChoiceIndex, t.Correct, t.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert duel_turns: %w", err)
		}
	}
	return tx.Commit()
}

func (r *PGRepository) RecentMatches(ctx context.Context, playerID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, format, status, player_ids, team_a_player_ids, team_b_player_ids, team_a_streak, team_b_streak,
  winner_team, end_reason, tournament_id, created_at, ended_at
FROM duel_matches
WHERE $1 = ANY(player_ids)
ORDER BY created_at DESC
LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			m         duel.Match
			format    string
			status    string
			winner    string
			reason    string
			endedAt   sql.NullTime
			createdAt time.Time
		)
		if err := rows.Scan(&m.ID, &format, &status, pq.Array(&m.PlayerIDs), pq.Array(&m.TeamA), pq.Array(&m.TeamB),
			&m.StreakA, &m.StreakB, &winner, &reason, &m.TournamentID, &createdAt, &endedAt); err != nil {
			return nil, err
		}
		m.Format = duel.Format(format)
		m.Status = duel.Status(status)
		m.WinnerTeam = duel.Team(winner)
		m.EndReason = duel.EndReason(reason)
		m.CreatedAt = createdAt
		if endedAt.Valid {
			m.EndedAt = endedAt.Time
		}
		out = append(out, entryFor(&m, playerID))
	}
	return out, rows.Err()
}
