package progress

import (
	"context"
	"database/sql"
	"fmt"
)

type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(db *sql.DB) *PGRepository { return &PGRepository{db: db} }

func (r *PGRepository) ApplyOutcome(ctx context.Context, matchID string, awards []Award) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO match_outcomes (match_id) VALUES ($1) ON CONFLICT (match_id) DO NOTHING`, matchID)
	if err != nil {
		return false, fmt.Errorf("insert match_outcomes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	for _, a := range awards {
		wins := 0
		if a.Won {
			wins = 1
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO user_progress (player_id, xp_total, coins, duels, duel_wins, updated_at)
VALUES ($1, $2, $3, 1, $4, now())
ON CONFLICT (player_id) DO UPDATE SET
  xp_total = user_progress.xp_total + EXCLUDED.xp_total,
  coins = user_progress.coins + EXCLUDED.coins,
  duels = user_progress.duels + 1,
  duel_wins = user_progress.duel_wins + EXCLUDED.duel_wins,
  updated_at = now()`, a.PlayerID, a.XP, a.Coins, wins); err != nil {
			return false, fmt.Errorf("upsert user_progress: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PGRepository) AwardBadge(ctx context.Context, playerID, badge, source string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO user_badges (player_id, badge, source) VALUES ($1, $2, $3)
ON CONFLICT (player_id, badge) DO NOTHING`, playerID, badge, source)
	if err != nil {
		return false, fmt.Errorf("insert user_badges: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PGRepository) Get(ctx context.Context, playerID string) (*Progress, error) {
	p := &Progress{PlayerID: playerID}
	err := r.db.QueryRowContext(ctx, `SELECT xp_total, coins, duels, duel_wins FROM user_progress WHERE player_id = $1`, playerID).
		Scan(&p.XPTotal, &p.Coins, &p.Duels, &p.DuelWins)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("get user_progress: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT badge FROM user_badges WHERE player_id = $1 ORDER BY awarded_at, badge`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list user_badges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		p.Badges = append(p.Badges, b)
	}
	return p, rows.Err()
}
