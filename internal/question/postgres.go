package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PGSource reads the questions table.
type PGSource struct {
	db *sql.DB
}

func NewPGSource(db *sql.DB) *PGSource { return &PGSource{db: db} }

const selectQuestion = `SELECT id, book, question, choices, answer_index, hint, explanation, scripture_ref, difficulty FROM questions`

func scanQuestion(row interface{ Scan(...any) error }) (*Question, error) {
	var q Question
	if err := row.Scan(&q.ID, &q.Book, &q.Text, pq.Array(&q.Choices), &q.AnswerIndex, &q.Hint, &q.Explanation, &q.ScriptureRef, &q.Difficulty); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *PGSource) Get(ctx context.Context, id string) (*Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, selectQuestion+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *PGSource) Batch(ctx context.Context, n int) ([]*Question, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, selectQuestion+` ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("batch questions: %w", err)
	}
	defer rows.Close()
	var out []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyBank
	}
	return out, nil
}

// Import upserts a bank into the questions table.
func (s *PGSource) Import(ctx context.Context, qs []*Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	const q = `INSERT INTO questions (id, book, question, choices, answer_index, hint, explanation, scripture_ref, difficulty)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET book = EXCLUDED.book, question = EXCLUDED.question, choices = EXCLUDED.choices,
  answer_index = EXCLUDED.answer_index, hint = EXCLUDED.hint, explanation = EXCLUDED.explanation,
  scripture_ref = EXCLUDED.scripture_ref, difficulty = EXCLUDED.difficulty`
	for _, item := range qs {
		if err := item.validate(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, item.ID, item.Book, item.Text, pq.Array(item.Choices), item.AnswerIndex,
			item.Hint, item.Explanation, item.ScriptureRef, item.Difficulty); err != nil {
			return fmt.Errorf("import question %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}
