package question

import (
	"context"
	"math/rand/v2"
	"strings"
)

// Question is one multiple-choice item from the bank.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Book         string   `json:"book" yaml:"book"`
	Text         string   `json:"question" yaml:"question"`
	Choices      []string `json:"choices" yaml:"choices"`
	AnswerIndex  int      `json:"answer_index" yaml:"answer_index"`
	Hint         string   `json:"hint,omitempty" yaml:"hint"`
	Explanation  string   `json:"explanation,omitempty" yaml:"explanation"`
	ScriptureRef string   `json:"scripture_ref,omitempty" yaml:"scripture_ref"`
	Difficulty   string   `json:"difficulty,omitempty" yaml:"difficulty"`
}

// Check reports whether choice is the correct answer. Out-of-range choices
// are ErrInvalidChoice.
func (q *Question) Check(choice int) (bool, error) {
	if choice < 0 || choice >= len(q.Choices) {
		return false, ErrInvalidChoice
	}
	return choice == q.AnswerIndex, nil
}

// Feedback is the explanation shown after answering, falling back to the
// scripture reference.
func (q *Question) Feedback() string {
	if s := strings.TrimSpace(q.Explanation); s != "" {
		return s
	}
	if ref := strings.TrimSpace(q.ScriptureRef); ref != "" {
		return "See " + ref
	}
	return ""
}

func (q *Question) validate() error {
	if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Text) == "" {
		return errf("question needs id and text")
	}
	if len(q.Choices) < 2 {
		return errf("question " + q.ID + " needs at least two choices")
	}
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Choices) {
		return errf("question " + q.ID + " answer_index out of range")
	}
	return nil
}

// Source serves questions by id and in shuffled batches.
type Source interface {
	Get(ctx context.Context, id string) (*Question, error)
	Batch(ctx context.Context, n int) ([]*Question, error)
}

func shuffled(in []*Question, n int) []*Question {
	out := append([]*Question(nil), in...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

var (
	ErrNotFound      = errf("question not found")
	ErrInvalidChoice = errf("choice index out of range")
	ErrEmptyBank     = errf("question bank is empty")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
