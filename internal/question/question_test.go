package question

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallBank = `
questions:
  - id: q1
    question: Who built the ark?
    choices: [Moses, Noah]
    answer_index: 1
    explanation: Noah built it.
  - id: q2
    question: Who fought Goliath?
    choices: [David, Saul, Jonathan]
    answer_index: 0
    scripture_ref: 1 Samuel 17
  - id: q3
    question: Where was Jesus born?
    choices: [Bethlehem, Nazareth]
    answer_index: 0
`

func TestBuiltInBankLoads(t *testing.T) {
	src, err := LoadFile("")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, src.Len(), 20)
	for _, q := range src.All() {
		require.NoError(t, q.validate(), q.ID)
	}
}

func TestLoadFileFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallBank), 0o644))
	src, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())

	q, err := src.Get(context.Background(), "q2")
	require.NoError(t, err)
	assert.Equal(t, "See 1 Samuel 17", q.Feedback())

	_, err = src.Get(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseRejectsBadBanks(t *testing.T) {
	_, err := Parse([]byte("questions: []"))
	assert.ErrorIs(t, err, ErrEmptyBank)

	_, err = Parse([]byte(`
questions:
  - id: x
    question: one choice
    choices: [a]
    answer_index: 0
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
questions:
  - id: x
    question: bad index
    choices: [a, b]
    answer_index: 2
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
questions:
  - {id: x, question: a, choices: [a, b], answer_index: 0}
  - {id: x, question: b, choices: [a, b], answer_index: 1}
`))
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	q := &Question{ID: "q", Text: "?", Choices: []string{"a", "b"}, AnswerIndex: 1}
	ok, err := q.Check(1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.Check(0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = q.Check(2)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	_, err = q.Check(-1)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, "", q.Feedback())
}

func TestBatchIsShuffledSubset(t *testing.T) {
	src, err := Parse([]byte(smallBank))
	require.NoError(t, err)
	got, err := src.Batch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	all, err := src.Batch(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

type countingSource struct {
	*FileSource
	batches int
}

func (c *countingSource) Batch(ctx context.Context, n int) ([]*Question, error) {
	c.batches++
	return c.FileSource.Batch(ctx, n)
}

func TestQueueAppendsFreshBatchWhenExhausted(t *testing.T) {
	fs, err := Parse([]byte(smallBank))
	require.NoError(t, err)
	src := &countingSource{FileSource: fs}
	q := NewQueue(src, 2)
	ctx := context.Background()

	first, err := q.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.batches)

	again, err := q.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.batches)
	assert.Equal(t, 2, q.Len())

	_, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.batches)
	assert.Equal(t, 4, q.Len())
}
