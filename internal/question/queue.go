package question

import (
	"context"
	"sync"
)

// Queue walks shuffled batches from a Source and appends a fresh batch when
// the current one runs out.
type Queue struct {
	mu    sync.Mutex
	src   Source
	batch int
	items []*Question
	pos   int
}

func NewQueue(src Source, batch int) *Queue {
	if batch <= 0 {
		batch = 20
	}
	return &Queue{src: src, batch: batch}
}

// Current returns the question at the head, loading the first batch lazily.
func (q *Queue) Current(ctx context.Context) (*Question, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fillLocked(ctx); err != nil {
		return nil, err
	}
	return q.items[q.pos], nil
}

// Next advances past the current question and returns the new head.
func (q *Queue) Next(ctx context.Context) (*Question, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pos < len(q.items) {
		q.pos++
	}
	if err := q.fillLocked(ctx); err != nil {
		return nil, err
	}
	return q.items[q.pos], nil
}

// Len is the number of questions loaded so far, consumed or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) fillLocked(ctx context.Context) error {
	if q.pos < len(q.items) {
		return nil
	}
	more, err := q.src.Batch(ctx, q.batch)
	if err != nil {
		return err
	}
	if len(more) == 0 {
		return ErrEmptyBank
	}
	q.items = append(q.items, more...)
	return nil
}
