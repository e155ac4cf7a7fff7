package question

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed bank.yaml
var defaultBank []byte

type bankFile struct {
	Questions []*Question `yaml:"questions"`
}

// FileSource is an immutable in-memory bank loaded from YAML.
type FileSource struct {
	byID  map[string]*Question
	order []*Question
}

// LoadFile reads a YAML bank from path. An empty path loads the built-in bank.
func LoadFile(path string) (*FileSource, error) {
	raw := defaultBank
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read question bank: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*FileSource, error) {
	var bf bankFile
	if err := yaml.Unmarshal(raw, &bf); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(bf.Questions) == 0 {
		return nil, ErrEmptyBank
	}
	s := &FileSource{byID: make(map[string]*Question, len(bf.Questions))}
	for _, q := range bf.Questions {
		if err := q.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		s.byID[q.ID] = q
		s.order = append(s.order, q)
	}
	return s, nil
}

func (s *FileSource) Len() int { return len(s.order) }

// All returns every question in load order.
func (s *FileSource) All() []*Question { return append([]*Question(nil), s.order...) }

func (s *FileSource) Get(ctx context.Context, id string) (*Question, error) {
	q, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *q
	return &c, nil
}

func (s *FileSource) Batch(ctx context.Context, n int) ([]*Question, error) {
	return shuffled(s.order, n), nil
}
