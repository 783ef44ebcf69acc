package rag

import "context"

// Passage is one indexed chunk of a knowledge file.
type Passage struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Chunk  int       `json:"chunk"`
	Text   string    `json:"text"`
	Score  float32   `json:"score,omitempty"`
	Vector []float32 `json:"-"`
}

// Query selects the nearest passages, optionally from one source file and
// above a minimum similarity.
type Query struct {
	Vector   []float32
	Source   string
	Limit    int
	MinScore float32
}

type Interface interface {
	Search(ctx context.Context, text, source string, k int) ([]Passage, error)
	InitContext(context.Context) error
}

type vectorStore interface {
	EnsureCollection(ctx context.Context, vectorSize int) (existed bool, err error)
	Upsert(ctx context.Context, passages []Passage) error
	Search(ctx context.Context, q Query) ([]Passage, error)
	Close() error
}
