package model

import (
	"context"
	"strings"
)

// EchoClient is a deterministic mock that returns its generate function's
// output unchanged, used to freeze the nondeterministic external model for
// round-trip pipeline tests.
type EchoClient struct {
	GenerateFunc func(ctx context.Context, prompt string, params Params) (string, error)
}

func (c *EchoClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if c.GenerateFunc != nil {
		return c.GenerateFunc(ctx, prompt, params)
	}
	return "", nil
}

// NoopEmbedder returns a fixed-size zero vector per text; sufficient for
// tests that never inspect embedding values, only call counts.
type NoopEmbedder struct{ Dim int }

func (e *NoopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	dim := e.Dim
	if dim == 0 {
		dim = 8
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

// MemoryIndex is an in-process VectorIndex backed by substring scoring,
// good enough for deterministic tests without a real embedding model.
type MemoryIndex struct {
	docs []string
}

func (idx *MemoryIndex) Add(ctx context.Context, texts []string) error {
	idx.docs = append(idx.docs, texts...)
	return nil
}

func (idx *MemoryIndex) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	var results []SearchResult
	q := strings.ToLower(query)
	for _, d := range idx.docs {
		score := 0.0
		if strings.Contains(strings.ToLower(d), q) {
			score = 1.0
		}
		results = append(results, SearchResult{Doc: d, Score: score})
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (idx *MemoryIndex) Size() int { return len(idx.docs) }

// PassthroughRedactor never redacts anything; used for tests that only
// exercise marker propagation, not redaction logic.
type PassthroughRedactor struct{}

func (PassthroughRedactor) Redact(record map[string]interface{}) (map[string]interface{}, bool) {
	return record, false
}
