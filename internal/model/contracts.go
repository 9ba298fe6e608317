// Package model holds the thin external-collaborator contracts the
// pipeline depends on: the text-generation model, the embedding model and
// vector index used for retrieval, and the PII redactor. All four are
// explicitly out of scope as algorithms; only their I/O shape is
// specified here.
package model

import "context"

// Client is the external large-model text generator: generate(prompt,
// params) -> text, fallible and retriable. The pipeline calls it once per
// low-quality record, once per sparse cluster, and once per verified record
// when the knowledge corpus is non-empty; records of a batch are not sent
// together in one call.
type Client interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// Params configures a single generation call.
type Params struct {
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds; client-supplied per-call timeout
}

// Embedder turns texts into vectors for the knowledge corpus.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchResult is one hit from a VectorIndex.Search call.
type SearchResult struct {
	Doc   string
	Score float64
}

// VectorIndex is the append-only, worker-scoped knowledge corpus:
// add(texts) / search(query, k) -> [(doc, score)]. One index lives in a
// process's WorkerContext and is shared by all worker goroutines of that
// process; it is not shared across processes.
type VectorIndex interface {
	Add(ctx context.Context, texts []string) error
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
	// Size reports the number of documents currently indexed, used to
	// detect the empty-corpus case during verification.
	Size() int
}

// Redactor is the PII redactor: redact(record) -> (record', changed?). A
// pure function over a single record.
type Redactor interface {
	Redact(record map[string]interface{}) (result map[string]interface{}, changed bool)
}
