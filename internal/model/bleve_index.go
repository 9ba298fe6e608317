package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/tmalldedede/agentbox/internal/apperr"
)

// BleveIndex implements VectorIndex over an in-memory full-text index. The
// retrieval ranking algorithm itself is out of scope; this
// satisfies the add(texts)/search(query, k) contract with a real
// third-party search engine instead of a hand-rolled substring scan.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]string
	next  int
}

// NewBleveIndex builds an empty, process-local corpus. It is never shared
// across processes; within a process, the worker goroutines share it, and
// its mutex serializes their access.
func NewBleveIndex() (*BleveIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create in-memory search index: %w", err)
	}
	return &BleveIndex{index: idx, docs: map[string]string{}}, nil
}

type corpusDoc struct {
	Text string `json:"text"`
}

func (b *BleveIndex) Add(ctx context.Context, texts []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range texts {
		id := fmt.Sprintf("doc-%d", b.next)
		b.next++
		if err := b.index.Index(id, corpusDoc{Text: t}); err != nil {
			return apperr.TransientStore(err)
		}
		b.docs[id] = t
	}
	return nil
}

func (b *BleveIndex) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := b.index.Search(req)
	if err != nil {
		return nil, apperr.TransientStore(err)
	}

	out := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, SearchResult{Doc: b.docs[hit.ID], Score: hit.Score})
	}
	return out, nil
}

func (b *BleveIndex) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}
