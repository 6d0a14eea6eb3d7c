// Package memory provides an in-memory index.Index with brute-force cosine
// search. Contents are lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rhuss/mcp-census/pkg/index"
)

var _ index.Index = (*Index)(nil)

// Index is an in-memory index.Index.
type Index struct {
	mu    sync.RWMutex
	docs  []index.Document
	byID  map[string]int // position in docs
	meta  index.Stats
	ready bool
}

// New creates an empty index. Reset must be called before Upsert.
func New() *Index {
	return &Index{byID: make(map[string]int)}
}

// Upsert inserts or replaces documents by ID.
func (x *Index) Upsert(_ context.Context, docs []index.Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.ready {
		return index.ErrNotInitialized
	}
	if err := index.CheckDimensions(docs, x.meta.Dimensions); err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("memory index: document without ID")
		}
		if pos, ok := x.byID[d.ID]; ok {
			x.docs[pos] = d
			continue
		}
		x.byID[d.ID] = len(x.docs)
		x.docs = append(x.docs, d)
	}
	return nil
}

// Search returns up to k matches, best first.
func (x *Index) Search(_ context.Context, vec []float32, k int, filter index.Filter) ([]index.Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.ready && len(vec) != x.meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", index.ErrDimensionMismatch, len(vec), x.meta.Dimensions)
	}
	return index.TopK(vec, k, filter, x.docs), nil
}

// Stats reports the document count and recorded model.
func (x *Index) Stats(_ context.Context) (index.Stats, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	st := x.meta
	st.Count = len(x.docs)
	return st, nil
}

// Reset drops all documents and records meta.
func (x *Index) Reset(_ context.Context, meta index.Stats) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = nil
	x.byID = make(map[string]int)
	x.meta = index.Stats{Model: meta.Model, Dimensions: meta.Dimensions}
	x.ready = true
	return nil
}

// Close is a no-op.
func (x *Index) Close() error { return nil }
