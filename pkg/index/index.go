// Package index defines the vector index that backs semantic search over
// the Census dataset catalog, together with helpers shared by the
// brute-force backends.
//
// Backends live in subpackages: memory, sqlite, qdrant and pgvector.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimensions.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

	// ErrNotInitialized is returned by Upsert before the first Reset.
	ErrNotInitialized = errors.New("index: not initialized, call Reset first")
)

// Document is one catalog entry with its embedding.
type Document struct {
	ID         string
	Content    string
	Vintage    int // 0 when the dataset has no vintage
	Dataset    string
	APIBaseURL string
	Embedding  []float32
}

// Filter restricts a search by exact metadata equality. Zero values match
// everything.
type Filter struct {
	Vintage    int
	Dataset    string
	APIBaseURL string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Matches reports whether doc satisfies the filter.
func (f Filter) Matches(doc *Document) bool {
	if f.Vintage != 0 && doc.Vintage != f.Vintage {
		return false
	}
	if f.Dataset != "" && doc.Dataset != f.Dataset {
		return false
	}
	if f.APIBaseURL != "" && doc.APIBaseURL != f.APIBaseURL {
		return false
	}
	return true
}

// Match is a search hit. Score is the cosine similarity in [-1, 1].
type Match struct {
	Document Document
	Score    float32
}

// Stats describes an index's contents and the model that produced them.
type Stats struct {
	Count      int
	Model      string
	Dimensions int
}

// Index stores documents and answers filtered nearest-neighbour queries
// by cosine similarity. Implementations must be safe for concurrent use.
type Index interface {
	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns up to k matches for vec, best first.
	Search(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error)

	// Stats reports the document count and the model recorded by Reset.
	Stats(ctx context.Context) (Stats, error)

	// Reset drops every document and records the model and dimensions that
	// subsequent upserts must use. Stats.Count is ignored.
	Reset(ctx context.Context, meta Stats) error

	Close() error
}

// CheckDimensions verifies every document embedding has dims entries.
func CheckDimensions(docs []Document, dims int) error {
	for i := range docs {
		if len(docs[i].Embedding) != dims {
			return fmt.Errorf("%w: document %q has %d, index has %d",
				ErrDimensionMismatch, docs[i].ID, len(docs[i].Embedding), dims)
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// TopK scores candidates against vec and keeps the k best that pass the
// filter. Ties keep candidate order.
func TopK(vec []float32, k int, filter Filter, candidates []Document) []Match {
	if k <= 0 {
		return nil
	}
	matches := make([]Match, 0, min(k, len(candidates)))
	for i := range candidates {
		if !filter.Matches(&candidates[i]) {
			continue
		}
		matches = append(matches, Match{Document: candidates[i], Score: Cosine(vec, candidates[i].Embedding)})
	}
	SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// SortMatches orders matches by descending score, stable on ties.
func SortMatches(matches []Match) {
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
}
