package datasets

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/embedding"
	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/observability"
)

// DefaultK is the number of results returned when k <= 0.
const DefaultK = 5

// ErrNotReady is returned while the index is still being loaded or built.
var ErrNotReady = errors.New("dataset index is not ready")

// Searcher answers semantic queries against the dataset index.
type Searcher struct {
	Provider embedding.Provider
	Index    index.Index

	// Backend labels metrics.
	Backend string

	// DefaultK replaces a non-positive k. Zero means DefaultK.
	DefaultK int

	// Ready gates searches when set, typically Builder.Ready.
	Ready func() bool
}

// Search returns the contents of the k documents most similar to query
// that pass filter, best first.
func (s *Searcher) Search(ctx context.Context, query string, filter index.Filter, k int) ([]string, error) {
	if s.Ready != nil && !s.Ready() {
		return nil, ErrNotReady
	}
	if k <= 0 {
		k = s.DefaultK
		if k <= 0 {
			k = DefaultK
		}
	}

	ctx, span := observability.StartSpan(ctx, "datasets.search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k), attribute.String("backend", s.Backend))

	matches, err := s.search(ctx, query, filter, k)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	observability.IndexSearchesTotal.WithLabelValues(s.Backend, status).Inc()
	if err != nil {
		return nil, err
	}

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Document.Content
	}
	debug.Log("index", "dataset search", "query", debug.Truncate(query, 80), "filter", filter, "results", len(out))
	return out, nil
}

func (s *Searcher) search(ctx context.Context, query string, filter index.Filter, k int) ([]index.Match, error) {
	vec, err := s.Provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	matches, err := s.Index.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return matches, nil
}
