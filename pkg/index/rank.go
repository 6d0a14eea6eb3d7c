package index

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/mcp-census/pkg/embedding"
)

// Rank defaults.
const (
	DefaultRankTopK        = 10
	DefaultRankBatchSize   = 64
	DefaultRankConcurrency = 4
)

// RankOptions bounds the embedding calls Rank makes.
type RankOptions struct {
	// BatchSize is the number of texts per EmbedBatch call.
	BatchSize int

	// Concurrency bounds the EmbedBatch calls in flight.
	Concurrency int
}

// Rank embeds texts and query on the fly and returns the topK texts most
// similar to query, best first. It suits ad-hoc corpora such as a
// dataset's variable list, where building a persistent index is not worth
// it. Texts are embedded in batches, so a variable list of tens of
// thousands stays within provider request limits.
func Rank(ctx context.Context, p embedding.Provider, texts []string, query string, topK int) ([]string, error) {
	return RankWith(ctx, p, texts, query, topK, RankOptions{})
}

// RankWith is Rank with explicit batching.
func RankWith(ctx context.Context, p embedding.Provider, texts []string, query string, topK int, opts RankOptions) ([]string, error) {
	if topK <= 0 {
		topK = DefaultRankTopK
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRankBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultRankConcurrency
	}
	if len(texts) == 0 {
		return []string{}, nil
	}

	qvec, err := p.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Each batch scores its own slice of texts; only the scores are kept.
	scores := make([]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for lo := 0; lo < len(texts); lo += opts.BatchSize {
		hi := min(lo+opts.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := p.EmbedBatch(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("embedding texts %d-%d: %w", lo, hi-1, err)
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("embedding texts: expected %d vectors, got %d", hi-lo, len(vecs))
			}
			for i, v := range vecs {
				scores[lo+i] = Cosine(qvec, v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	order := make([]int, len(texts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})

	out := make([]string, min(topK, len(order)))
	for i := range out {
		out[i] = texts[order[i]]
	}
	return out, nil
}
