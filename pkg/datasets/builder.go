package datasets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/mcp-census/pkg/census"
	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/embedding"
	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/observability"
)

// Builder defaults.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// CatalogSource fetches the raw data.json catalog. *census.Client
// satisfies it.
type CatalogSource interface {
	CatalogBytes(ctx context.Context) ([]byte, error)
}

var _ CatalogSource = (*census.Client)(nil)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Backend labels index metrics, e.g. "sqlite".
	Backend string

	// BatchSize is the number of texts per embedding call.
	BatchSize int

	// Concurrency bounds the embedding calls in flight.
	Concurrency int

	// SnapshotPath, if set, receives a copy of every fetched catalog and
	// serves as the fallback when the catalog cannot be fetched.
	SnapshotPath string

	Logger *slog.Logger
}

// Builder populates an index from the catalog and tracks readiness.
type Builder struct {
	source   CatalogSource
	provider embedding.Provider
	index    index.Index
	opts     BuilderOptions
	logger   *slog.Logger

	mu    sync.Mutex // serialises builds
	ready atomic.Bool

	// last holds the documents of the last successful build, used to
	// restore the index when a later rebuild fails while storing.
	last      []index.Document
	lastStats index.Stats
}

// NewBuilder creates a Builder.
func NewBuilder(source CatalogSource, provider embedding.Provider, idx index.Index, opts BuilderOptions) *Builder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{source: source, provider: provider, index: idx, opts: opts, logger: logger}
}

// Ready reports whether the index has been loaded or built.
func (b *Builder) Ready() bool {
	return b.ready.Load()
}

// LoadOrBuild reuses the index when it already holds documents embedded by
// the current model, and builds it otherwise.
func (b *Builder) LoadOrBuild(ctx context.Context) error {
	st, err := b.index.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading index stats: %w", err)
	}

	dims := b.provider.Dimensions()
	if st.Count > 0 && st.Model == b.provider.ModelID() && (dims == 0 || dims == st.Dimensions) {
		b.logger.Info("loaded existing dataset index", "documents", st.Count, "model", st.Model)
		observability.IndexDocuments.WithLabelValues(b.opts.Backend).Set(float64(st.Count))
		b.ready.Store(true)
		return nil
	}

	if st.Count > 0 {
		b.logger.Info("dataset index was built with a different model, rebuilding",
			"index_model", st.Model, "index_dimensions", st.Dimensions,
			"model", b.provider.ModelID(), "dimensions", dims)
	} else {
		b.logger.Info("no dataset index found, building one now")
	}
	_, err = b.Build(ctx)
	return err
}

// Build fetches the catalog and rebuilds the index from scratch. When the
// fetch fails and a snapshot exists, the snapshot is used instead. It
// returns the number of indexed documents.
func (b *Builder) Build(ctx context.Context) (int, error) {
	data, fetchErr := b.source.CatalogBytes(ctx)
	if fetchErr != nil {
		if b.opts.SnapshotPath == "" {
			return 0, fmt.Errorf("fetching catalog: %w", fetchErr)
		}
		snap, err := ReadSnapshot(b.opts.SnapshotPath)
		if err != nil {
			return 0, errors.Join(fmt.Errorf("fetching catalog: %w", fetchErr), err)
		}
		b.logger.Warn("catalog fetch failed, building from snapshot",
			"error", fetchErr, "snapshot", b.opts.SnapshotPath)
		return b.build(ctx, snap)
	}

	n, err := b.build(ctx, data)
	if err != nil {
		return 0, err
	}
	if b.opts.SnapshotPath != "" {
		if err := WriteSnapshot(b.opts.SnapshotPath, data); err != nil {
			b.logger.Warn("writing catalog snapshot failed", "error", err, "snapshot", b.opts.SnapshotPath)
		}
	}
	return n, nil
}

// BuildFromSnapshot rebuilds the index from the snapshot without touching
// the network.
func (b *Builder) BuildFromSnapshot(ctx context.Context) (int, error) {
	if b.opts.SnapshotPath == "" {
		return 0, errors.New("no snapshot path configured")
	}
	data, err := ReadSnapshot(b.opts.SnapshotPath)
	if err != nil {
		return 0, err
	}
	return b.build(ctx, data)
}

func (b *Builder) build(ctx context.Context, data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "datasets.build")
	defer span.End()

	cat, err := census.ParseCatalog(data)
	if err != nil {
		return 0, err
	}
	docs := FromCatalog(cat)
	b.logger.Info("embedding census dataset catalog, this could take a few minutes",
		"documents", len(docs), "model", b.provider.ModelID())

	if err := b.embed(ctx, docs); err != nil {
		span.RecordError(err)
		return 0, err
	}

	dims := b.provider.Dimensions()
	if len(docs) > 0 {
		dims = len(docs[0].Embedding)
	}
	if dims == 0 {
		return 0, errors.New("cannot determine embedding dimensions from an empty catalog")
	}

	// Searches see "not ready" rather than a partially filled index.
	b.ready.Store(false)
	stats := index.Stats{Model: b.provider.ModelID(), Dimensions: dims}
	if err := b.store(ctx, stats, docs); err != nil {
		span.RecordError(err)
		return 0, b.restore(ctx, err)
	}
	b.last, b.lastStats = docs, stats

	observability.IndexDocuments.WithLabelValues(b.opts.Backend).Set(float64(len(docs)))
	b.ready.Store(true)
	b.logger.Info("dataset index built", "documents", len(docs), "dimensions", dims,
		"duration", time.Since(start).Round(time.Millisecond))
	return len(docs), nil
}

// store replaces the index contents with docs.
func (b *Builder) store(ctx context.Context, stats index.Stats, docs []index.Document) error {
	if err := b.index.Reset(ctx, stats); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	for lo := 0; lo < len(docs); lo += b.opts.BatchSize {
		hi := min(lo+b.opts.BatchSize, len(docs))
		if err := b.index.Upsert(ctx, docs[lo:hi]); err != nil {
			return fmt.Errorf("storing documents: %w", err)
		}
	}
	return nil
}

// restore puts the documents of the last successful build back after a
// failed store. Without them the index stays not ready.
func (b *Builder) restore(ctx context.Context, cause error) error {
	if b.last == nil {
		b.logger.Error("dataset index rebuild failed, index is not ready", "error", cause)
		return cause
	}
	if err := b.store(context.WithoutCancel(ctx), b.lastStats, b.last); err != nil {
		b.logger.Error("restoring previous dataset index failed", "error", err)
		return errors.Join(cause, fmt.Errorf("restoring previous index: %w", err))
	}
	b.ready.Store(true)
	b.logger.Warn("dataset index rebuild failed, previous index restored",
		"error", cause, "documents", len(b.last))
	return cause
}

// embed fills in every document's embedding, running up to Concurrency
// batches at once.
func (b *Builder) embed(ctx context.Context, docs []index.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for lo := 0; lo < len(docs); lo += b.opts.BatchSize {
		batch := docs[lo:min(lo+b.opts.BatchSize, len(docs))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Content
			}
			vecs, err := b.provider.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding documents %q..: %w", batch[0].ID, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedding documents: expected %d vectors, got %d", len(batch), len(vecs))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			debug.Log("index", "embedded batch", "first", batch[0].ID, "size", len(batch))
			return nil
		})
	}
	return g.Wait()
}
