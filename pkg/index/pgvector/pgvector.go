// Package pgvector provides an index.Index on PostgreSQL with the pgvector
// extension. Documents live in the census_datasets table, which Reset
// recreates with a vector column sized for the embedding model and an HNSW
// cosine index.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/index"
)

// Table holds the indexed documents.
const Table = "census_datasets"

// MaxHNSWDimensions is the largest vector pgvector can build an HNSW index
// on. Wider embeddings are stored without one and searched exactly.
const MaxHNSWDimensions = 2000

var _ index.Index = (*Index)(nil)

// Config holds PostgreSQL connection settings.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns is the maximum number of pooled connections (default: 10).
	MaxConns int32

	// MigrateOnStart applies the embedded migrations before the pool opens.
	MigrateOnStart bool
}

// Index is an index.Index backed by pgvector.
type Index struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, optionally migrates, and returns an Index.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}

	if cfg.MigrateOnStart {
		conn, err := pgx.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgvector index: connect: %w", err)
		}
		err = migrate(ctx, conn)
		_ = conn.Close(ctx)
		if err != nil {
			return nil, fmt.Errorf("pgvector index: running migrations: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector index: ping: %w", err)
	}
	return &Index{pool: pool}, nil
}

// Upsert inserts or replaces documents in one batch.
func (x *Index) Upsert(ctx context.Context, docs []index.Document) error {
	meta, ok, err := x.meta(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return index.ErrNotInitialized
	}
	if err := index.CheckDimensions(docs, meta.Dimensions); err != nil {
		return err
	}

	const q = `
		INSERT INTO ` + Table + ` (id, content, vintage, dataset, api_base_url, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    content      = EXCLUDED.content,
		    vintage      = EXCLUDED.vintage,
		    dataset      = EXCLUDED.dataset,
		    api_base_url = EXCLUDED.api_base_url,
		    embedding    = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, d := range docs {
		if d.ID == "" {
			return errors.New("pgvector index: document without ID")
		}
		batch.Queue(q, d.ID, d.Content, d.Vintage, d.Dataset, d.APIBaseURL, pgv.NewVector(d.Embedding))
	}
	if err := x.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector index: upsert: %w", err)
	}
	return nil
}

// Search orders rows by cosine distance and reports 1 - distance as the
// score.
func (x *Index) Search(ctx context.Context, vec []float32, k int, filter index.Filter) ([]index.Match, error) {
	meta, ok, err := x.meta(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || k <= 0 {
		return nil, nil
	}
	if len(vec) != meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", index.ErrDimensionMismatch, len(vec), meta.Dimensions)
	}

	args := []any{pgv.NewVector(vec)}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	var conditions []string
	if filter.Vintage != 0 {
		conditions = append(conditions, "vintage = "+next(filter.Vintage))
	}
	if filter.Dataset != "" {
		conditions = append(conditions, "dataset = "+next(filter.Dataset))
	}
	if filter.APIBaseURL != "" {
		conditions = append(conditions, "api_base_url = "+next(filter.APIBaseURL))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	limitArg := next(k)

	q := fmt.Sprintf(`
		SELECT id, content, vintage, dataset, api_base_url, embedding,
		       1 - (embedding <=> $1) AS score
		FROM   %s
		%s
		ORDER  BY embedding <=> $1
		LIMIT  %s`, Table, whereClause, limitArg)

	if len(conditions) == 0 {
		return collectMatches(x.pool.Query(ctx, q, args...))
	}

	// HNSW applies the WHERE clause after its candidate search, so a
	// selective filter can drop rows that belong in the top k. Filtered
	// searches scan exactly instead; the catalog is a few thousand rows.
	tx, err := x.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("pgvector index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
		return nil, fmt.Errorf("pgvector index: disable index scan: %w", err)
	}
	matches, err := collectMatches(tx.Query(ctx, q, args...))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgvector index: commit: %w", err)
	}
	debug.Log("index", "pgvector filtered search", "filter", filter, "results", len(matches))
	return matches, nil
}

func collectMatches(rows pgx.Rows, err error) ([]index.Match, error) {
	if err != nil {
		return nil, fmt.Errorf("pgvector index: search: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Match, error) {
		var (
			m     index.Match
			v     pgv.Vector
			score float64
		)
		d := &m.Document
		if err := row.Scan(&d.ID, &d.Content, &d.Vintage, &d.Dataset, &d.APIBaseURL, &v, &score); err != nil {
			return index.Match{}, err
		}
		d.Embedding = v.Slice()
		m.Score = float32(score)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector index: scan rows: %w", err)
	}
	return matches, nil
}

// Stats reports the row count and the recorded model.
func (x *Index) Stats(ctx context.Context) (index.Stats, error) {
	meta, ok, err := x.meta(ctx)
	if err != nil {
		return index.Stats{}, err
	}
	if !ok {
		return meta, nil
	}
	if err := x.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+Table).Scan(&meta.Count); err != nil {
		return index.Stats{}, fmt.Errorf("pgvector index: count: %w", err)
	}
	return meta, nil
}

// Reset recreates the documents table for meta.Dimensions and records meta.
func (x *Index) Reset(ctx context.Context, meta index.Stats) error {
	if meta.Dimensions <= 0 {
		return fmt.Errorf("pgvector index: invalid dimensions %d", meta.Dimensions)
	}

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		"DROP TABLE IF EXISTS " + Table,
		fmt.Sprintf(`CREATE TABLE %s (
		    id           TEXT PRIMARY KEY,
		    content      TEXT NOT NULL,
		    vintage      INTEGER NOT NULL DEFAULT 0,
		    dataset      TEXT NOT NULL DEFAULT '',
		    api_base_url TEXT NOT NULL DEFAULT '',
		    embedding    vector(%d) NOT NULL
		)`, Table, meta.Dimensions),
		fmt.Sprintf("CREATE INDEX %s_vintage_idx ON %s (vintage)", Table, Table),
	}
	if meta.Dimensions <= MaxHNSWDimensions {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", Table, Table))
	} else {
		debug.Log("index", "embedding too wide for hnsw, searches scan exactly",
			"dimensions", meta.Dimensions, "max", MaxHNSWDimensions)
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector index: reset: %w", err)
		}
	}
	for key, value := range map[string]string{
		"model":      meta.Model,
		"dimensions": strconv.Itoa(meta.Dimensions),
	} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO index_meta (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value); err != nil {
			return fmt.Errorf("pgvector index: write meta %s: %w", key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgvector index: commit: %w", err)
	}
	debug.Log("index", "pgvector table reset", "table", Table, "model", meta.Model, "dimensions", meta.Dimensions)
	return nil
}

// Close releases the connection pool.
func (x *Index) Close() error {
	x.pool.Close()
	return nil
}

// meta reads index_meta. ok is false until the first Reset.
func (x *Index) meta(ctx context.Context) (meta index.Stats, ok bool, err error) {
	rows, err := x.pool.Query(ctx, "SELECT key, value FROM index_meta")
	if err != nil {
		return meta, false, fmt.Errorf("pgvector index: read meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, false, fmt.Errorf("pgvector index: read meta: %w", err)
		}
		switch key {
		case "model":
			meta.Model = value
		case "dimensions":
			n, err := strconv.Atoi(value)
			if err != nil {
				return meta, false, fmt.Errorf("pgvector index: bad dimensions %q: %w", value, err)
			}
			meta.Dimensions = n
			ok = true
		}
	}
	return meta, ok, rows.Err()
}
