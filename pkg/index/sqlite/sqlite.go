// Package sqlite provides a persistent index.Index on a single SQLite file.
// Embeddings are stored as little-endian float32 blobs and similarity is
// computed in process, which is fast enough for the few thousand entries in
// the Census catalog.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rhuss/mcp-census/pkg/index"

	_ "modernc.org/sqlite"
)

// DefaultPath is the index file used when none is configured.
const DefaultPath = "census_datasets_index.db"

//go:embed schema.sql
var schema string

var _ index.Index = (*Index)(nil)

const (
	metaModel      = "model"
	metaDimensions = "dimensions"
)

// Index is an index.Index backed by SQLite.
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the index at path.
func Open(ctx context.Context, path string) (*Index, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: open: %w", err)
	}
	// A single connection serialises writers and keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite index: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite index: create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Upsert inserts or replaces documents in one transaction.
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

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, content, vintage, dataset, api_base_url, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content = excluded.content,
		   vintage = excluded.vintage,
		   dataset = excluded.dataset,
		   api_base_url = excluded.api_base_url,
		   embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("sqlite index: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range docs {
		d := &docs[i]
		if d.ID == "" {
			return errors.New("sqlite index: document without ID")
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, d.Vintage, d.Dataset, d.APIBaseURL, encodeVector(d.Embedding)); err != nil {
			return fmt.Errorf("sqlite index: upsert %q: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite index: commit: %w", err)
	}
	return nil
}

// Search loads the rows that pass the filter and ranks them in process.
func (x *Index) Search(ctx context.Context, vec []float32, k int, filter index.Filter) ([]index.Match, error) {
	meta, ok, err := x.meta(ctx)
	if err != nil {
		return nil, err
	}
	if ok && len(vec) != meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", index.ErrDimensionMismatch, len(vec), meta.Dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	query := `SELECT id, content, vintage, dataset, api_base_url, embedding FROM documents`
	var where []string
	var args []any
	if filter.Vintage != 0 {
		where = append(where, "vintage = ?")
		args = append(args, filter.Vintage)
	}
	if filter.Dataset != "" {
		where = append(where, "dataset = ?")
		args = append(args, filter.Dataset)
	}
	if filter.APIBaseURL != "" {
		where = append(where, "api_base_url = ?")
		args = append(args, filter.APIBaseURL)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: search: %w", err)
	}
	defer rows.Close()

	var candidates []index.Document
	for rows.Next() {
		var d index.Document
		var blob []byte
		if err := rows.Scan(&d.ID, &d.Content, &d.Vintage, &d.Dataset, &d.APIBaseURL, &blob); err != nil {
			return nil, fmt.Errorf("sqlite index: scan: %w", err)
		}
		if d.Embedding, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("sqlite index: document %q: %w", d.ID, err)
		}
		candidates = append(candidates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite index: search: %w", err)
	}
	return index.TopK(vec, k, filter, candidates), nil
}

// Stats reports the row count and recorded model.
func (x *Index) Stats(ctx context.Context) (index.Stats, error) {
	meta, _, err := x.meta(ctx)
	if err != nil {
		return index.Stats{}, err
	}
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&meta.Count); err != nil {
		return index.Stats{}, fmt.Errorf("sqlite index: count: %w", err)
	}
	return meta, nil
}

// Reset deletes every document and records meta.
func (x *Index) Reset(ctx context.Context, meta index.Stats) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("sqlite index: clear documents: %w", err)
	}
	for key, value := range map[string]string{
		metaModel:      meta.Model,
		metaDimensions: strconv.Itoa(meta.Dimensions),
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("sqlite index: write meta %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite index: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// meta reads index_meta. ok is false until the first Reset.
func (x *Index) meta(ctx context.Context) (meta index.Stats, ok bool, err error) {
	rows, err := x.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return meta, false, fmt.Errorf("sqlite index: read meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, false, fmt.Errorf("sqlite index: read meta: %w", err)
		}
		switch key {
		case metaModel:
			meta.Model = value
		case metaDimensions:
			n, err := strconv.Atoi(value)
			if err != nil {
				return meta, false, fmt.Errorf("sqlite index: bad dimensions %q: %w", value, err)
			}
			meta.Dimensions = n
			ok = true
		}
	}
	return meta, ok, rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
