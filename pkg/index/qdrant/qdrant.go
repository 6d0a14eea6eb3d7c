// Package qdrant provides an index.Index backed by the Qdrant HTTP API.
//
// Documents live in one cosine-distance collection. The embedding model and
// dimensions recorded by Reset are kept as a single point in a companion
// "<collection>_meta" collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/index"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "census_datasets"

var _ index.Index = (*Index)(nil)

var metaPointID = pointID("index_meta")

// errNotFound marks a 404 from Qdrant.
var errNotFound = errors.New("qdrant: not found")

// Index is an index.Index that talks to Qdrant over HTTP.
type Index struct {
	BaseURL    string
	Collection string
	HTTPClient *http.Client

	mu   sync.Mutex
	meta *index.Stats // cached after Reset or first read
}

// New creates an Index for the collection at url.
func New(url, collection string) *Index {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Index{
		BaseURL:    strings.TrimRight(url, "/"),
		Collection: collection,
		HTTPClient: &http.Client{},
	}
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

type payload struct {
	DocID      string `json:"doc_id,omitempty"`
	Content    string `json:"content,omitempty"`
	Vintage    int    `json:"vintage"`
	Dataset    string `json:"dataset,omitempty"`
	APIBaseURL string `json:"api_base_url,omitempty"`

	// Set on the meta point only.
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type condition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

type filterClause struct {
	Must []condition `json:"must"`
}

type searchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *filterClause `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []struct {
		ID      any     `json:"id"`
		Score   float32 `json:"score"`
		Payload payload `json:"payload"`
	} `json:"result"`
}

// pointID maps a document ID to the UUID Qdrant requires.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

// Upsert writes documents as points keyed by a UUIDv5 of their ID.
func (x *Index) Upsert(ctx context.Context, docs []index.Document) error {
	meta, ok, err := x.loadMeta(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return index.ErrNotInitialized
	}
	if err := index.CheckDimensions(docs, meta.Dimensions); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]point, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return errors.New("qdrant index: document without ID")
		}
		points[i] = point{
			ID:     pointID(d.ID),
			Vector: d.Embedding,
			Payload: payload{
				DocID:      d.ID,
				Content:    d.Content,
				Vintage:    d.Vintage,
				Dataset:    d.Dataset,
				APIBaseURL: d.APIBaseURL,
			},
		}
	}
	return x.upsertPoints(ctx, x.Collection, points)
}

// Search runs a filtered nearest-neighbour query.
// POST /collections/{name}/points/search
func (x *Index) Search(ctx context.Context, vec []float32, k int, filter index.Filter) ([]index.Match, error) {
	meta, ok, err := x.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || k <= 0 {
		return nil, nil
	}
	if len(vec) != meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", index.ErrDimensionMismatch, len(vec), meta.Dimensions)
	}

	req := searchRequest{Vector: vec, Limit: k, WithPayload: true, Filter: buildFilter(filter)}
	var resp searchResponse
	if err := x.do(ctx, http.MethodPost, "/collections/"+x.Collection+"/points/search", req, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]index.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		matches = append(matches, index.Match{
			Document: index.Document{
				ID:         p.DocID,
				Content:    p.Content,
				Vintage:    p.Vintage,
				Dataset:    p.Dataset,
				APIBaseURL: p.APIBaseURL,
			},
			Score: r.Score,
		})
	}
	index.SortMatches(matches)
	return matches, nil
}

func buildFilter(f index.Filter) *filterClause {
	if f.IsZero() {
		return nil
	}
	var fc filterClause
	add := func(key string, value any) {
		var c condition
		c.Key = key
		c.Match.Value = value
		fc.Must = append(fc.Must, c)
	}
	if f.Vintage != 0 {
		add("vintage", f.Vintage)
	}
	if f.Dataset != "" {
		add("dataset", f.Dataset)
	}
	if f.APIBaseURL != "" {
		add("api_base_url", f.APIBaseURL)
	}
	return &fc
}

// Stats reports the exact point count and the recorded model.
// POST /collections/{name}/points/count
func (x *Index) Stats(ctx context.Context) (index.Stats, error) {
	meta, _, err := x.loadMeta(ctx)
	if err != nil {
		return index.Stats{}, err
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err = x.do(ctx, http.MethodPost, "/collections/"+x.Collection+"/points/count", map[string]bool{"exact": true}, &resp)
	switch {
	case errors.Is(err, errNotFound):
		meta.Count = 0
	case err != nil:
		return index.Stats{}, fmt.Errorf("qdrant count: %w", err)
	default:
		meta.Count = resp.Result.Count
	}
	return meta, nil
}

// Reset recreates both collections and stores meta.
func (x *Index) Reset(ctx context.Context, meta index.Stats) error {
	metaCollection := x.metaCollection()
	for _, name := range []string{x.Collection, metaCollection} {
		if err := x.deleteCollection(ctx, name); err != nil {
			return err
		}
	}
	if err := x.createCollection(ctx, x.Collection, meta.Dimensions); err != nil {
		return err
	}
	if err := x.createCollection(ctx, metaCollection, 1); err != nil {
		return err
	}
	err := x.upsertPoints(ctx, metaCollection, []point{{
		ID:      metaPointID,
		Vector:  []float32{1},
		Payload: payload{Model: meta.Model, Dimensions: meta.Dimensions},
	}})
	if err != nil {
		return err
	}

	x.mu.Lock()
	x.meta = &index.Stats{Model: meta.Model, Dimensions: meta.Dimensions}
	x.mu.Unlock()
	debug.Log("index", "qdrant collection reset", "collection", x.Collection, "model", meta.Model, "dimensions", meta.Dimensions)
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need closing.
func (x *Index) Close() error { return nil }

func (x *Index) metaCollection() string {
	return x.Collection + "_meta"
}

// loadMeta returns the cached meta, fetching the meta point on first use.
// ok is false when the index has never been reset.
func (x *Index) loadMeta(ctx context.Context) (index.Stats, bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.meta != nil {
		return *x.meta, true, nil
	}

	var resp struct {
		Result struct {
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	err := x.do(ctx, http.MethodGet, "/collections/"+x.metaCollection()+"/points/"+metaPointID, nil, &resp)
	if errors.Is(err, errNotFound) {
		return index.Stats{}, false, nil
	}
	if err != nil {
		return index.Stats{}, false, fmt.Errorf("qdrant read meta: %w", err)
	}
	x.meta = &index.Stats{Model: resp.Result.Payload.Model, Dimensions: resp.Result.Payload.Dimensions}
	return *x.meta, true, nil
}

// createCollection issues PUT /collections/{name} with cosine distance.
func (x *Index) createCollection(ctx context.Context, name string, dimensions int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := x.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", name, err)
	}
	return nil
}

// deleteCollection issues DELETE /collections/{name}. A missing collection
// is not an error.
func (x *Index) deleteCollection(ctx context.Context, name string) error {
	err := x.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("qdrant delete collection %s: %w", name, err)
	}
	return nil
}

func (x *Index) upsertPoints(ctx context.Context, collection string, points []point) error {
	body := map[string]any{"points": points}
	if err := x.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("qdrant upsert into %s: %w", collection, err)
	}
	return nil
}

// do sends a JSON request and decodes the response into out when non-nil.
func (x *Index) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := x.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
