package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/index/indextest"
)

// fakeQdrant implements the subset of the Qdrant REST API the index uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	requests    []string
}

type fakeCollection struct {
	size   int
	order  []string
	points map[string]json.RawMessage
}

type storedPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func newFakeQdrant(t *testing.T) *httptest.Server {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string]*fakeCollection)}
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Vectors.Distance != "Cosine" {
			http.Error(w, "expected Cosine distance", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		if _, ok := f.collections[name]; ok {
			http.Error(w, `{"status":{"error":"Collection already exists"}}`, http.StatusConflict)
			return
		}
		f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: make(map[string]json.RawMessage)}
		w.Write([]byte(`{"result":true,"status":"ok"}`))
	})

	mux.HandleFunc("DELETE /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.collections, r.PathValue("name"))
		w.Write([]byte(`{"result":true,"status":"ok"}`))
	})

	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("upsert without wait=true")
		}
		var body struct {
			Points []json.RawMessage `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		c, ok := f.collections[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		for _, raw := range body.Points {
			var p storedPoint
			if err := json.Unmarshal(raw, &p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if len(p.Vector) != c.size {
				http.Error(w, "wrong vector size", http.StatusBadRequest)
				return
			}
			if _, exists := c.points[p.ID]; !exists {
				c.order = append(c.order, p.ID)
			}
			c.points[p.ID] = raw
		}
		w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	})

	mux.HandleFunc("GET /collections/{name}/points/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c, ok := f.collections[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		raw, ok := c.points[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"result":%s,"status":"ok"}`, raw)
	})

	mux.HandleFunc("POST /collections/{name}/points/count", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Exact bool `json:"exact"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body.Exact {
			t.Errorf("count without exact=true")
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		c, ok := f.collections[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"result":{"count":%d},"status":"ok"}`, len(c.points))
	})

	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.URL.Path)
		c, ok := f.collections[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		type hit struct {
			ID      string         `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		var hits []hit
		for _, id := range c.order {
			var p storedPoint
			_ = json.Unmarshal(c.points[id], &p)
			if !matchesFilter(p.Payload, req.Filter) {
				continue
			}
			hits = append(hits, hit{ID: id, Score: index.Cosine(req.Vector, p.Vector), Payload: p.Payload})
		}
		slices.SortStableFunc(hits, func(a, b hit) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			}
			return 0
		})
		if len(hits) > req.Limit {
			hits = hits[:req.Limit]
		}
		json.NewEncoder(w).Encode(map[string]any{"result": hits, "status": "ok"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func matchesFilter(p map[string]any, f *filterClause) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if fmt.Sprint(p[c.Key]) != fmt.Sprint(c.Match.Value) {
			return false
		}
	}
	return true
}

func TestConformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T) index.Index {
		return New(newFakeQdrant(t).URL, "")
	})
}

func TestUpsertBeforeReset(t *testing.T) {
	idx := New(newFakeQdrant(t).URL, "datasets")
	err := idx.Upsert(context.Background(), indextest.Docs())
	if !errors.Is(err, index.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestMetaSurvivesNewClient(t *testing.T) {
	ctx := context.Background()
	srv := newFakeQdrant(t)

	first := New(srv.URL+"/", "datasets")
	if err := first.Reset(ctx, index.Stats{Model: "all-minilm", Dimensions: indextest.Dims}); err != nil {
		t.Fatal(err)
	}
	if err := first.Upsert(ctx, indextest.Docs()); err != nil {
		t.Fatal(err)
	}

	second := New(srv.URL, "datasets")
	st, err := second.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 4 || st.Model != "all-minilm" || st.Dimensions != indextest.Dims {
		t.Errorf("Stats = %+v", st)
	}
}

func TestPointIDIsStableUUID(t *testing.T) {
	a, b := pointID("acs5-2020"), pointID("acs5-2020")
	if a != b {
		t.Errorf("pointID not deterministic: %s vs %s", a, b)
	}
	if a == pointID("acs5-2019") {
		t.Error("distinct IDs collided")
	}
	if len(a) != 36 {
		t.Errorf("pointID %q is not a UUID", a)
	}
}

func TestBuildFilter(t *testing.T) {
	if buildFilter(index.Filter{}) != nil {
		t.Error("zero filter should be omitted")
	}
	fc := buildFilter(index.Filter{Vintage: 2020, Dataset: "acs/acs5"})
	if len(fc.Must) != 2 || fc.Must[0].Key != "vintage" || fc.Must[1].Key != "dataset" {
		t.Errorf("filter = %+v", fc)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":{"error":"boom"}}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "").Reset(context.Background(), index.Stats{Model: "m", Dimensions: 4})
	if err == nil {
		t.Fatal("expected error")
	}
}
