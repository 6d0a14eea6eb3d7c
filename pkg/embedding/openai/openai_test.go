package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestModelDimensions(t *testing.T) {
	tests := map[string]int{
		"text-embedding-3-small":                 1536,
		"text-embedding-3-large":                 3072,
		"text-embedding-ada-002":                 1536,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"custom-embedder":                        0,
	}
	for model, want := range tests {
		if got := modelDimensions(model); got != want {
			t.Errorf("modelDimensions(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestNew_RequiresKeyOrBaseURL(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Error("expected error without key or base URL")
	}
	p, err := New("", "", WithBaseURL("http://localhost:8000/v1"))
	if err != nil {
		t.Fatalf("New with base URL: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
	}
}

// fakeEmbeddings serves /v1/embeddings, returning vectors in reverse order
// to check that results are placed by index.
func fakeEmbeddings(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input any    `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var inputs []string
		switch in := req.Input.(type) {
		case string:
			inputs = []string{in}
		case []any:
			for _, s := range in {
				inputs = append(inputs, s.(string))
			}
		}

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, 0, len(inputs))
		for i := len(inputs) - 1; i >= 0; i-- {
			vec := make([]float64, dims)
			vec[0] = float64(len(inputs[i]))
			data = append(data, item{Object: "embedding", Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	srv := fakeEmbeddings(t, 8)
	p, err := New("", "custom-embedder", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Dimensions() != 0 {
		t.Fatalf("unknown model should report 0 dims before first call, got %d", p.Dimensions())
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || vecs[0][0] != 1 || vecs[1][0] != 3 || vecs[2][0] != 2 {
		t.Errorf("vectors out of order: %v", vecs)
	}
	if p.Dimensions() != 8 {
		t.Errorf("Dimensions() after call = %d, want 8", p.Dimensions())
	}
}

func TestEmbed(t *testing.T) {
	srv := fakeEmbeddings(t, 4)
	p, err := New("sk-test", "custom-embedder", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 4 || vec[0] != 5 {
		t.Errorf("Embed = %v", vec)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	p, _ := New("sk-test", "")
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v", vecs, err)
	}
}
