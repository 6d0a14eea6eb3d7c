// Package indextest provides a behavioural test suite that every
// index.Index backend must pass.
package indextest

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/mcp-census/pkg/index"
)

// Dims is the vector length used by the suite.
const Dims = 4

// Docs returns a small catalog: two ACS vintages, a decennial table and a
// timeseries without a vintage.
func Docs() []index.Document {
	return []index.Document{
		{
			ID: "acs5-2020", Content: "Vintage: 2020\nDataset: acs/acs5", Vintage: 2020, Dataset: "acs/acs5",
			APIBaseURL: "http://api.census.gov/data/2020/acs/acs5", Embedding: []float32{1, 0, 0, 0},
		},
		{
			ID: "acs5-2019", Content: "Vintage: 2019\nDataset: acs/acs5", Vintage: 2019, Dataset: "acs/acs5",
			APIBaseURL: "http://api.census.gov/data/2019/acs/acs5", Embedding: []float32{0.9, 0.1, 0, 0},
		},
		{
			ID: "dec-pl-2020", Content: "Vintage: 2020\nDataset: dec/pl", Vintage: 2020, Dataset: "dec/pl",
			APIBaseURL: "http://api.census.gov/data/2020/dec/pl", Embedding: []float32{0, 1, 0, 0},
		},
		{
			ID: "timeseries-eits", Content: "Vintage: Unknown Vintage\nDataset: timeseries/eits", Vintage: 0, Dataset: "timeseries/eits",
			APIBaseURL: "http://api.census.gov/data/timeseries/eits", Embedding: []float32{0, 0, 1, 0},
		},
	}
}

// Run exercises newIndex against the index.Index contract. newIndex must
// return an empty, independent index for each call.
func Run(t *testing.T, newIndex func(t *testing.T) index.Index) {
	t.Helper()
	ctx := context.Background()
	meta := index.Stats{Model: "test-model", Dimensions: Dims}

	seeded := func(t *testing.T) index.Index {
		t.Helper()
		idx := newIndex(t)
		if err := idx.Reset(ctx, meta); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if err := idx.Upsert(ctx, Docs()); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		return idx
	}

	t.Run("EmptyStats", func(t *testing.T) {
		idx := newIndex(t)
		st, err := idx.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Count != 0 {
			t.Errorf("Count = %d, want 0", st.Count)
		}
	})

	t.Run("StatsAfterUpsert", func(t *testing.T) {
		idx := seeded(t)
		st, err := idx.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Count != 4 || st.Model != "test-model" || st.Dimensions != Dims {
			t.Errorf("Stats = %+v", st)
		}
	})

	t.Run("SearchOrdersByScore", func(t *testing.T) {
		idx := seeded(t)
		got, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2, index.Filter{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].Document.ID != "acs5-2020" || got[1].Document.ID != "acs5-2019" {
			t.Errorf("order = %s, %s", got[0].Document.ID, got[1].Document.ID)
		}
		if got[0].Score < got[1].Score {
			t.Errorf("scores not descending: %f < %f", got[0].Score, got[1].Score)
		}
		d := got[0].Document
		if d.Content != "Vintage: 2020\nDataset: acs/acs5" || d.Vintage != 2020 || d.Dataset != "acs/acs5" || d.APIBaseURL == "" {
			t.Errorf("document round-trip lost fields: %+v", d)
		}
	})

	t.Run("SearchFilters", func(t *testing.T) {
		idx := seeded(t)
		tests := []struct {
			name   string
			filter index.Filter
			want   []string
		}{
			{"vintage", index.Filter{Vintage: 2020}, []string{"acs5-2020", "dec-pl-2020"}},
			{"dataset", index.Filter{Dataset: "acs/acs5"}, []string{"acs5-2019", "acs5-2020"}},
			{"url", index.Filter{APIBaseURL: "http://api.census.gov/data/2020/dec/pl"}, []string{"dec-pl-2020"}},
			{"combined", index.Filter{Vintage: 2019, Dataset: "acs/acs5"}, []string{"acs5-2019"}},
			{"no match", index.Filter{Vintage: 1990}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := idx.Search(ctx, []float32{1, 0.5, 0, 0}, 10, tt.filter)
				if err != nil {
					t.Fatalf("Search: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("got %d matches, want %d", len(got), len(tt.want))
				}
				for i, id := range tt.want {
					if got[i].Document.ID != id {
						t.Errorf("match %d = %s, want %s", i, got[i].Document.ID, id)
					}
				}
			})
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		idx := seeded(t)
		doc := Docs()[3]
		doc.Content = "updated"
		doc.Embedding = []float32{0, 0, 0, 1}
		if err := idx.Upsert(ctx, []index.Document{doc}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		st, _ := idx.Stats(ctx)
		if st.Count != 4 {
			t.Errorf("Count after replace = %d, want 4", st.Count)
		}
		got, err := idx.Search(ctx, []float32{0, 0, 0, 1}, 1, index.Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Document.Content != "updated" {
			t.Errorf("replaced document not found: %+v", got)
		}
	})

	t.Run("ResetClears", func(t *testing.T) {
		idx := seeded(t)
		if err := idx.Reset(ctx, index.Stats{Model: "other-model", Dimensions: 2}); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		st, err := idx.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if st.Count != 0 || st.Model != "other-model" || st.Dimensions != 2 {
			t.Errorf("Stats after reset = %+v", st)
		}
		err = idx.Upsert(ctx, Docs()[:1])
		if !errors.Is(err, index.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("SearchDimensionMismatch", func(t *testing.T) {
		idx := seeded(t)
		_, err := idx.Search(ctx, []float32{1, 0}, 1, index.Filter{})
		if !errors.Is(err, index.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}
