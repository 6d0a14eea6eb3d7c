package index_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rhuss/mcp-census/pkg/embedding/mock"
	"github.com/rhuss/mcp-census/pkg/index"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float64(index.Cosine(tt.a, tt.b))
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	doc := &index.Document{Vintage: 2020, Dataset: "acs/acs5", APIBaseURL: "http://api.census.gov/data/2020/acs/acs5"}

	tests := []struct {
		name   string
		filter index.Filter
		want   bool
	}{
		{"zero", index.Filter{}, true},
		{"vintage hit", index.Filter{Vintage: 2020}, true},
		{"vintage miss", index.Filter{Vintage: 2019}, false},
		{"dataset hit", index.Filter{Dataset: "acs/acs5"}, true},
		{"dataset is exact", index.Filter{Dataset: "acs"}, false},
		{"all fields", index.Filter{Vintage: 2020, Dataset: "acs/acs5", APIBaseURL: doc.APIBaseURL}, true},
		{"url miss", index.Filter{APIBaseURL: "x"}, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Matches(doc); got != tt.want {
			t.Errorf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
	if !(index.Filter{}).IsZero() || (index.Filter{Vintage: 1}).IsZero() {
		t.Error("IsZero wrong")
	}
}

func TestTopK(t *testing.T) {
	docs := []index.Document{
		{ID: "a", Vintage: 2020, Embedding: []float32{1, 0}},
		{ID: "b", Vintage: 2019, Embedding: []float32{0.9, 0.1}},
		{ID: "c", Vintage: 2020, Embedding: []float32{0, 1}},
		{ID: "d", Vintage: 2020, Embedding: []float32{0.7, 0.7}},
	}

	got := index.TopK([]float32{1, 0}, 2, index.Filter{}, docs)
	if len(got) != 2 || got[0].Document.ID != "a" || got[1].Document.ID != "b" {
		t.Errorf("TopK = %+v", got)
	}

	got = index.TopK([]float32{1, 0}, 10, index.Filter{Vintage: 2020}, docs)
	if len(got) != 3 || got[0].Document.ID != "a" || got[1].Document.ID != "d" || got[2].Document.ID != "c" {
		t.Errorf("filtered TopK = %+v", got)
	}

	if got := index.TopK([]float32{1, 0}, 0, index.Filter{}, docs); got != nil {
		t.Errorf("k=0 should return nil, got %v", got)
	}
}

func TestCheckDimensions(t *testing.T) {
	docs := []index.Document{{ID: "ok", Embedding: make([]float32, 4)}, {ID: "bad", Embedding: make([]float32, 3)}}
	err := index.CheckDimensions(docs, 4)
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := index.CheckDimensions(docs[:1], 4); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRank(t *testing.T) {
	p := mock.New(mock.DefaultDims)
	texts := []string{
		"B01001_001E: Estimate!!Total: (SEX BY AGE)",
		"B19013_001E: Estimate!!Median household income in the past 12 months (MEDIAN HOUSEHOLD INCOME)",
		"B25001_001E: Estimate!!Total (HOUSING UNITS)",
	}

	got, err := index.Rank(context.Background(), p, texts, "median household income", 1)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 1 || got[0] != texts[1] {
		t.Errorf("Rank = %v", got)
	}

	all, err := index.Rank(context.Background(), p, texts, "income", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(texts) {
		t.Errorf("default topK should keep all %d texts, got %d", len(texts), len(all))
	}

	empty, err := index.Rank(context.Background(), p, nil, "income", 5)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Rank(nil) = %v, %v", empty, err)
	}
}

func TestRankBatchesLargeInputs(t *testing.T) {
	p := mock.New(64)
	texts := make([]string, 1000)
	for i := range texts {
		texts[i] = fmt.Sprintf("V%05d_001E: Estimate!!Total (TABLE %d)", i, i)
	}
	texts[731] = "B19013_001E: Estimate!!Median household income (MEDIAN HOUSEHOLD INCOME)"

	got, err := index.RankWith(context.Background(), p, texts, "median household income", 3,
		index.RankOptions{BatchSize: 100, Concurrency: 3})
	if err != nil {
		t.Fatalf("RankWith: %v", err)
	}
	if len(got) != 3 || got[0] != texts[731] {
		t.Errorf("RankWith = %v", got)
	}
	if n := p.LargestBatch(); n > 100 {
		t.Errorf("largest EmbedBatch call had %d texts, want <= 100", n)
	}
	if _, batches, _ := p.Calls(); batches != 10 {
		t.Errorf("EmbedBatch calls = %d, want 10", batches)
	}

	// The default batch size applies when none is given.
	d := mock.New(64)
	if _, err := index.Rank(context.Background(), d, texts, "income", 1); err != nil {
		t.Fatal(err)
	}
	if n := d.LargestBatch(); n != index.DefaultRankBatchSize {
		t.Errorf("largest default batch = %d, want %d", n, index.DefaultRankBatchSize)
	}
}

func TestRankBatchError(t *testing.T) {
	p := mock.New(16)
	p.Err = errors.New("too many inputs")
	p.FailAfter = 2
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	_, err := index.RankWith(context.Background(), p, texts, "text", 1, index.RankOptions{BatchSize: 2, Concurrency: 1})
	if err == nil || !errors.Is(err, p.Err) {
		t.Errorf("expected batch error, got %v", err)
	}
}
