package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/index/indextest"
)

func TestConformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T) index.Index {
		return New()
	})
}

func TestUpsertBeforeReset(t *testing.T) {
	err := New().Upsert(context.Background(), indextest.Docs())
	if !errors.Is(err, index.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSearchEmpty(t *testing.T) {
	got, err := New().Search(context.Background(), []float32{1, 0}, 5, index.Filter{})
	if err != nil || len(got) != 0 {
		t.Errorf("Search on empty index = %v, %v", got, err)
	}
}
