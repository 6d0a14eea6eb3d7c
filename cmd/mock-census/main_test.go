package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/mcp-census/pkg/census"
	"github.com/rhuss/mcp-census/pkg/embedding/mock"
	"github.com/rhuss/mcp-census/pkg/embedding/ollama"
)

func newClient(t *testing.T, key string) *census.Client {
	t.Helper()
	srv := httptest.NewServer(newMux())
	t.Cleanup(srv.Close)
	return census.New(census.Options{
		BaseURL:    srv.URL + "/data",
		CatalogURL: srv.URL + "/data.json",
		APIKey:     key,
		Timeout:    5 * time.Second,
	})
}

func TestCatalogAndMetadata(t *testing.T) {
	c := newClient(t, mockKey)
	ctx := context.Background()

	cat, err := c.Catalog(ctx)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(cat.Datasets) != 4 {
		t.Errorf("got %d datasets, want 4", len(cat.Datasets))
	}

	parents, err := c.RequiredParentGeographies(ctx, "2020", "acs/acs5", "county")
	if err != nil {
		t.Fatalf("RequiredParentGeographies: %v", err)
	}
	if len(parents) != 1 || parents[0] != "state" {
		t.Errorf("parents = %v", parents)
	}

	_, err = c.Variables(ctx, "1990", "acs/acs5")
	var serr *census.StatusError
	if !errors.As(err, &serr) || serr.StatusCode != 404 {
		t.Errorf("expected 404 for unknown vintage, got %v", err)
	}
}

func TestDataQueries(t *testing.T) {
	c := newClient(t, mockKey)
	ctx := context.Background()

	codes, err := c.LookupFIPS(ctx, "harris county, texas", "2020", "acs/acs5", "county", map[string]string{"state": "48"})
	if err != nil {
		t.Fatalf("LookupFIPS: %v", err)
	}
	if codes["state"] != "48" || codes["county"] != "201" {
		t.Errorf("codes = %v", codes)
	}

	table, err := c.Data(ctx, census.DataQuery{
		Year:        "2020",
		Dataset:     "acs/acs5",
		Variables:   []string{"NAME", "B19013_001E"},
		Geographies: map[string]string{"state": "*"},
	})
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(table) != 3 {
		t.Errorf("got %d rows, want header plus 2 states", len(table))
	}

	_, err = c.Data(ctx, census.DataQuery{
		Year: "2020", Dataset: "acs/acs5",
		Variables:   []string{"NAME"},
		Geographies: map[string]string{"tract": "*"},
	})
	var serr *census.StatusError
	if !errors.As(err, &serr) || serr.StatusCode != 400 {
		t.Errorf("expected 400 for tract, got %v", err)
	}
}

func TestInvalidKeyIsHTML(t *testing.T) {
	c := newClient(t, "wrong")
	_, err := c.FIPS(context.Background(), "2020", "acs/acs5", "state", nil)
	if !errors.Is(err, census.ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestEmbedEndpoint(t *testing.T) {
	srv := httptest.NewServer(newMux())
	defer srv.Close()

	p, err := ollama.New(srv.URL, "", ollama.WithDimensions(mock.DefaultDims))
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := p.EmbedBatch(context.Background(), []string{"median income", "housing units"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != mock.DefaultDims {
		t.Fatalf("unexpected shape: %d vectors", len(vecs))
	}
	want := mock.Vector("median income", mock.DefaultDims)
	for i := range want {
		if vecs[0][i] != want[i] {
			t.Fatalf("vector differs from mock.Vector at %d", i)
		}
	}
}
