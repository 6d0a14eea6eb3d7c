// Package datasetsearch provides the fetch_datasets tool, a semantic search
// over the Census dataset catalog.
package datasetsearch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/tools/registry"
)

// ToolName is the name of the search tool.
const ToolName = "fetch_datasets"

// Searcher is satisfied by *datasets.Searcher.
type Searcher interface {
	Search(ctx context.Context, query string, filter index.Filter, k int) ([]string, error)
}

// Input is the fetch_datasets argument set.
type Input struct {
	Query      string `json:"query" jsonschema:"a natural language description of the data you need, e.g. median household income by county"`
	Year       string `json:"year,omitempty" jsonschema:"only return datasets of this vintage, e.g. 2020"`
	Dataset    string `json:"dataset,omitempty" jsonschema:"only return this dataset, e.g. acs/acs5"`
	APIBaseURL string `json:"api_base_url,omitempty" jsonschema:"only return the dataset served at this API base URL"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of datasets to return (default 5)"`
}

// Provider serves fetch_datasets.
type Provider struct {
	searcher Searcher
}

var _ registry.Provider = (*Provider)(nil)

// New creates a Provider backed by s.
func New(s Searcher) *Provider {
	return &Provider{searcher: s}
}

// Name returns "dataset_search".
func (p *Provider) Name() string { return "dataset_search" }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// Tools returns fetch_datasets.
func (p *Provider) Tools() []registry.Tool {
	const title = "🔍 Search Census Datasets"
	return []registry.Tool{
		registry.NewTool(&mcp.Tool{
			Name:        ToolName,
			Title:       title,
			Description: "Search for relevant Census datasets using semantic search. Start here to find datasets matching your data needs.",
			Annotations: &mcp.ToolAnnotations{Title: title, ReadOnlyHint: true},
		}, p.search),
	}
}

func (p *Provider) search(ctx context.Context, in Input) (any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	filter, err := parseFilter(in)
	if err != nil {
		return nil, err
	}
	return p.searcher.Search(ctx, in.Query, filter, in.TopK)
}

func parseFilter(in Input) (index.Filter, error) {
	f := index.Filter{Dataset: in.Dataset, APIBaseURL: in.APIBaseURL}
	if in.Year == "" {
		return f, nil
	}
	year, err := strconv.Atoi(strings.TrimSpace(in.Year))
	if err != nil || year <= 0 {
		return index.Filter{}, fmt.Errorf("invalid year %q: must be a number such as 2020", in.Year)
	}
	f.Vintage = year
	return f, nil
}
