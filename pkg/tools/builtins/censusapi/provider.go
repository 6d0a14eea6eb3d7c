// Package censusapi exposes the Census Data API as MCP tools: dataset
// metadata (geographies, variables, examples), FIPS code discovery and
// lookup, and data retrieval.
package censusapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/mcp-census/pkg/census"
	"github.com/rhuss/mcp-census/pkg/embedding"
	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/tools/registry"
)

// Tool names.
const (
	ToolGeographies     = "fetch_dataset_geographies"
	ToolVariables       = "fetch_dataset_variables"
	ToolExamples        = "fetch_dataset_examples"
	ToolRequiredParents = "fetch_dataset_required_parent_geographies"
	ToolFIPS            = "fetch_dataset_fips"
	ToolLookupFIPS      = "lookup_dataset_fips"
	ToolData            = "fetch_dataset_data"
)

// ErrNoEmbedder is returned for semantic variable queries when no
// embedding provider is configured.
var ErrNoEmbedder = errors.New("semantic variable search is unavailable: no embedding provider configured")

// DatasetInput identifies a dataset, e.g. year "2020" and dataset "acs/acs5".
type DatasetInput struct {
	Year    string `json:"year" jsonschema:"the year (vintage) of the dataset, e.g. 2020; empty for timeseries datasets"`
	Dataset string `json:"dataset" jsonschema:"the dataset identifier, e.g. acs/acs5"`
}

// VariablesInput selects a dataset's variables, optionally ranked against a
// semantic query.
type VariablesInput struct {
	Year    string `json:"year" jsonschema:"the year (vintage) of the dataset, e.g. 2020; empty for timeseries datasets"`
	Dataset string `json:"dataset" jsonschema:"the dataset identifier, e.g. acs/acs5"`
	Query   string `json:"query,omitempty" jsonschema:"optional semantic query used to keep only the most relevant variables"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"number of variables to keep when query is set (default 10)"`
}

// RequiredParentsInput names a geography level of a dataset.
type RequiredParentsInput struct {
	Year          string `json:"year" jsonschema:"the year (vintage) of the dataset, e.g. 2020; empty for timeseries datasets"`
	Dataset       string `json:"dataset" jsonschema:"the dataset identifier, e.g. acs/acs5"`
	GeographyName string `json:"geography_name" jsonschema:"the name of the geography level, e.g. tract"`
}

// FIPSInput selects a geography level, constrained by parent geographies.
type FIPSInput struct {
	Year                      string            `json:"year" jsonschema:"the year (vintage) of the dataset, e.g. 2020; empty for timeseries datasets"`
	Dataset                   string            `json:"dataset" jsonschema:"the dataset identifier, e.g. acs/acs5"`
	Geography                 string            `json:"geography" jsonschema:"the geography of interest, e.g. county"`
	RequiredParentGeographies map[string]string `json:"required_parent_geographies,omitempty" jsonschema:"required parent geographies and their FIPS codes, e.g. {\"state\": \"05,06\"}"`
}

// LookupInput resolves one place name to its FIPS codes.
type LookupInput struct {
	Name                      string            `json:"name" jsonschema:"the place name to look up, e.g. Los Angeles County, California"`
	Year                      string            `json:"year" jsonschema:"the year (vintage) of the dataset, e.g. 2020; empty for timeseries datasets"`
	Dataset                   string            `json:"dataset" jsonschema:"the dataset identifier, e.g. acs/acs5"`
	Geography                 string            `json:"geography" jsonschema:"the geography of interest, e.g. county"`
	RequiredParentGeographies map[string]string `json:"required_parent_geographies,omitempty" jsonschema:"required parent geographies and their FIPS codes, e.g. {\"state\": \"06\"}"`
}

// DataInput is a data query.
type DataInput struct {
	Year                      string            `json:"year" jsonschema:"the year (vintage) of the dataset, e.g. 2020; empty for timeseries datasets"`
	Dataset                   string            `json:"dataset" jsonschema:"the dataset identifier, e.g. acs/acs5"`
	Variables                 []string          `json:"variables" jsonschema:"variables to fetch, e.g. [\"NAME\", \"B01001_001E\"]"`
	Geographies               map[string]string `json:"geographies" jsonschema:"target geographies and their FIPS codes, e.g. {\"county\": \"*\"}"`
	RequiredParentGeographies map[string]string `json:"required_parent_geographies,omitempty" jsonschema:"required parent geographies and their FIPS codes, e.g. {\"state\": \"06\"}"`
}

// Provider serves the Census Data API tools.
type Provider struct {
	client   *census.Client
	embedder embedding.Provider
	rank     index.RankOptions
}

// Option configures a Provider.
type Option func(*Provider)

// WithRankOptions sets the batching used when ranking variables against a
// semantic query.
func WithRankOptions(opts index.RankOptions) Option {
	return func(p *Provider) { p.rank = opts }
}

var _ registry.Provider = (*Provider)(nil)

// New creates a Provider. embedder may be nil, in which case semantic
// variable queries fail with ErrNoEmbedder.
func New(client *census.Client, embedder embedding.Provider, opts ...Option) *Provider {
	p := &Provider{client: client, embedder: embedder}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "census_api".
func (p *Provider) Name() string { return "census_api" }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

func readOnly(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{Title: title, ReadOnlyHint: true}
}

// Tools returns the Census Data API tools.
func (p *Provider) Tools() []registry.Tool {
	return []registry.Tool{
		registry.NewTool(&mcp.Tool{
			Name:        ToolGeographies,
			Title:       "🗺️ Get Available Geographic Levels",
			Description: "Discover what geographic levels (state, county, tract, etc.) are available for a dataset.",
			Annotations: readOnly("🗺️ Get Available Geographic Levels"),
		}, p.geographies),
		registry.NewTool(&mcp.Tool{
			Name:        ToolVariables,
			Title:       "🔢 Explore Dataset Variables",
			Description: "Find specific data variables in a dataset. Use semantic query to filter thousands of variables to relevant ones.",
			Annotations: readOnly("🔢 Explore Dataset Variables"),
		}, p.variables),
		registry.NewTool(&mcp.Tool{
			Name:        ToolExamples,
			Title:       "💡 Get Dataset Usage Examples",
			Description: "See example API calls for proper usage patterns. Use when unsure how to structure your data request.",
			Annotations: readOnly("💡 Get Dataset Usage Examples"),
		}, p.examples),
		registry.NewTool(&mcp.Tool{
			Name:        ToolRequiredParents,
			Title:       "🔗 Check Required Parent Geographies",
			Description: "Find what parent geographies are needed for a specific geographic level (e.g., tracts require county and state).",
			Annotations: readOnly("🔗 Check Required Parent Geographies"),
		}, p.requiredParents),
		registry.NewTool(&mcp.Tool{
			Name:        ToolFIPS,
			Title:       "📍 Browse Available FIPS Codes",
			Description: "Explore all available FIPS codes for a geographic level. Helpful for discovering available counties, tracts, etc.",
			Annotations: readOnly("📍 Browse Available FIPS Codes"),
		}, p.fips),
		registry.NewTool(&mcp.Tool{
			Name:        ToolLookupFIPS,
			Title:       "🔍 Convert Place Names to FIPS Codes",
			Description: "Convert place names (like 'Los Angeles County') to FIPS codes needed for data requests.",
			Annotations: readOnly("🔍 Convert Place Names to FIPS Codes"),
		}, p.lookupFIPS),
		registry.NewTool(&mcp.Tool{
			Name:        ToolData,
			Title:       "📈 Retrieve Census Data",
			Description: "Get actual Census data values. Use as final step after identifying variables and geographies. Requires proper target_geographies and parent_geographies parameters.",
			Annotations: readOnly("📈 Retrieve Census Data"),
		}, p.data),
	}
}

func (p *Provider) geographies(ctx context.Context, in DatasetInput) (any, error) {
	geos, err := p.client.Geographies(ctx, in.Year, in.Dataset)
	if err != nil {
		return nil, err
	}
	return geos.Raw, nil
}

func (p *Provider) variables(ctx context.Context, in VariablesInput) (any, error) {
	vars, err := p.client.Variables(ctx, in.Year, in.Dataset)
	if err != nil {
		return nil, err
	}
	if in.Query == "" {
		return map[string]map[string]json.RawMessage{"variables": vars.Raw}, nil
	}
	if p.embedder == nil {
		return nil, ErrNoEmbedder
	}

	names := vars.Names()
	descriptors := make([]string, len(names))
	byDescriptor := make(map[string]string, len(names))
	for i, name := range names {
		descriptors[i] = vars.Descriptor(name)
		byDescriptor[descriptors[i]] = name
	}

	ranked, err := index.RankWith(ctx, p.embedder, descriptors, in.Query, in.TopK, p.rank)
	if err != nil {
		return nil, err
	}
	keep := make([]string, len(ranked))
	for i, d := range ranked {
		keep[i] = byDescriptor[d]
	}
	return vars.Subset(keep), nil
}

func (p *Provider) examples(ctx context.Context, in DatasetInput) (any, error) {
	return p.client.Examples(ctx, in.Year, in.Dataset)
}

func (p *Provider) requiredParents(ctx context.Context, in RequiredParentsInput) (any, error) {
	return p.client.RequiredParentGeographies(ctx, in.Year, in.Dataset, in.GeographyName)
}

func (p *Provider) fips(ctx context.Context, in FIPSInput) (any, error) {
	return p.client.FIPS(ctx, in.Year, in.Dataset, in.Geography, in.RequiredParentGeographies)
}

func (p *Provider) lookupFIPS(ctx context.Context, in LookupInput) (any, error) {
	return p.client.LookupFIPS(ctx, in.Name, in.Year, in.Dataset, in.Geography, in.RequiredParentGeographies)
}

func (p *Provider) data(ctx context.Context, in DataInput) (any, error) {
	return p.client.Data(ctx, census.DataQuery{
		Year:        in.Year,
		Dataset:     in.Dataset,
		Variables:   in.Variables,
		Geographies: in.Geographies,
		Parents:     in.RequiredParentGeographies,
	})
}
