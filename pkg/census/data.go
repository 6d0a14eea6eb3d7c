package census

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// maxSuggestions bounds the names offered after a lookup miss.
	maxSuggestions = 5
	// minSimilarity is the Jaro-Winkler score a suggestion must reach.
	minSimilarity = 0.7
)

// Table is a data query response: a header row followed by data rows.
// Cells are strings or null, as returned by the API.
type Table [][]any

// Header returns the column names.
func (t Table) Header() []string {
	if len(t) == 0 {
		return nil
	}
	out := make([]string, len(t[0]))
	for i, v := range t[0] {
		out[i] = cellString(v)
	}
	return out
}

// Rows returns the data rows, excluding the header.
func (t Table) Rows() [][]any {
	if len(t) < 2 {
		return nil
	}
	return t[1:]
}

func cellString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// DataQuery describes a data request against one dataset.
type DataQuery struct {
	Year      string
	Dataset   string
	Variables []string
	// Geographies are the target levels, e.g. {"county": "*"}.
	Geographies map[string]string
	// Parents constrain the targets, e.g. {"state": "06"}.
	Parents map[string]string
}

// FIPS lists every area at the given level, with its NAME and codes.
func (c *Client) FIPS(ctx context.Context, year, dataset, geography string, parents map[string]string) (Table, error) {
	if geography == "" {
		return nil, fmt.Errorf("%w: geography is required", ErrInvalidQuery)
	}
	return c.query(ctx, "fips", year, dataset, []string{"NAME"}, map[string]string{geography: "*"}, parents)
}

// LookupFIPS resolves a place name to its codes, keyed by column name
// (e.g. {"state": "06", "county": "037"}). Names are matched exactly,
// then case-insensitively. A miss returns *PlaceNotFoundError with the
// closest names by Jaro-Winkler similarity.
func (c *Client) LookupFIPS(ctx context.Context, name, year, dataset, geography string, parents map[string]string) (map[string]string, error) {
	table, err := c.FIPS(ctx, year, dataset, geography, parents)
	if err != nil {
		return nil, err
	}

	header := table.Header()
	rows := table.Rows()
	codes := func(row []any) map[string]string {
		out := make(map[string]string, len(header)-1)
		for i := 1; i < len(header) && i < len(row); i++ {
			out[header[i]] = cellString(row[i])
		}
		return out
	}

	for _, row := range rows {
		if len(row) > 0 && cellString(row[0]) == name {
			return codes(row), nil
		}
	}
	for _, row := range rows {
		if len(row) > 0 && strings.EqualFold(cellString(row[0]), name) {
			return codes(row), nil
		}
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			names = append(names, cellString(row[0]))
		}
	}
	return nil, &PlaceNotFoundError{
		Name:        name,
		Geography:   geography,
		Suggestions: suggest(name, names),
	}
}

// Data runs a data query.
func (c *Client) Data(ctx context.Context, q DataQuery) (Table, error) {
	if len(q.Variables) == 0 {
		return nil, fmt.Errorf("%w: at least one variable is required", ErrInvalidQuery)
	}
	if len(q.Geographies) == 0 {
		return nil, fmt.Errorf("%w: at least one target geography is required", ErrInvalidQuery)
	}
	return c.query(ctx, "data", q.Year, q.Dataset, q.Variables, q.Geographies, q.Parents)
}

func (c *Client) query(ctx context.Context, op, year, dataset string, variables []string, targets, parents map[string]string) (Table, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	u, err := c.datasetURL(year, dataset)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("get", strings.Join(variables, ","))
	params["for"] = geoClauses(targets)
	if len(parents) > 0 {
		params["in"] = geoClauses(parents)
	}
	params.Set("key", c.APIKey)

	body, _, err := c.get(ctx, op, u, params)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, ErrNoData
	}

	var table Table
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", op, err)
	}
	return table, nil
}

// suggest returns up to maxSuggestions candidates similar to name, best first.
func suggest(name string, candidates []string) []string {
	type scored struct {
		name  string
		score float64
	}
	target := strings.ToLower(name)
	var hits []scored
	for _, cand := range candidates {
		score := matchr.JaroWinkler(target, strings.ToLower(cand), false)
		if score >= minSimilarity {
			hits = append(hits, scored{cand, score})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return strings.Compare(a.name, b.name)
	})
	if len(hits) > maxSuggestions {
		hits = hits[:maxSuggestions]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}
