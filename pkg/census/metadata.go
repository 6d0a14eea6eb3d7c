package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// Variable is one entry of a dataset's variables.json.
type Variable struct {
	Label         string `json:"label"`
	Concept       string `json:"concept,omitempty"`
	PredicateType string `json:"predicateType,omitempty"`
	Group         string `json:"group,omitempty"`
}

// Variables is a decoded variables.json document. Raw holds each entry's
// upstream JSON so filtered results keep the original shape.
type Variables struct {
	Entries map[string]Variable
	Raw     map[string]json.RawMessage
}

// Names returns the variable names in lexical order.
func (v *Variables) Names() []string {
	names := make([]string, 0, len(v.Raw))
	for name := range v.Raw {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Descriptor renders a variable as "NAME: label (concept)" for ranking.
func (v *Variables) Descriptor(name string) string {
	e := v.Entries[name]
	if e.Concept == "" {
		return name + ": " + e.Label
	}
	return name + ": " + e.Label + " (" + e.Concept + ")"
}

// Subset returns a variables.json-shaped document holding only names.
// Unknown names are skipped.
func (v *Variables) Subset(names []string) map[string]map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(names))
	for _, name := range names {
		if raw, ok := v.Raw[name]; ok {
			out[name] = raw
		}
	}
	return map[string]map[string]json.RawMessage{"variables": out}
}

// Geographies fetches {year}/{dataset}/geography.json.
func (c *Client) Geographies(ctx context.Context, year, dataset string) (*Geographies, error) {
	body, err := c.metadata(ctx, "geography", year, dataset, "geography.json")
	if err != nil {
		return nil, err
	}
	var doc struct {
		Fips []GeographyLevel `json:"fips"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding geography.json: %w", err)
	}
	return &Geographies{Levels: doc.Fips, Raw: bytes.Clone(body)}, nil
}

// Variables fetches {year}/{dataset}/variables.json.
func (c *Client) Variables(ctx context.Context, year, dataset string) (*Variables, error) {
	body, err := c.metadata(ctx, "variables", year, dataset, "variables.json")
	if err != nil {
		return nil, err
	}
	var doc struct {
		Variables map[string]json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding variables.json: %w", err)
	}

	vars := &Variables{
		Entries: make(map[string]Variable, len(doc.Variables)),
		Raw:     doc.Variables,
	}
	if vars.Raw == nil {
		vars.Raw = map[string]json.RawMessage{}
	}
	for name, raw := range doc.Variables {
		var v Variable
		// Pseudo-variables like "for" and "in" carry non-object values.
		if err := json.Unmarshal(raw, &v); err == nil {
			vars.Entries[name] = v
		}
	}
	return vars, nil
}

// Examples fetches {year}/{dataset}/examples.json unchanged.
func (c *Client) Examples(ctx context.Context, year, dataset string) (json.RawMessage, error) {
	body, err := c.metadata(ctx, "examples", year, dataset, "examples.json")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.Clone(body)), nil
}

// RequiredParentGeographies returns the parent levels that must be
// constrained when querying the named level. The result is empty, never
// nil, when the level needs no parents or does not exist.
func (c *Client) RequiredParentGeographies(ctx context.Context, year, dataset, name string) ([]string, error) {
	geos, err := c.Geographies(ctx, year, dataset)
	if err != nil {
		return nil, err
	}
	lvl, ok := geos.Level(name)
	if !ok || lvl.Requires == nil {
		return []string{}, nil
	}
	return lvl.Requires, nil
}
