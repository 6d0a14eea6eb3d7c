package census

import (
	"context"
	"encoding/json"
	"fmt"
)

// CatalogEntry is one dataset of the data.json catalog. Only the fields
// the dataset index uses are decoded.
type CatalogEntry struct {
	Identifier   string         `json:"identifier"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Vintage      *int           `json:"c_vintage,omitempty"`
	Dataset      []string       `json:"c_dataset"`
	Distribution []Distribution `json:"distribution"`
}

// Distribution describes where a dataset's API lives.
type Distribution struct {
	AccessURL string `json:"accessURL"`
}

// Catalog is the decoded data.json document.
type Catalog struct {
	Datasets []CatalogEntry `json:"dataset"`
}

// CatalogBytes fetches the raw data.json catalog.
func (c *Client) CatalogBytes(ctx context.Context) ([]byte, error) {
	body, _, err := c.get(ctx, "catalog", c.CatalogURL, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Catalog fetches and decodes the data.json catalog.
func (c *Client) Catalog(ctx context.Context) (*Catalog, error) {
	body, err := c.CatalogBytes(ctx)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(body)
}

// ParseCatalog decodes a data.json document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &cat, nil
}
