// Package datasets turns the Census data.json catalog into a searchable
// vector index: it builds documents from catalog entries, embeds and stores
// them, keeps an offline snapshot, and answers semantic queries.
package datasets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rhuss/mcp-census/pkg/census"
	"github.com/rhuss/mcp-census/pkg/index"
)

// Placeholders for catalog fields that are absent.
const (
	UnknownVintage = "Unknown Vintage"
	NoTitle        = "No Title"
	NoDescription  = "No Description"
	NoAPIBaseURL   = "No API Base URL"
)

// FromCatalog converts every catalog entry to a Document. Embeddings are
// left empty.
func FromCatalog(cat *census.Catalog) []index.Document {
	docs := make([]index.Document, 0, len(cat.Datasets))
	seen := make(map[string]bool, len(cat.Datasets))
	for i, e := range cat.Datasets {
		d := FromEntry(e)
		if d.ID == "" || seen[d.ID] {
			d.ID = fmt.Sprintf("%s#%d", d.ID, i)
		}
		seen[d.ID] = true
		docs = append(docs, d)
	}
	return docs
}

// FromEntry builds the Document for one catalog entry.
func FromEntry(e census.CatalogEntry) index.Document {
	key := strings.Join(e.Dataset, "/")

	vintage, vintageText := 0, UnknownVintage
	if e.Vintage != nil {
		vintage = *e.Vintage
		vintageText = strconv.Itoa(vintage)
	}

	title := e.Title
	if title == "" {
		title = NoTitle
	}
	description := e.Description
	if description == "" {
		description = NoDescription
	}

	apiBaseURL := NoAPIBaseURL
	if len(e.Distribution) > 0 && e.Distribution[0].AccessURL != "" {
		apiBaseURL = e.Distribution[0].AccessURL
	}

	id := e.Identifier
	if id == "" && key != "" {
		id = key + "@" + vintageText
	}

	return index.Document{
		ID: id,
		Content: fmt.Sprintf("Vintage: %s\nDataset: %s\nAPI base URL: %s\nTitle: %s\nDescription: %s",
			vintageText, key, apiBaseURL, title, description),
		Vintage:    vintage,
		Dataset:    key,
		APIBaseURL: apiBaseURL,
	}
}
