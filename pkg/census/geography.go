package census

import (
	"encoding/json"
	"slices"
	"strings"
)

// GeographyLevel is one entry of a dataset's geography.json "fips" list.
type GeographyLevel struct {
	Name              string   `json:"name"`
	GeoLevelDisplay   string   `json:"geoLevelDisplay,omitempty"`
	ReferenceDate     string   `json:"referenceDate,omitempty"`
	Requires          []string `json:"requires,omitempty"`
	Wildcard          []string `json:"wildcard,omitempty"`
	OptionalWithWCFor string   `json:"optionalWithWCFor,omitempty"`
}

// Geographies is a decoded geography.json document. Raw holds the
// upstream bytes, returned to tool callers unchanged.
type Geographies struct {
	Levels []GeographyLevel
	Raw    json.RawMessage
}

// Level returns the level with exactly the given name.
func (g *Geographies) Level(name string) (GeographyLevel, bool) {
	for _, lvl := range g.Levels {
		if lvl.Name == name {
			return lvl, true
		}
	}
	return GeographyLevel{}, false
}

// hierarchy lists the summary levels from the widest to the narrowest.
var hierarchy = []string{
	"us",
	"region",
	"division",
	"state",
	"county",
	"county subdivision",
	"subminor civil division",
	"place",
	"tract",
	"block group",
	"block",
}

func hierarchyRank(name string) int {
	if i := slices.Index(hierarchy, strings.ToLower(name)); i >= 0 {
		return i
	}
	return len(hierarchy)
}

// geoClauses renders a geography->codes map as "name:codes" predicates.
// Known levels come first from widest to narrowest, then unknown names in
// lexical order, so identical inputs always produce identical URLs.
func geoClauses(geos map[string]string) []string {
	names := make([]string, 0, len(geos))
	for name := range geos {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if ra, rb := hierarchyRank(a), hierarchyRank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})

	clauses := make([]string, len(names))
	for i, name := range names {
		clauses[i] = name + ":" + geos[name]
	}
	return clauses
}
