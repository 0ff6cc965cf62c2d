// Package hierarchy compiles the denormalized per-entity ancestor records
// from the stored relationship edges, and serves the O(1) lookup surface.
package hierarchy

import (
	"time"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

const (
	// Root is the fixed root of every hierarchy path.
	Root = "US"

	// Unknown fills a missing intermediate level so path length and slot
	// positions stay stable across all entities of a type.
	Unknown = "unknown"
)

// Record is the denormalized hierarchy row for one entity. Wholly derived
// from relationship edges; regenerated in full on every compile.
type Record struct {
	Geoid   string           `json:"geoid"`
	GeoType geometry.GeoType `json:"geo_type"`
	Name    string           `json:"name"`

	// Primary ancestor per level; empty string means none.
	PrimaryState  string `json:"primary_state,omitempty"`
	PrimaryCounty string `json:"primary_county,omitempty"`
	PrimaryPlace  string `json:"primary_place,omitempty"`
	PrimaryCBSA   string `json:"primary_cbsa,omitempty"`

	// Full multi-valued ancestor (or, for CBSAs, member) sets.
	AllStates   []string `json:"all_states,omitempty"`
	AllCounties []string `json:"all_counties,omitempty"`
	AllPlaces   []string `json:"all_places,omitempty"`
	AllCBSAs    []string `json:"all_cbsas,omitempty"`

	// Path is the ordered chain from Root down to the entity itself.
	// Slot order: root, state, cbsa, county, place; each type's path stops
	// at its own slot, so the length is constant per type.
	Path []string `json:"hierarchy_path"`

	AreaKm2    float64   `json:"area_km2"`
	CompiledAt time.Time `json:"compiled_at,omitempty"`
}

// PathLen returns the fixed hierarchy path length for a type.
func PathLen(t geometry.GeoType) int {
	switch t {
	case geometry.State:
		return 2
	case geometry.CBSA:
		return 3
	case geometry.County:
		return 4
	case geometry.Place:
		return 5
	case geometry.ZCTA:
		return 6
	default:
		return 0
	}
}

func orUnknown(geoid string) string {
	if geoid == "" {
		return Unknown
	}
	return geoid
}
