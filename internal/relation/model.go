// Package relation owns the pairwise relationship tables: the configured
// (child-type, parent-type) pair registry, the edge model, the idempotent
// writer with primary assignment, and the structural county→state path.
package relation

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

// Pair describes one configured (child-type, parent-type) relationship
// computation and its backing table.
type Pair struct {
	Name       string // e.g. "zcta_county"
	Child      geometry.GeoType
	Parent     geometry.GeoType
	Table      string // schema-qualified edge table
	Structural bool   // derived from geoid structure, no overlap computation
}

// Pairs is the fixed relationship graph. County→State is one-to-many by
// geoid construction and takes the simpler structural path.
var Pairs = []Pair{
	{Name: "zcta_county", Child: geometry.ZCTA, Parent: geometry.County, Table: "geo.rel_zcta_county"},
	{Name: "zcta_place", Child: geometry.ZCTA, Parent: geometry.Place, Table: "geo.rel_zcta_place"},
	{Name: "zcta_cbsa", Child: geometry.ZCTA, Parent: geometry.CBSA, Table: "geo.rel_zcta_cbsa"},
	{Name: "place_county", Child: geometry.Place, Parent: geometry.County, Table: "geo.rel_place_county"},
	{Name: "county_cbsa", Child: geometry.County, Parent: geometry.CBSA, Table: "geo.rel_county_cbsa"},
	{Name: "county_state", Child: geometry.County, Parent: geometry.State, Table: "geo.rel_county_state", Structural: true},
}

// PairByName looks up a pair in the registry.
func PairByName(name string) (Pair, error) {
	for _, p := range Pairs {
		if p.Name == name {
			return p, nil
		}
	}
	return Pair{}, eris.Errorf("relation: unknown pair type %q", name)
}

// SpatialPairs returns the pairs that require overlap computation.
func SpatialPairs() []Pair {
	var out []Pair
	for _, p := range Pairs {
		if !p.Structural {
			out = append(out, p)
		}
	}
	return out
}

// Edge is one stored relationship row. Absence of overlap means absence of
// a row, never a zero row.
type Edge struct {
	ChildGeoid     string    `json:"child_geoid"`
	ParentGeoid    string    `json:"parent_geoid"`
	OverlapPct     float64   `json:"overlap_pct"`
	OverlapAreaKm2 float64   `json:"overlap_area_km2"`
	IsPrimary      bool      `json:"is_primary"`
	ComputedAt     time.Time `json:"computed_at,omitempty"`
}

// primaryThreshold is the overlap percentage a parent must exceed to be the
// child's primary parent of its type.
const primaryThreshold = 50.0
