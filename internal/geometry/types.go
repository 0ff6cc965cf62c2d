// Package geometry provides read-only access to the polygon layers in the
// geo.* schema: entity types, geoid validation, geometry and bounding-box
// retrieval, and equal-area projection for area math.
package geometry

import (
	"github.com/rotisserie/eris"
)

// GeoType identifies one of the five polygon entity layers.
type GeoType string

const (
	State  GeoType = "state"
	County GeoType = "county"
	CBSA   GeoType = "cbsa"
	Place  GeoType = "place"
	ZCTA   GeoType = "zcta"
)

// geoTables is an allowlist mapping entity types to their geo.* tables.
// This prevents SQL injection through the type parameter.
var geoTables = map[GeoType]string{
	State:  "geo.states",
	County: "geo.counties",
	CBSA:   "geo.cbsa",
	Place:  "geo.places",
	ZCTA:   "geo.zcta",
}

// geoidLengths is the fixed geoid length per entity type. Geoids are opaque
// strings but their length and charset are fixed by Census convention.
var geoidLengths = map[GeoType]int{
	State:  2,
	County: 5,
	CBSA:   5,
	Place:  7,
	ZCTA:   5,
}

// AllTypes lists the entity types in hierarchy order (broadest first).
var AllTypes = []GeoType{State, CBSA, County, Place, ZCTA}

// ParseGeoType converts a string to a GeoType.
func ParseGeoType(s string) (GeoType, error) {
	t := GeoType(s)
	if _, ok := geoTables[t]; !ok {
		return "", eris.Errorf("geometry: unknown geo type %q", s)
	}
	return t, nil
}

// Table returns the geo.* table for a type. Panics on unknown types, which
// can only be constructed by bypassing ParseGeoType.
func (t GeoType) Table() string {
	table, ok := geoTables[t]
	if !ok {
		panic("geometry: unknown geo type " + string(t))
	}
	return table
}

// ValidateGeoid checks length and charset for a geoid of the given type.
// Malformed ids are rejected, never repaired.
func ValidateGeoid(t GeoType, geoid string) error {
	want, ok := geoidLengths[t]
	if !ok {
		return eris.Errorf("geometry: unknown geo type %q", t)
	}
	if len(geoid) != want {
		return eris.Errorf("geometry: invalid %s geoid %q: want %d characters", t, geoid, want)
	}
	for _, c := range geoid {
		if c < '0' || c > '9' {
			return eris.Errorf("geometry: invalid %s geoid %q: must be numeric", t, geoid)
		}
	}
	return nil
}

// StateOf returns the 2-char state geoid embedded in a county or place
// geoid. County and place geoids carry their state FIPS as a prefix by
// construction, so no spatial computation is needed.
func StateOf(t GeoType, geoid string) (string, error) {
	if t != County && t != Place {
		return "", eris.Errorf("geometry: %s geoids do not embed a state prefix", t)
	}
	if err := ValidateGeoid(t, geoid); err != nil {
		return "", err
	}
	return geoid[:2], nil
}

// BBox is a geographic bounding box in lng/lat order.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Intersects reports whether two boxes overlap (edge contact counts).
func (b BBox) Intersects(o BBox) bool {
	return b.MinLng <= o.MaxLng && o.MinLng <= b.MaxLng &&
		b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat
}
