// Package loader ingests Census TIGER/Line polygon layers into the geo.*
// entity tables: download, shapefile parse, EWKB encode, bulk upsert.
package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

// Layer describes one TIGER/Line polygon product and how its DBF attributes
// map onto the target table. Fields align index-for-index with Columns; the
// EWKB geometry column is appended last.
type Layer struct {
	Type     geometry.GeoType
	Product  string // TIGER directory name, e.g. "CBSA"
	Archive  string // archive stem, e.g. "cbsa" in tl_2024_us_cbsa.zip
	National bool   // one national file vs one file per state
	Fields   []string
	Columns  []string
}

// Layers is the fixed ingestion set. Only PLACE ships per-state; ZCTA
// attribute names carry the vintage suffix.
var Layers = []Layer{
	{
		Type: geometry.State, Product: "STATE", Archive: "state", National: true,
		Fields:  []string{"GEOID", "STUSPS", "NAME", "ALAND", "AWATER"},
		Columns: []string{"geoid", "stusps", "name", "aland", "awater"},
	},
	{
		Type: geometry.County, Product: "COUNTY", Archive: "county", National: true,
		Fields:  []string{"GEOID", "STATEFP", "NAMELSAD", "ALAND", "AWATER"},
		Columns: []string{"geoid", "state_fips", "name", "aland", "awater"},
	},
	{
		Type: geometry.CBSA, Product: "CBSA", Archive: "cbsa", National: true,
		Fields:  []string{"GEOID", "NAME", "ALAND", "AWATER"},
		Columns: []string{"geoid", "name", "aland", "awater"},
	},
	{
		Type: geometry.Place, Product: "PLACE", Archive: "place", National: false,
		Fields:  []string{"GEOID", "STATEFP", "NAME", "ALAND", "AWATER"},
		Columns: []string{"geoid", "state_fips", "name", "aland", "awater"},
	},
	{
		// ZCTAs have no name attribute; the geoid doubles as the name.
		Type: geometry.ZCTA, Product: "ZCTA520", Archive: "zcta520", National: true,
		Fields:  []string{"GEOID20", "GEOID20", "ALAND20", "AWATER20"},
		Columns: []string{"geoid", "name", "aland", "awater"},
	},
}

// LayerByType looks up the layer for an entity type.
func LayerByType(t geometry.GeoType) (Layer, error) {
	for _, l := range Layers {
		if l.Type == t {
			return l, nil
		}
	}
	return Layer{}, eris.Errorf("loader: no layer for type %q", t)
}

// DownloadURL builds the Census Bureau URL for a layer's archive. National
// layers use the "us" slot; per-state layers take the state FIPS code.
func DownloadURL(layer Layer, year int, stateFIPS string) string {
	slot := "us"
	if !layer.National {
		slot = stateFIPS
	}
	return fmt.Sprintf("https://www2.census.gov/geo/tiger/TIGER%d/%s/tl_%d_%s_%s.zip",
		year, layer.Product, year, slot, layer.Archive)
}

// StateFIPS maps state abbreviation to 2-digit FIPS code (50 states + DC).
var StateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// AllStateFIPS returns every state FIPS code, sorted.
func AllStateFIPS() []string {
	codes := make([]string, 0, len(StateFIPS))
	for _, fips := range StateFIPS {
		codes = append(codes, fips)
	}
	sort.Strings(codes)
	return codes
}

// ResolveStates converts state abbreviations to FIPS codes, defaulting to
// every state when none are given.
func ResolveStates(abbrs []string) ([]string, error) {
	if len(abbrs) == 0 {
		return AllStateFIPS(), nil
	}
	codes := make([]string, 0, len(abbrs))
	for _, abbr := range abbrs {
		fips, ok := StateFIPS[strings.ToUpper(abbr)]
		if !ok {
			return nil, eris.Errorf("loader: unknown state %q", abbr)
		}
		codes = append(codes, fips)
	}
	sort.Strings(codes)
	return codes, nil
}
