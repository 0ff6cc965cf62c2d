package geometry

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrNotFound is returned when an entity has no row or no geometry.
var ErrNotFound = eris.New("geometry: not found")

// IDBox pairs a geoid with its bounding box.
type IDBox struct {
	Geoid string
	Box   BBox
}

// Store is the read-only geometry access surface the engine consumes.
// Implementations must be safe for concurrent readers: the geo.* entity
// tables are never written during a relationship run.
type Store interface {
	// ListIDs returns all geoids of a type, including entities whose
	// geometry is missing (callers skip those with a warning).
	ListIDs(ctx context.Context, t GeoType) ([]string, error)

	// ListIDsByState restricts ListIDs to one state partition. For types
	// without an embedded state (CBSA, ZCTA) the restriction is spatial.
	ListIDsByState(ctx context.Context, t GeoType, stateFIPS string) ([]string, error)

	// Geometry returns the polygon or multipolygon for an entity in
	// EPSG:4326. Returns ErrNotFound when the entity or its geometry is
	// absent.
	Geometry(ctx context.Context, t GeoType, geoid string) (geom.T, error)

	// BoundingBoxes returns the bounding box of every entity of a type
	// that has geometry.
	BoundingBoxes(ctx context.Context, t GeoType) ([]IDBox, error)

	// Names returns the human-readable name per geoid for a type.
	Names(ctx context.Context, t GeoType) (map[string]string, error)

	// Areas returns the geodesic area in km² per geoid for a type,
	// covering only entities with geometry.
	Areas(ctx context.Context, t GeoType) (map[string]float64, error)
}
