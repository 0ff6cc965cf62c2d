package geometry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/geo-hierarchy/internal/db"
)

// PostgresStore implements Store against the PostGIS geo.* schema.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ListIDs implements Store.
func (s *PostgresStore) ListIDs(ctx context.Context, t GeoType) ([]string, error) {
	sql := fmt.Sprintf(`SELECT geoid FROM %s ORDER BY geoid`, t.Table())
	return s.scanIDs(ctx, sql)
}

// ListIDsByState implements Store. Counties and places carry a state_fips
// column; CBSAs and ZCTAs cross state lines, so the restriction falls back
// to intersection with the state polygon.
func (s *PostgresStore) ListIDsByState(ctx context.Context, t GeoType, stateFIPS string) ([]string, error) {
	if err := ValidateGeoid(State, stateFIPS); err != nil {
		return nil, err
	}

	switch t {
	case State:
		sql := fmt.Sprintf(`SELECT geoid FROM %s WHERE geoid = $1`, t.Table())
		return s.scanIDs(ctx, sql, stateFIPS)
	case County, Place:
		sql := fmt.Sprintf(`SELECT geoid FROM %s WHERE state_fips = $1 ORDER BY geoid`, t.Table())
		return s.scanIDs(ctx, sql, stateFIPS)
	default:
		sql := fmt.Sprintf(`
			SELECT t.geoid FROM %s t
			JOIN geo.states st ON st.geoid = $1
			WHERE t.geom IS NOT NULL AND ST_Intersects(t.geom, st.geom)
			ORDER BY t.geoid`, t.Table())
		return s.scanIDs(ctx, sql, stateFIPS)
	}
}

func (s *PostgresStore) scanIDs(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: list ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "geometry: scan id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Geometry implements Store.
func (s *PostgresStore) Geometry(ctx context.Context, t GeoType, geoid string) (geom.T, error) {
	if err := ValidateGeoid(t, geoid); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT ST_AsEWKB(geom) FROM %s WHERE geoid = $1 AND geom IS NOT NULL`, t.Table())

	var raw []byte
	err := s.pool.QueryRow(ctx, sql, geoid).Scan(&raw)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "geometry: get %s %s", t, geoid)
	}

	g, err := ewkb.Unmarshal(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: decode EWKB for %s %s", t, geoid)
	}
	return g, nil
}

// BoundingBoxes implements Store.
func (s *PostgresStore) BoundingBoxes(ctx context.Context, t GeoType) ([]IDBox, error) {
	sql := fmt.Sprintf(`
		SELECT geoid, ST_XMin(geom), ST_YMin(geom), ST_XMax(geom), ST_YMax(geom)
		FROM %s WHERE geom IS NOT NULL ORDER BY geoid`, t.Table())

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: bounding boxes for %s", t)
	}
	defer rows.Close()

	var boxes []IDBox
	for rows.Next() {
		var ib IDBox
		if err := rows.Scan(&ib.Geoid, &ib.Box.MinLng, &ib.Box.MinLat, &ib.Box.MaxLng, &ib.Box.MaxLat); err != nil {
			return nil, eris.Wrap(err, "geometry: scan bounding box")
		}
		boxes = append(boxes, ib)
	}
	return boxes, rows.Err()
}

// Areas implements Store.
func (s *PostgresStore) Areas(ctx context.Context, t GeoType) (map[string]float64, error) {
	sql := fmt.Sprintf(`
		SELECT geoid, ST_Area(geom::geography) / 1000000.0
		FROM %s WHERE geom IS NOT NULL`, t.Table())

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: areas for %s", t)
	}
	defer rows.Close()

	areas := make(map[string]float64)
	for rows.Next() {
		var geoid string
		var area float64
		if err := rows.Scan(&geoid, &area); err != nil {
			return nil, eris.Wrap(err, "geometry: scan area")
		}
		areas[geoid] = area
	}
	return areas, rows.Err()
}

// Names implements Store.
func (s *PostgresStore) Names(ctx context.Context, t GeoType) (map[string]string, error) {
	sql := fmt.Sprintf(`SELECT geoid, name FROM %s`, t.Table())

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: names for %s", t)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var geoid, name string
		if err := rows.Scan(&geoid, &name); err != nil {
			return nil, eris.Wrap(err, "geometry: scan name")
		}
		names[geoid] = name
	}
	return names, rows.Err()
}
