package hierarchy

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-hierarchy/internal/db"
	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

const hierarchyTable = "geo.hierarchy"

var hierarchyColumns = []string{
	"geoid", "geo_type", "name",
	"primary_state", "primary_county", "primary_place", "primary_cbsa",
	"all_states", "all_counties", "all_places", "all_cbsas",
	"hierarchy_path", "area_km2", "compiled_at",
}

// primaryColumn maps an ancestor type to its primary_* column. Keeping the
// column names behind this map means caller input never reaches the SQL text.
var primaryColumn = map[geometry.GeoType]string{
	geometry.State:  "primary_state",
	geometry.County: "primary_county",
	geometry.Place:  "primary_place",
	geometry.CBSA:   "primary_cbsa",
}

// PostgresStore implements Store against geo.hierarchy.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// UpsertRecords implements Store.
func (s *PostgresStore) UpsertRecords(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.Geoid, string(r.GeoType), r.Name,
			nullIfEmpty(r.PrimaryState), nullIfEmpty(r.PrimaryCounty),
			nullIfEmpty(r.PrimaryPlace), nullIfEmpty(r.PrimaryCBSA),
			r.AllStates, r.AllCounties, r.AllPlaces, r.AllCBSAs,
			r.Path, r.AreaKm2, now,
		}
	}

	// compiled_at stays out of the comparison: a record whose domain columns
	// are unchanged keeps its original timestamp on rerun.
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        hierarchyTable,
		Columns:      hierarchyColumns,
		ConflictKeys: []string{"geoid"},
		CompareCols:  hierarchyColumns[:len(hierarchyColumns)-1],
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "hierarchy: upsert records")
	}
	return n, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, geoid string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT geoid, geo_type, name,
		       COALESCE(primary_state, ''), COALESCE(primary_county, ''),
		       COALESCE(primary_place, ''), COALESCE(primary_cbsa, ''),
		       all_states, all_counties, all_places, all_cbsas,
		       hierarchy_path, area_km2, compiled_at
		FROM geo.hierarchy WHERE geoid = $1`, geoid)

	var r Record
	var geoType string
	err := row.Scan(&r.Geoid, &geoType, &r.Name,
		&r.PrimaryState, &r.PrimaryCounty, &r.PrimaryPlace, &r.PrimaryCBSA,
		&r.AllStates, &r.AllCounties, &r.AllPlaces, &r.AllCBSAs,
		&r.Path, &r.AreaKm2, &r.CompiledAt)
	if err == pgx.ErrNoRows {
		return nil, geometry.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: get record %s", geoid)
	}
	r.GeoType = geometry.GeoType(geoType)
	return &r, nil
}

// ChildrenByPrimary implements Store.
func (s *PostgresStore) ChildrenByPrimary(ctx context.Context, childType, parentType geometry.GeoType, parentGeoid string) ([]string, error) {
	col, ok := primaryColumn[parentType]
	if !ok {
		return nil, eris.Errorf("hierarchy: type %q is never an ancestor", parentType)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT geoid FROM geo.hierarchy
		WHERE geo_type = $1 AND %s = $2
		ORDER BY geoid`, col), string(childType), parentGeoid)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: query children of %s", parentGeoid)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "hierarchy: scan child geoid")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// nullIfEmpty maps an absent primary to SQL NULL. Primaries are optional;
// empty strings never reach the table.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM geo.hierarchy`); err != nil {
		return eris.Wrap(err, "hierarchy: clear records")
	}
	return nil
}
