package loader

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/db"
	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

// entityDDL builds one entity table. Counties and places carry a state_fips
// column for partitioned runs; the other layers are filtered spatially.
func entityDDL(t geometry.GeoType) string {
	stateCol := ""
	if t == geometry.County || t == geometry.Place {
		stateCol = "state_fips text,"
	}
	extraCol := ""
	if t == geometry.State {
		extraCol = "stusps text,"
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			geoid text PRIMARY KEY,
			%s%s
			name text,
			aland bigint,
			awater bigint,
			geom geometry(MultiPolygon, 4326),
			loaded_at timestamptz NOT NULL DEFAULT now()
		)`, t.Table(), stateCol, extraCol)
}

// Migrate creates the geo schema: entity tables, one edge table per pair
// type, the hierarchy table, and the progress and load ledgers. Idempotent.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "loader.schema"))

	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS geo`,
		`CREATE EXTENSION IF NOT EXISTS postgis`,
	}

	for _, t := range geometry.AllTypes {
		statements = append(statements, entityDDL(t))
		statements = append(statements, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_geom ON %s USING GIST (geom)`,
			string(t), t.Table()))
	}
	statements = append(statements,
		`CREATE INDEX IF NOT EXISTS idx_county_state_fips ON geo.counties (state_fips)`,
		`CREATE INDEX IF NOT EXISTS idx_place_state_fips ON geo.places (state_fips)`,
	)

	for _, pair := range relation.Pairs {
		statements = append(statements, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				child_geoid text NOT NULL,
				parent_geoid text NOT NULL,
				overlap_pct numeric(5,2) NOT NULL,
				overlap_area_km2 double precision NOT NULL,
				is_primary boolean NOT NULL DEFAULT false,
				computed_at timestamptz NOT NULL DEFAULT now(),
				PRIMARY KEY (child_geoid, parent_geoid)
			)`, pair.Table))
		statements = append(statements, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_parent ON %s (parent_geoid)`,
			pair.Name, pair.Table))
		statements = append(statements, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_primary ON %s (child_geoid) WHERE is_primary`,
			pair.Name, pair.Table))
	}

	statements = append(statements, `
		CREATE TABLE IF NOT EXISTS geo.hierarchy (
			geoid text PRIMARY KEY,
			geo_type text NOT NULL,
			name text,
			primary_state text,
			primary_county text,
			primary_place text,
			primary_cbsa text,
			all_states text[],
			all_counties text[],
			all_places text[],
			all_cbsas text[],
			hierarchy_path text[] NOT NULL,
			area_km2 double precision,
			compiled_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hierarchy_type ON geo.hierarchy (geo_type)`,
		`CREATE INDEX IF NOT EXISTS idx_hierarchy_primary_state ON geo.hierarchy (primary_state)`,
		`CREATE INDEX IF NOT EXISTS idx_hierarchy_primary_county ON geo.hierarchy (primary_county)`,
		`CREATE INDEX IF NOT EXISTS idx_hierarchy_primary_cbsa ON geo.hierarchy (primary_cbsa)`,
		`
		CREATE TABLE IF NOT EXISTS geo.relationship_progress (
			pair_type text NOT NULL,
			child_geoid text NOT NULL,
			run_id text NOT NULL,
			completed_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (pair_type, child_geoid)
		)`,
		`
		CREATE TABLE IF NOT EXISTS geo.load_status (
			layer text NOT NULL,
			state_fips text NOT NULL,
			year int NOT NULL,
			row_count int NOT NULL DEFAULT 0,
			loaded_at timestamptz NOT NULL DEFAULT now(),
			duration_ms int,
			PRIMARY KEY (layer, state_fips, year)
		)`,
	)

	for _, sql := range statements {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return eris.Wrap(err, "loader: migrate schema")
		}
	}

	log.Info("schema migrated", zap.Int("statements", len(statements)))
	return nil
}
