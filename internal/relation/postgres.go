package relation

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-hierarchy/internal/db"
)

// progressTable records which children are fully written per pair type.
const progressTable = "geo.relationship_progress"

var edgeColumns = []string{"child_geoid", "parent_geoid", "overlap_pct", "overlap_area_km2", "is_primary", "computed_at"}

// PostgresStore implements Store against the geo.rel_* tables.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// validPair guards generic SQL against table names that did not come from
// the pair registry.
func validPair(pair Pair) error {
	for _, p := range Pairs {
		if p.Name == pair.Name && p.Table == pair.Table {
			return nil
		}
	}
	return eris.Errorf("relation: pair %q is not registered", pair.Name)
}

// UpsertEdges implements Store.
func (s *PostgresStore) UpsertEdges(ctx context.Context, pair Pair, edges []Edge) (int64, error) {
	if err := validPair(pair); err != nil {
		return 0, err
	}
	if len(edges) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(edges))
	for i, e := range edges {
		rows[i] = []any{e.ChildGeoid, e.ParentGeoid, e.OverlapPct, e.OverlapAreaKm2, e.IsPrimary, now}
	}

	// computed_at stays out of the comparison: an edge whose domain columns
	// are unchanged keeps its original timestamp on rerun.
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        pair.Table,
		Columns:      edgeColumns,
		ConflictKeys: []string{"child_geoid", "parent_geoid"},
		CompareCols:  edgeColumns[:len(edgeColumns)-1],
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "relation: upsert edges for %s", pair.Name)
	}
	return n, nil
}

// ParentsOf implements Store.
func (s *PostgresStore) ParentsOf(ctx context.Context, pair Pair, childGeoid string) ([]Edge, error) {
	if err := validPair(pair); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT child_geoid, parent_geoid, overlap_pct, overlap_area_km2, is_primary, computed_at
		FROM %s WHERE child_geoid = $1
		ORDER BY is_primary DESC, overlap_pct DESC, parent_geoid`, pair.Table)
	return s.scanEdges(ctx, pair, sql, childGeoid)
}

// ChildrenOf implements Store.
func (s *PostgresStore) ChildrenOf(ctx context.Context, pair Pair, parentGeoid string) ([]Edge, error) {
	if err := validPair(pair); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT child_geoid, parent_geoid, overlap_pct, overlap_area_km2, is_primary, computed_at
		FROM %s WHERE parent_geoid = $1
		ORDER BY is_primary DESC, overlap_pct DESC, child_geoid`, pair.Table)
	return s.scanEdges(ctx, pair, sql, parentGeoid)
}

// AllEdges implements Store.
func (s *PostgresStore) AllEdges(ctx context.Context, pair Pair) ([]Edge, error) {
	if err := validPair(pair); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT child_geoid, parent_geoid, overlap_pct, overlap_area_km2, is_primary, computed_at
		FROM %s ORDER BY child_geoid, overlap_pct DESC, parent_geoid`, pair.Table)
	return s.scanEdges(ctx, pair, sql)
}

func (s *PostgresStore) scanEdges(ctx context.Context, pair Pair, sql string, args ...any) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "relation: query edges for %s", pair.Name)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ChildGeoid, &e.ParentGeoid, &e.OverlapPct, &e.OverlapAreaKm2, &e.IsPrimary, &e.ComputedAt); err != nil {
			return nil, eris.Wrapf(err, "relation: scan edge for %s", pair.Name)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// CompletedChildren implements Store.
func (s *PostgresStore) CompletedChildren(ctx context.Context, pair Pair) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT child_geoid FROM %s WHERE pair_type = $1`, progressTable), pair.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "relation: query progress for %s", pair.Name)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, eris.Wrap(err, "relation: scan progress row")
		}
		done[child] = true
	}
	return done, rows.Err()
}

// MarkCompleted implements Store.
func (s *PostgresStore) MarkCompleted(ctx context.Context, pair Pair, runID string, children []string) error {
	if len(children) == 0 {
		return nil
	}

	rows := make([][]any, len(children))
	for i, child := range children {
		rows[i] = []any{pair.Name, child, runID}
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        progressTable,
		Columns:      []string{"pair_type", "child_geoid", "run_id"},
		ConflictKeys: []string{"pair_type", "child_geoid"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "relation: mark completed for %s", pair.Name)
	}
	return nil
}

// ClearPair implements Store.
func (s *PostgresStore) ClearPair(ctx context.Context, pair Pair) error {
	if err := validPair(pair); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "relation: begin clear tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, pair.Table)); err != nil {
		return eris.Wrapf(err, "relation: clear edges for %s", pair.Name)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE pair_type = $1`, progressTable), pair.Name); err != nil {
		return eris.Wrapf(err, "relation: clear progress for %s", pair.Name)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "relation: commit clear tx")
	}
	return nil
}

// DeriveCountyState implements Store. A county geoid embeds its state geoid
// as a 2-char prefix, so the county→state table is populated directly in
// SQL with no overlap computation.
func (s *PostgresStore) DeriveCountyState(ctx context.Context, stateFIPS string) (int64, error) {
	sql := `
		INSERT INTO geo.rel_county_state (child_geoid, parent_geoid, overlap_pct, overlap_area_km2, is_primary)
		SELECT c.geoid, left(c.geoid, 2), 100.00,
		       COALESCE(ST_Area(c.geom::geography) / 1000000.0, 0), true
		FROM geo.counties c
	`
	args := []any{}
	if stateFIPS != "" {
		sql += ` WHERE c.state_fips = $1`
		args = append(args, stateFIPS)
	}
	sql += `
		ON CONFLICT (child_geoid, parent_geoid) DO UPDATE SET
			overlap_pct = EXCLUDED.overlap_pct,
			overlap_area_km2 = EXCLUDED.overlap_area_km2,
			is_primary = EXCLUDED.is_primary,
			computed_at = now()`

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, eris.Wrap(err, "relation: derive county state")
	}
	return tag.RowsAffected(), nil
}
