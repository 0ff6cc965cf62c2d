package relation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPair(t *testing.T, name string) Pair {
	t.Helper()
	pair, err := PairByName(name)
	require.NoError(t, err)
	return pair
}

func TestUpsertEdges(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pair := mustPair(t, "zcta_county")

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_geo_rel_zcta_county"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(
		pgx.Identifier{"_tmp_upsert_geo_rel_zcta_county"},
		[]string{"child_geoid", "parent_geoid", "overlap_pct", "overlap_area_km2", "is_primary", "computed_at"},
	).WillReturnResult(2)
	// Rows whose domain columns are unchanged keep their computed_at.
	mock.ExpectExec(`INSERT INTO "geo"\."rel_zcta_county" AS t .+ WHERE \(t\."child_geoid", t\."parent_geoid", t\."overlap_pct", t\."overlap_area_km2", t\."is_primary"\) IS DISTINCT FROM`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	store := NewPostgresStore(mock)
	n, err := store.UpsertEdges(context.Background(), pair, []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 80, OverlapAreaKm2: 120.5, IsPrimary: true},
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 20, OverlapAreaKm2: 30.1},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEdges_EmptyBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	n, err := store.UpsertEdges(context.Background(), mustPair(t, "zcta_county"), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertEdges_RejectsUnregisteredPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rogue := Pair{Name: "zcta_county", Table: "public.users; DROP TABLE users"}
	store := NewPostgresStore(mock)
	_, err = store.UpsertEdges(context.Background(), rogue, []Edge{{ChildGeoid: "77001"}})
	assert.Error(t, err)
}

func TestParentsOf(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM geo\.rel_zcta_county WHERE child_geoid = \$1`).
		WithArgs("77001").
		WillReturnRows(pgxmock.NewRows(
			[]string{"child_geoid", "parent_geoid", "overlap_pct", "overlap_area_km2", "is_primary", "computed_at"}).
			AddRow("77001", "48201", 80.0, 120.5, true, now).
			AddRow("77001", "48339", 20.0, 30.1, false, now))

	store := NewPostgresStore(mock)
	edges, err := store.ParentsOf(context.Background(), mustPair(t, "zcta_county"), "77001")

	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.True(t, edges[0].IsPrimary)
	assert.Equal(t, "48201", edges[0].ParentGeoid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletedChildren(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT child_geoid FROM geo\.relationship_progress WHERE pair_type = \$1`).
		WithArgs("zcta_county").
		WillReturnRows(pgxmock.NewRows([]string{"child_geoid"}).AddRow("77001").AddRow("77002"))

	store := NewPostgresStore(mock)
	done, err := store.CompletedChildren(context.Background(), mustPair(t, "zcta_county"))

	require.NoError(t, err)
	assert.True(t, done["77001"])
	assert.True(t, done["77002"])
	assert.False(t, done["77003"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM geo\.rel_zcta_county`).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))
	mock.ExpectExec(`DELETE FROM geo\.relationship_progress WHERE pair_type = \$1`).
		WithArgs("zcta_county").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCommit()

	store := NewPostgresStore(mock)
	err = store.ClearPair(context.Background(), mustPair(t, "zcta_county"))

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeriveCountyState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO geo\.rel_county_state`).
		WillReturnResult(pgxmock.NewResult("INSERT", 3144))

	store := NewPostgresStore(mock)
	n, err := store.DeriveCountyState(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, int64(3144), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeriveCountyState_Partitioned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`WHERE c\.state_fips = \$1`).
		WithArgs("48").
		WillReturnResult(pgxmock.NewResult("INSERT", 254))

	store := NewPostgresStore(mock)
	n, err := store.DeriveCountyState(context.Background(), "48")

	require.NoError(t, err)
	assert.Equal(t, int64(254), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPairRegistry(t *testing.T) {
	assert.Len(t, Pairs, 6)
	assert.Len(t, SpatialPairs(), 5)

	structural := 0
	for _, p := range Pairs {
		if p.Structural {
			structural++
			assert.Equal(t, "county_state", p.Name)
		}
	}
	assert.Equal(t, 1, structural)

	_, err := PairByName("zcta_state")
	assert.Error(t, err)
}
