package loader

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

func TestIsLoaded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	layer, err := LayerByType(geometry.County)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM geo\.load_status`).
		WithArgs("county", "us", 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	loaded, err := isLoaded(context.Background(), mock, layer, "us", 2024)
	require.NoError(t, err)
	assert.True(t, loaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsLoaded_False(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	layer, err := LayerByType(geometry.Place)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM geo\.load_status`).
		WithArgs("place", "48", 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	loaded, err := isLoaded(context.Background(), mock, layer, "48", 2024)
	require.NoError(t, err)
	assert.False(t, loaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	layer, err := LayerByType(geometry.ZCTA)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO geo\.load_status`).
		WithArgs("zcta", "us", 2024, int64(33791), int64(1200)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = recordLoad(context.Background(), mock, layer, "us", 2024, 33791, 1200*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM geo\.load_status`).
		WillReturnRows(pgxmock.NewRows([]string{
			"layer", "state_fips", "year", "row_count", "loaded_at", "duration_ms",
		}).
			AddRow("county", "us", 2024, 3222, now, 4100).
			AddRow("place", "48", 2024, 1863, now, 2200))

	status, err := Status(context.Background(), mock)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, "county", status[0].Layer)
	assert.Equal(t, 3222, status[0].RowCount)
	assert.Equal(t, "48", status[1].StateFIPS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectLayers(t *testing.T) {
	all, err := selectLayers(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(Layers))

	some, err := selectLayers([]string{"zcta", "county"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, geometry.ZCTA, some[0].Type)
	assert.Equal(t, geometry.County, some[1].Type)

	_, err = selectLayers([]string{"tract"})
	assert.Error(t, err)
}
