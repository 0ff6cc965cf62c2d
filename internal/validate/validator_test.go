package validate

import (
	"bytes"
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geo-hierarchy/internal/relation"
)

func TestNew_DefaultsToleranceBand(t *testing.T) {
	v := New(nil, 0, 0)
	assert.Equal(t, 95.0, v.SumLow)
	assert.Equal(t, 105.0, v.SumHigh)

	v = New(nil, 90, 110)
	assert.Equal(t, 90.0, v.SumLow)
	assert.Equal(t, 110.0, v.SumHigh)
}

func TestCheckDuplicatePrimaries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// One query per registered pair, in registry order. The first pair
	// reports a violation; the rest are clean.
	for i, pair := range relation.Pairs {
		rows := pgxmock.NewRows([]string{"child_geoid", "count"})
		if i == 0 {
			rows.AddRow("77001", 2)
		}
		mock.ExpectQuery(`FROM ` + pair.Table + ` WHERE is_primary`).
			WillReturnRows(rows)
	}

	v := New(mock, 95, 105)
	findings, err := v.checkDuplicatePrimaries(context.Background())

	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "duplicate_primary", findings[0].Check)
	assert.Equal(t, SeverityError, findings[0].Severity)
	assert.Equal(t, "zcta_county", findings[0].Pair)
	assert.Equal(t, "77001", findings[0].Geoid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckWeakPrimaries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i, pair := range relation.Pairs {
		rows := pgxmock.NewRows([]string{"child_geoid", "parent_geoid", "overlap_pct"})
		if i == 0 {
			rows.AddRow("77001", "48201", 42.5)
		}
		mock.ExpectQuery(`FROM ` + pair.Table + ` WHERE is_primary AND overlap_pct <= 50`).
			WillReturnRows(rows)
	}

	v := New(mock, 95, 105)
	findings, err := v.checkWeakPrimaries(context.Background())

	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "weak_primary", findings[0].Check)
	assert.Contains(t, findings[0].Detail, "48201")
	assert.Contains(t, findings[0].Detail, "42.50")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckOverlapSums_SpatialPairsOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// Structural pairs always sum to exactly 100 and are never queried.
	spatial := relation.SpatialPairs()
	for i, pair := range spatial {
		rows := pgxmock.NewRows([]string{"child_geoid", "sum"})
		if i == 0 {
			rows.AddRow("77001", 88.4)
		}
		mock.ExpectQuery(`FROM `+pair.Table+` GROUP BY child_geoid`).
			WithArgs(95.0, 105.0).
			WillReturnRows(rows)
	}

	v := New(mock, 95, 105)
	findings, err := v.checkOverlapSums(context.Background())

	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "overlap_sum", findings[0].Check)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Contains(t, findings[0].Detail, "88.40")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckOrphanZCTAs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`LEFT JOIN geo\.rel_zcta_county`).
		WillReturnRows(pgxmock.NewRows([]string{"geoid"}).AddRow("96898"))

	v := New(mock, 95, 105)
	findings, err := v.checkOrphanZCTAs(context.Background())

	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "zcta_no_county", findings[0].Check)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, "96898", findings[0].Geoid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckPrimaryAgreement(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i, pair := range relation.Pairs {
		rows := pgxmock.NewRows([]string{"child_geoid", "parent_geoid", "hier"})
		if i == 0 {
			rows.AddRow("77001", "48201", "48339")
		}
		mock.ExpectQuery(`(?s)FROM `+pair.Table+` r\s+JOIN geo\.hierarchy h.+IS DISTINCT FROM r\.parent_geoid`).
			WithArgs(string(pair.Child)).
			WillReturnRows(rows)
	}

	v := New(mock, 95, 105)
	findings, err := v.checkPrimaryAgreement(context.Background())

	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "primary_mismatch", findings[0].Check)
	assert.Equal(t, SeverityError, findings[0].Severity)
	assert.Contains(t, findings[0].Detail, "48201")
	assert.Contains(t, findings[0].Detail, "48339")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportTally(t *testing.T) {
	report := NewReport([]Finding{
		{Check: "duplicate_primary", Severity: SeverityError},
		{Check: "overlap_sum", Severity: SeverityWarning},
		{Check: "overlap_sum", Severity: SeverityWarning},
	})

	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 2, report.Warnings)
	assert.Len(t, report.Findings, 3)
	assert.False(t, report.RanAt.IsZero())
}

func TestReportWriteYAML(t *testing.T) {
	report := NewReport([]Finding{
		{Check: "weak_primary", Severity: SeverityError, Pair: "zcta_county", Geoid: "77001", Detail: "overlap 42.50%"},
	})

	var buf bytes.Buffer
	require.NoError(t, report.WriteYAML(&buf))

	out := buf.String()
	assert.Contains(t, out, "errors: 1")
	assert.Contains(t, out, "check: weak_primary")
	assert.Contains(t, out, "geoid: \"77001\"")
}
