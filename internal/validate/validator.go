package validate

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/db"
	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

// hierarchyPrimaryCol maps a pair's parent level to the geo.hierarchy column
// that should agree with the pair's is_primary edge.
var hierarchyPrimaryCol = map[geometry.GeoType]string{
	geometry.State:  "primary_state",
	geometry.County: "primary_county",
	geometry.Place:  "primary_place",
	geometry.CBSA:   "primary_cbsa",
}

// Validator runs the consistency battery. Read-only; safe against partial
// state mid-pipeline.
type Validator struct {
	pool db.Pool

	// Tolerance band for the per-child overlap sum check.
	SumLow  float64
	SumHigh float64
}

// New creates a Validator with the given overlap-sum tolerance band.
func New(pool db.Pool, sumLow, sumHigh float64) *Validator {
	if sumLow <= 0 {
		sumLow = 95
	}
	if sumHigh <= 0 {
		sumHigh = 105
	}
	return &Validator{pool: pool, SumLow: sumLow, SumHigh: sumHigh}
}

// Run executes every check and returns the combined report. Findings never
// fail the run; only query errors do.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "validate"))

	var findings []Finding
	checks := []func(context.Context) ([]Finding, error){
		v.checkDuplicatePrimaries,
		v.checkWeakPrimaries,
		v.checkPercentRange,
		v.checkOverlapSums,
		v.checkOrphanZCTAs,
		v.checkMissingHierarchy,
		v.checkPrimaryAgreement,
	}
	for _, check := range checks {
		fs, err := check(ctx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, fs...)
	}

	report := NewReport(findings)
	log.Info("validation complete",
		zap.Int("errors", report.Errors),
		zap.Int("warnings", report.Warnings),
	)
	return report, nil
}

// checkDuplicatePrimaries finds children with more than one primary parent
// in the same pair table.
func (v *Validator) checkDuplicatePrimaries(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, pair := range relation.Pairs {
		sql := fmt.Sprintf(`
			SELECT child_geoid, count(*)
			FROM %s WHERE is_primary
			GROUP BY child_geoid HAVING count(*) > 1
			ORDER BY child_geoid`, pair.Table)

		rows, err := v.pool.Query(ctx, sql)
		if err != nil {
			return nil, eris.Wrapf(err, "validate: duplicate primaries for %s", pair.Name)
		}
		for rows.Next() {
			var geoid string
			var n int
			if err := rows.Scan(&geoid, &n); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "validate: scan duplicate primary row")
			}
			findings = append(findings, Finding{
				Check:    "duplicate_primary",
				Severity: SeverityError,
				Pair:     pair.Name,
				GeoType:  string(pair.Child),
				Geoid:    geoid,
				Detail:   fmt.Sprintf("%d primary parents, expected at most 1", n),
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return findings, nil
}

// checkWeakPrimaries finds primary edges whose overlap does not clear the
// majority threshold.
func (v *Validator) checkWeakPrimaries(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, pair := range relation.Pairs {
		sql := fmt.Sprintf(`
			SELECT child_geoid, parent_geoid, overlap_pct
			FROM %s WHERE is_primary AND overlap_pct <= 50
			ORDER BY child_geoid`, pair.Table)

		fs, err := v.scanEdgeFindings(ctx, sql, pair, "weak_primary", SeverityError,
			"primary parent %s with overlap %.2f%%, expected > 50%%")
		if err != nil {
			return nil, err
		}
		findings = append(findings, fs...)
	}
	return findings, nil
}

// checkPercentRange finds overlap percentages outside (0, 100].
func (v *Validator) checkPercentRange(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, pair := range relation.Pairs {
		sql := fmt.Sprintf(`
			SELECT child_geoid, parent_geoid, overlap_pct
			FROM %s WHERE overlap_pct <= 0 OR overlap_pct > 100
			ORDER BY child_geoid`, pair.Table)

		fs, err := v.scanEdgeFindings(ctx, sql, pair, "pct_out_of_range", SeverityError,
			"parent %s overlap %.2f%% outside (0, 100]")
		if err != nil {
			return nil, err
		}
		findings = append(findings, fs...)
	}
	return findings, nil
}

// scanEdgeFindings runs a (child, parent, pct) query and formats each row
// into a finding. The detail format takes the parent geoid and percentage.
func (v *Validator) scanEdgeFindings(ctx context.Context, sql string, pair relation.Pair, check string, sev Severity, detailFmt string) ([]Finding, error) {
	rows, err := v.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: %s for %s", check, pair.Name)
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var child, parent string
		var pct float64
		if err := rows.Scan(&child, &parent, &pct); err != nil {
			return nil, eris.Wrapf(err, "validate: scan %s row", check)
		}
		findings = append(findings, Finding{
			Check:    check,
			Severity: sev,
			Pair:     pair.Name,
			GeoType:  string(pair.Child),
			Geoid:    child,
			Detail:   fmt.Sprintf(detailFmt, parent, pct),
		})
	}
	return findings, rows.Err()
}

// checkOverlapSums flags children whose overlap percentages sum outside the
// tolerance band. Slivers, coastline clipping, and rounding keep real sums
// off 100, so this stays a warning. Structural pairs always sum to exactly
// 100 and are skipped.
func (v *Validator) checkOverlapSums(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, pair := range relation.SpatialPairs() {
		sql := fmt.Sprintf(`
			SELECT child_geoid, sum(overlap_pct)
			FROM %s GROUP BY child_geoid
			HAVING sum(overlap_pct) < $1 OR sum(overlap_pct) > $2
			ORDER BY child_geoid`, pair.Table)

		rows, err := v.pool.Query(ctx, sql, v.SumLow, v.SumHigh)
		if err != nil {
			return nil, eris.Wrapf(err, "validate: overlap sums for %s", pair.Name)
		}
		for rows.Next() {
			var geoid string
			var sum float64
			if err := rows.Scan(&geoid, &sum); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "validate: scan overlap sum row")
			}
			findings = append(findings, Finding{
				Check:    "overlap_sum",
				Severity: SeverityWarning,
				Pair:     pair.Name,
				GeoType:  string(pair.Child),
				Geoid:    geoid,
				Detail:   fmt.Sprintf("overlap sum %.2f%% outside [%.0f, %.0f]", sum, v.SumLow, v.SumHigh),
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return findings, nil
}

// checkOrphanZCTAs finds ZCTAs that have geometry but never landed a county
// edge. Usually water-only or offshore ZCTAs; occasionally a missed batch.
func (v *Validator) checkOrphanZCTAs(ctx context.Context) ([]Finding, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT z.geoid FROM geo.zcta z
		LEFT JOIN geo.rel_zcta_county r ON r.child_geoid = z.geoid
		WHERE z.geom IS NOT NULL AND r.child_geoid IS NULL
		ORDER BY z.geoid`)
	if err != nil {
		return nil, eris.Wrap(err, "validate: orphan zctas")
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var geoid string
		if err := rows.Scan(&geoid); err != nil {
			return nil, eris.Wrap(err, "validate: scan orphan zcta row")
		}
		findings = append(findings, Finding{
			Check:    "zcta_no_county",
			Severity: SeverityWarning,
			Pair:     "zcta_county",
			GeoType:  string(geometry.ZCTA),
			Geoid:    geoid,
			Detail:   "zcta has geometry but no county relationship",
		})
	}
	return findings, rows.Err()
}

// checkMissingHierarchy finds entities with geometry but no compiled record.
func (v *Validator) checkMissingHierarchy(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, t := range geometry.AllTypes {
		sql := fmt.Sprintf(`
			SELECT e.geoid FROM %s e
			LEFT JOIN geo.hierarchy h ON h.geoid = e.geoid
			WHERE e.geom IS NOT NULL AND h.geoid IS NULL
			ORDER BY e.geoid`, t.Table())

		rows, err := v.pool.Query(ctx, sql)
		if err != nil {
			return nil, eris.Wrapf(err, "validate: missing hierarchy for %s", t)
		}
		for rows.Next() {
			var geoid string
			if err := rows.Scan(&geoid); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "validate: scan missing hierarchy row")
			}
			findings = append(findings, Finding{
				Check:    "missing_hierarchy",
				Severity: SeverityWarning,
				GeoType:  string(t),
				Geoid:    geoid,
				Detail:   "entity has geometry but no hierarchy record",
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return findings, nil
}

// checkPrimaryAgreement finds hierarchy records whose stored primary
// disagrees with the is_primary edge in the source pair table.
func (v *Validator) checkPrimaryAgreement(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, pair := range relation.Pairs {
		col, ok := hierarchyPrimaryCol[pair.Parent]
		if !ok {
			continue
		}
		// IS DISTINCT FROM also flags records whose primary is NULL while a
		// primary edge exists.
		sql := fmt.Sprintf(`
			SELECT r.child_geoid, r.parent_geoid, COALESCE(h.%s, '')
			FROM %s r
			JOIN geo.hierarchy h ON h.geoid = r.child_geoid AND h.geo_type = $1
			WHERE r.is_primary AND h.%s IS DISTINCT FROM r.parent_geoid
			ORDER BY r.child_geoid`, col, pair.Table, col)

		rows, err := v.pool.Query(ctx, sql, string(pair.Child))
		if err != nil {
			return nil, eris.Wrapf(err, "validate: primary agreement for %s", pair.Name)
		}
		for rows.Next() {
			var child, edgeParent, hierParent string
			if err := rows.Scan(&child, &edgeParent, &hierParent); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "validate: scan primary agreement row")
			}
			findings = append(findings, Finding{
				Check:    "primary_mismatch",
				Severity: SeverityError,
				Pair:     pair.Name,
				GeoType:  string(pair.Child),
				Geoid:    child,
				Detail:   fmt.Sprintf("edge primary %s but hierarchy %s=%q", edgeParent, col, hierParent),
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return findings, nil
}
