// Package overlap computes exact polygon intersection areas and overlap
// percentages. It is pure compute: no I/O, trivially parallel across pairs.
// Each worker owns its own Calculator because GEOS contexts are not
// goroutine-safe.
package overlap

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
)

// Result is a true (non-empty) intersection between a child and a parent.
type Result struct {
	AreaKm2 float64 // intersection area
	Pct     float64 // 100 * intersection / child area, two decimals
}

// DegenerateGeometryError marks a geometry whose area is zero (or whose
// math degenerated to NaN/Inf). Affected entities are skipped and counted;
// the batch continues.
type DegenerateGeometryError struct {
	Geoid string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("overlap: degenerate geometry for %s", e.Geoid)
}

// ErrInvalidGeometry marks a geometry that failed validity checks and could
// not be trivially repaired. Affected pairs are logged and excluded.
var ErrInvalidGeometry = eris.New("overlap: invalid geometry")

// Calculator wraps a GEOS context plus a cache of parsed parent geometries.
// Not safe for concurrent use; create one per worker.
type Calculator struct {
	ctx     *geos.Context
	parents map[string]*geos.Geom
}

// NewCalculator creates a Calculator with its own GEOS context.
func NewCalculator() *Calculator {
	return &Calculator{
		ctx:     geos.NewContext(),
		parents: make(map[string]*geos.Geom),
	}
}

// Close releases all cached parent geometries.
func (c *Calculator) Close() {
	for _, g := range c.parents {
		g.Destroy()
	}
	c.parents = make(map[string]*geos.Geom)
}

// Child is a parsed, validated child geometry in the equal-area grid.
type Child struct {
	Geoid string
	geom  *geos.Geom
	area  float64 // m²
}

// AreaKm2 returns the child's own area.
func (ch *Child) AreaKm2() float64 { return ch.area / 1e6 }

// Destroy releases the child geometry. Call once all its pairs are done.
func (ch *Child) Destroy() {
	if ch.geom != nil {
		ch.geom.Destroy()
		ch.geom = nil
	}
}

// NewChild parses equal-area WKB into a validated child geometry. A
// zero-area child returns DegenerateGeometryError; an unrepairable one
// returns ErrInvalidGeometry.
func (c *Calculator) NewChild(geoid string, wkb []byte) (ch *Child, err error) {
	defer recoverGEOS(&err)

	g, err := c.parse(geoid, wkb)
	if err != nil {
		return nil, err
	}

	area := g.Area()
	if degenerateArea(area) {
		g.Destroy()
		return nil, &DegenerateGeometryError{Geoid: geoid}
	}

	return &Child{Geoid: geoid, geom: g, area: area}, nil
}

// Overlap computes the intersection between a parsed child and a parent
// given as equal-area WKB. Returns (nil, nil) when the pair does not truly
// intersect or the intersection area is zero — bbox overlap upstream can
// yield false positives.
func (c *Calculator) Overlap(ch *Child, parentGeoid string, parentWKB []byte) (res *Result, err error) {
	defer recoverGEOS(&err)

	parent, err := c.parent(parentGeoid, parentWKB)
	if err != nil {
		return nil, err
	}

	if !ch.geom.Intersects(parent) {
		return nil, nil
	}

	inter := ch.geom.Intersection(parent)
	if inter == nil {
		return nil, nil
	}
	defer inter.Destroy()

	area := inter.Area()
	if area == 0 {
		return nil, nil
	}
	if degenerateArea(area) {
		return nil, &DegenerateGeometryError{Geoid: ch.Geoid}
	}

	pct := math.Round(100*area/ch.area*100) / 100
	if degenerateArea(pct) {
		return nil, &DegenerateGeometryError{Geoid: ch.Geoid}
	}
	if pct <= 0 {
		// Sliver intersection rounding to 0.00: treat as no overlap.
		return nil, nil
	}
	if pct > 100 {
		// Topology noise can push the ratio past 100; the percentage is
		// defined on (0, 100].
		pct = 100
	}

	return &Result{AreaKm2: area / 1e6, Pct: pct}, nil
}

// parent returns the cached parent geometry, parsing and validating on
// first use.
func (c *Calculator) parent(geoid string, wkb []byte) (*geos.Geom, error) {
	if g, ok := c.parents[geoid]; ok {
		return g, nil
	}

	g, err := c.parse(geoid, wkb)
	if err != nil {
		return nil, err
	}
	c.parents[geoid] = g
	return g, nil
}

// parse decodes WKB and applies the repair-or-flag validity policy: one
// MakeValid attempt, then exclusion.
func (c *Calculator) parse(geoid string, wkb []byte) (*geos.Geom, error) {
	g, err := c.ctx.NewGeomFromWKB(wkb)
	if err != nil {
		return nil, eris.Wrapf(err, "overlap: parse WKB for %s", geoid)
	}

	if g.IsValid() {
		return g, nil
	}

	repaired := g.MakeValid()
	g.Destroy()
	if repaired == nil || !repaired.IsValid() {
		if repaired != nil {
			repaired.Destroy()
		}
		zap.L().Warn("overlap: excluding unrepairable geometry", zap.String("geoid", geoid))
		return nil, eris.Wrapf(ErrInvalidGeometry, "geoid %s", geoid)
	}

	zap.L().Debug("overlap: repaired invalid geometry", zap.String("geoid", geoid))
	return repaired, nil
}

func degenerateArea(v float64) bool {
	return v == 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

// recoverGEOS converts a GEOS panic into a per-pair error so a single bad
// geometry cannot take down the batch.
func recoverGEOS(err *error) {
	if r := recover(); r != nil {
		*err = eris.Errorf("overlap: geos fault: %v", r)
	}
}
