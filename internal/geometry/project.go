package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Entity layers are stored in EPSG:4326; percentages over raw degrees are
// not physically meaningful, so geometries are reprojected onto a CONUS
// Albers equal-area grid (EPSG:5070 parameters, authalic sphere) before any
// area or intersection math. Output coordinates are in meters.
const (
	authalicRadius = 6371007.181

	albersLat1 = 29.5  // first standard parallel
	albersLat2 = 45.5  // second standard parallel
	albersLat0 = 23.0  // latitude of origin
	albersLon0 = -96.0 // central meridian
)

type albers struct {
	n, c, rho0 float64
}

func newAlbers() albers {
	phi1 := albersLat1 * math.Pi / 180
	phi2 := albersLat2 * math.Pi / 180
	phi0 := albersLat0 * math.Pi / 180

	n := (math.Sin(phi1) + math.Sin(phi2)) / 2
	c := math.Cos(phi1)*math.Cos(phi1) + 2*n*math.Sin(phi1)
	rho0 := authalicRadius / n * math.Sqrt(c-2*n*math.Sin(phi0))

	return albers{n: n, c: c, rho0: rho0}
}

func (a albers) project(lng, lat float64) (x, y float64) {
	phi := lat * math.Pi / 180
	theta := a.n * (lng - albersLon0) * math.Pi / 180
	rho := authalicRadius / a.n * math.Sqrt(a.c-2*a.n*math.Sin(phi))

	return rho * math.Sin(theta), a.rho0 - rho*math.Cos(theta)
}

var conus = newAlbers()

// ProjectEqualArea reprojects a polygon or multipolygon from EPSG:4326 into
// the equal-area grid. The input geometry is not modified.
func ProjectEqualArea(g geom.T) (geom.T, error) {
	if g == nil {
		return nil, eris.New("geometry: project nil geometry")
	}

	layout := g.Layout()
	stride := layout.Stride()
	if stride < 2 {
		return nil, eris.Errorf("geometry: unsupported layout %v", layout)
	}

	src := g.FlatCoords()
	dst := make([]float64, len(src))
	copy(dst, src)
	for i := 0; i+1 < len(dst); i += stride {
		dst[i], dst[i+1] = conus.project(src[i], src[i+1])
	}

	switch gg := g.(type) {
	case *geom.Polygon:
		ends := append([]int(nil), gg.Ends()...)
		return geom.NewPolygonFlat(layout, dst, ends), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(gg.Endss()))
		for i, ends := range gg.Endss() {
			endss[i] = append([]int(nil), ends...)
		}
		return geom.NewMultiPolygonFlat(layout, dst, endss), nil
	default:
		return nil, eris.Errorf("geometry: cannot project %T", g)
	}
}

// EqualAreaWKB reprojects a geometry and encodes it as WKB for handoff to
// the GEOS-backed overlap calculator.
func EqualAreaWKB(g geom.T) ([]byte, error) {
	projected, err := ProjectEqualArea(g)
	if err != nil {
		return nil, err
	}

	data, err := wkb.Marshal(projected, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode projected WKB")
	}
	return data, nil
}
