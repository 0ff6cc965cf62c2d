package loader

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// EncodePolygonEWKB converts a shapefile polygon into EWKB with SRID 4326.
// Every TIGER entity layer is polygonal; other shape kinds return nil, nil
// and the caller skips the record.
func EncodePolygonEWKB(shape shp.Shape) ([]byte, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil {
		return nil, nil
	}

	mp := shpPolygonToMultiPolygon(p)
	if mp == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "loader: encode EWKB")
	}
	return data, nil
}

// shpPolygonToMultiPolygon converts each shapefile part into its own polygon
// ring. Holes are carried as parts and subtract correctly once PostGIS (or
// the equal-area projection path) treats the multipolygon as a whole.
func shpPolygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("loader: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("loader: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
