package loader

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

// ParseLayer reads one shapefile into rows ordered per layer.Columns with
// the EWKB geometry appended. Records with malformed geoids or unusable
// shapes are skipped and counted, never fatal.
func ParseLayer(shpPath string, layer Layer) ([][]any, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", shpPath)
	}
	defer reader.Close() //nolint:errcheck

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}

	geoidIdx, ok := fieldIdx[strings.ToUpper(layer.Fields[0])]
	if !ok {
		return nil, eris.Errorf("loader: shapefile %s lacks field %s", shpPath, layer.Fields[0])
	}

	var rows [][]any
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		geoid := attribute(reader, geoidIdx)
		if err := geometry.ValidateGeoid(layer.Type, geoid); err != nil {
			skipped++
			continue
		}

		row := make([]any, 0, len(layer.Columns)+1)
		for _, field := range layer.Fields {
			idx, ok := fieldIdx[strings.ToUpper(field)]
			if !ok {
				row = append(row, nil)
				continue
			}
			if val := attribute(reader, idx); val != "" {
				row = append(row, val)
			} else {
				row = append(row, nil)
			}
		}

		data, err := EncodePolygonEWKB(shape)
		if err != nil || data == nil {
			skipped++
			continue
		}
		rows = append(rows, append(row, data))
	}

	if skipped > 0 {
		zap.L().Warn("loader: skipped shapefile records",
			zap.String("layer", string(layer.Type)),
			zap.Int("skipped", skipped),
		)
	}

	return rows, nil
}

func attribute(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}
