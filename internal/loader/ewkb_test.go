package loader

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestEncodePolygonEWKB(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points: []shp.Point{
			{X: -95.8, Y: 29.5},
			{X: -95.8, Y: 30.1},
			{X: -95.0, Y: 30.1},
			{X: -95.0, Y: 29.5},
			{X: -95.8, Y: 29.5},
		},
	}

	data, err := EncodePolygonEWKB(poly)
	require.NoError(t, err)
	require.NotNil(t, data)

	decoded, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	mp, ok := decoded.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 4326, mp.SRID())
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestEncodePolygonEWKB_MultiPart(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			{X: -95.8, Y: 29.5},
			{X: -95.8, Y: 30.1},
			{X: -95.0, Y: 30.1},
			{X: -95.0, Y: 29.5},
			{X: -95.8, Y: 29.5},
			{X: -94.0, Y: 29.0},
			{X: -94.0, Y: 29.2},
			{X: -93.8, Y: 29.2},
			{X: -93.8, Y: 29.0},
			{X: -94.0, Y: 29.0},
		},
	}

	data, err := EncodePolygonEWKB(poly)
	require.NoError(t, err)
	require.NotNil(t, data)

	decoded, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.(*geom.MultiPolygon).NumPolygons())
}

func TestEncodePolygonEWKB_NonPolygonShapes(t *testing.T) {
	data, err := EncodePolygonEWKB(&shp.Point{X: -95.0, Y: 29.5})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodePolygonEWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestEncodePolygonEWKB_EmptyPolygon(t *testing.T) {
	data, err := EncodePolygonEWKB(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, data)
}
