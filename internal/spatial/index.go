// Package spatial implements the bounding-box candidate filter: a uniform
// grid index over parent boxes probed once per child, replacing the
// cross-product spatial join with O(N log M)-ish candidate generation.
package spatial

import (
	"math"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

type cellKey struct {
	x, y int
}

// Index is a uniform-grid bounding-box index. Built once per parent set and
// probed once per child; read-only after construction, so safe for
// concurrent probes.
type Index struct {
	cellW, cellH float64
	cells        map[cellKey][]int
	boxes        []geometry.IDBox
}

// NewIndex builds a grid index over the given boxes. Cell size is derived
// from the mean box extent so that a typical probe touches a handful of
// cells.
func NewIndex(boxes []geometry.IDBox) *Index {
	ix := &Index{
		cellW: 1,
		cellH: 1,
		cells: make(map[cellKey][]int),
		boxes: boxes,
	}

	if len(boxes) > 0 {
		var sumW, sumH float64
		for _, b := range boxes {
			sumW += b.Box.MaxLng - b.Box.MinLng
			sumH += b.Box.MaxLat - b.Box.MinLat
		}
		ix.cellW = math.Max(sumW/float64(len(boxes)), 1e-6)
		ix.cellH = math.Max(sumH/float64(len(boxes)), 1e-6)
	}

	for i, b := range boxes {
		ix.eachCell(b.Box, func(k cellKey) {
			ix.cells[k] = append(ix.cells[k], i)
		})
	}

	return ix
}

// Len returns the number of indexed boxes.
func (ix *Index) Len() int { return len(ix.boxes) }

// Search returns the geoids of all indexed boxes intersecting the query
// box, in insertion order.
func (ix *Index) Search(box geometry.BBox) []string {
	var hits []string
	seen := make(map[int]bool)

	ix.eachCell(box, func(k cellKey) {
		for _, i := range ix.cells[k] {
			if seen[i] {
				continue
			}
			seen[i] = true
			if box.Intersects(ix.boxes[i].Box) {
				hits = append(hits, ix.boxes[i].Geoid)
			}
		}
	})

	return hits
}

func (ix *Index) eachCell(box geometry.BBox, fn func(cellKey)) {
	x0 := int(math.Floor(box.MinLng / ix.cellW))
	x1 := int(math.Floor(box.MaxLng / ix.cellW))
	y0 := int(math.Floor(box.MinLat / ix.cellH))
	y1 := int(math.Floor(box.MaxLat / ix.cellH))

	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			fn(cellKey{x, y})
		}
	}
}
