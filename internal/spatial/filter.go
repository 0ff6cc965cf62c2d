package spatial

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

// Candidate holds the bbox-filtered parent candidates for one child.
// Bounding-box overlap is only a prefilter; the overlap calculator decides
// true intersection.
type Candidate struct {
	Child   string
	Parents []string
}

// Filter generates candidate (child, parent) pairs for one (child-type,
// parent-type) computation. It is read-only and restartable: streaming
// again yields the same sequence.
type Filter struct {
	index    *Index
	childIDs []string
	childBox map[string]geometry.BBox
	missing  atomic.Int64
}

// NewFilter builds a filter from the full child id list, the boxes of
// children that have geometry, and the boxes of parents that have geometry.
func NewFilter(childIDs []string, childBoxes, parentBoxes []geometry.IDBox) *Filter {
	byID := make(map[string]geometry.BBox, len(childBoxes))
	for _, cb := range childBoxes {
		byID[cb.Geoid] = cb.Box
	}
	return &Filter{
		index:    NewIndex(parentBoxes),
		childIDs: childIDs,
		childBox: byID,
	}
}

// Stream lazily yields one Candidate per child with geometry, carrying the
// parents whose bounding boxes intersect the child's. Children with no
// candidate parents are still emitted, with an empty list, so downstream
// progress tracking covers them. Children lacking geometry are skipped with
// a warning; the cross product is never materialized. The channel is closed
// when all children have been visited or ctx is cancelled.
func (f *Filter) Stream(ctx context.Context) <-chan Candidate {
	out := make(chan Candidate)

	go func() {
		defer close(out)
		f.missing.Store(0)

		for _, child := range f.childIDs {
			box, ok := f.childBox[child]
			if !ok {
				f.missing.Add(1)
				zap.L().Warn("spatial: skipping child without geometry",
					zap.String("child_geoid", child),
				)
				continue
			}

			parents := f.index.Search(box)

			select {
			case out <- Candidate{Child: child, Parents: parents}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// MissingGeometry returns the number of children skipped for lack of
// geometry during the most recent Stream.
func (f *Filter) MissingGeometry() int64 {
	return f.missing.Load()
}
