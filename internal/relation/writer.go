package relation

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AssignPrimary flags the primary parent among one child's edges: the
// parent with overlap_pct > 50. Percentages are child-relative, so at most
// one parent can legitimately exceed 50; if topology noise produces more
// than one, the highest wins and the rest are demoted with a data-quality
// warning. Returns the number of demotions. Edges are sorted by descending
// overlap (parent geoid as deterministic tie-break).
func AssignPrimary(pair Pair, edges []Edge) int {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].OverlapPct != edges[j].OverlapPct {
			return edges[i].OverlapPct > edges[j].OverlapPct
		}
		return edges[i].ParentGeoid < edges[j].ParentGeoid
	})

	demotions := 0
	for i := range edges {
		over := edges[i].OverlapPct > primaryThreshold
		if over && i > 0 {
			demotions++
			zap.L().Warn("relation: demoting extra primary candidate",
				zap.String("pair", pair.Name),
				zap.String("child_geoid", edges[i].ChildGeoid),
				zap.String("parent_geoid", edges[i].ParentGeoid),
				zap.Float64("overlap_pct", edges[i].OverlapPct),
			)
			over = false
		}
		edges[i].IsPrimary = over
	}
	return demotions
}

// Writer buffers per-child edge sets for one pair type and flushes them to
// the store in batches. Safe for concurrent WriteChild calls from workers;
// completion progress is recorded alongside each flush so interrupted runs
// resume at batch granularity.
type Writer struct {
	store     Store
	pair      Pair
	runID     string
	flushSize int

	mu        sync.Mutex
	edges     []Edge
	children  []string
	written   int64
	demotions int64
}

// NewWriter creates a Writer for one pair type.
func NewWriter(store Store, pair Pair, runID string, flushSize int) *Writer {
	if flushSize <= 0 {
		flushSize = 5000
	}
	return &Writer{store: store, pair: pair, runID: runID, flushSize: flushSize}
}

// WriteChild accepts one child's complete edge set, assigns the primary
// flag, and buffers the rows. A child with no edges is still marked
// completed so resume logic does not revisit it. Flushes when the buffer
// exceeds the batch size.
func (w *Writer) WriteChild(ctx context.Context, childGeoid string, edges []Edge) error {
	demoted := AssignPrimary(w.pair, edges)

	w.mu.Lock()
	w.edges = append(w.edges, edges...)
	w.children = append(w.children, childGeoid)
	w.demotions += int64(demoted)
	shouldFlush := len(w.edges) >= w.flushSize
	w.mu.Unlock()

	if shouldFlush {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes buffered edges and progress rows to the store.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	edges := w.edges
	children := w.children
	w.edges = nil
	w.children = nil
	w.mu.Unlock()

	if len(edges) == 0 && len(children) == 0 {
		return nil
	}

	n, err := w.store.UpsertEdges(ctx, w.pair, edges)
	if err != nil {
		return err
	}
	if err := w.store.MarkCompleted(ctx, w.pair, w.runID, children); err != nil {
		return err
	}

	w.mu.Lock()
	w.written += n
	w.mu.Unlock()

	zap.L().Debug("relation: flushed edge batch",
		zap.String("pair", w.pair.Name),
		zap.Int("edges", len(edges)),
		zap.Int("children", len(children)),
	)
	return nil
}

// Written returns the number of edge rows written so far.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Demotions returns the number of extra >50% candidates demoted.
func (w *Writer) Demotions() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.demotions
}
