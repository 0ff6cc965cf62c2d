// Package engine orchestrates relationship runs: per pair it loads bounding
// boxes, streams bbox-filtered candidates, fans them out to workers that own
// a GEOS calculator each, and funnels edges through the idempotent writer.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/overlap"
	"github.com/sells-group/geo-hierarchy/internal/relation"
	"github.com/sells-group/geo-hierarchy/internal/resilience"
	"github.com/sells-group/geo-hierarchy/internal/spatial"
)

// Options selects what one run computes.
type Options struct {
	// Pairs restricts the run to the named pair types; empty means all.
	Pairs []string

	// StateFIPS restricts children to one state partition.
	StateFIPS string

	// FullRecompute clears each pair's edges and progress before computing.
	// Default is upsert-only: children already recorded complete are skipped.
	FullRecompute bool

	Workers   int
	FlushSize int
}

// PairSummary reports one pair type's run.
type PairSummary struct {
	Pair            string        `json:"pair"`
	Children        int64         `json:"children"`
	Resumed         int64         `json:"resumed"`
	MissingGeometry int64         `json:"missing_geometry"`
	Degenerate      int64         `json:"degenerate"`
	Invalid         int64         `json:"invalid"`
	Faults          int64         `json:"faults"`
	EdgesWritten    int64         `json:"edges_written"`
	Demotions       int64         `json:"demotions"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Summary reports a whole run.
type Summary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	EdgesWritten int64         `json:"edges_written"`
	Pairs        []PairSummary `json:"pairs"`
}

// Engine runs relationship computations against the stores.
type Engine struct {
	geoms geometry.Store
	rels  relation.Store
	retry resilience.RetryConfig
}

// New creates an Engine.
func New(geoms geometry.Store, rels relation.Store) *Engine {
	return &Engine{geoms: geoms, rels: rels, retry: resilience.DefaultRetryConfig()}
}

// Run computes the selected pairs sequentially, each internally parallel.
// Per-geometry problems become counters; only store I/O errors are fatal.
func (e *Engine) Run(ctx context.Context, opts Options) (*Summary, error) {
	pairs, err := selectPairs(opts.Pairs)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	sum := &Summary{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := zap.L().With(zap.String("component", "engine"), zap.String("run_id", sum.RunID))
	log.Info("relationship run starting",
		zap.Int("pairs", len(pairs)),
		zap.String("state_fips", opts.StateFIPS),
		zap.Bool("full_recompute", opts.FullRecompute),
		zap.Int("workers", opts.Workers),
	)

	for _, pair := range pairs {
		ps, err := e.runPair(ctx, sum.RunID, pair, opts)
		if err != nil {
			return sum, err
		}
		sum.Pairs = append(sum.Pairs, *ps)
		sum.EdgesWritten += ps.EdgesWritten
		log.Info("pair complete",
			zap.String("pair", pair.Name),
			zap.Int64("children", ps.Children),
			zap.Int64("edges_written", ps.EdgesWritten),
			zap.Duration("elapsed", ps.Elapsed),
		)
	}

	sum.Elapsed = time.Since(sum.StartedAt)
	return sum, nil
}

func selectPairs(names []string) ([]relation.Pair, error) {
	if len(names) == 0 {
		return relation.Pairs, nil
	}
	out := make([]relation.Pair, 0, len(names))
	for _, name := range names {
		p, err := relation.PairByName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (e *Engine) runPair(ctx context.Context, runID string, pair relation.Pair, opts Options) (*PairSummary, error) {
	started := time.Now()
	ps := &PairSummary{Pair: pair.Name}

	if pair.Structural {
		n, err := e.rels.DeriveCountyState(ctx, opts.StateFIPS)
		if err != nil {
			return nil, err
		}
		ps.EdgesWritten = n
		ps.Elapsed = time.Since(started)
		return ps, nil
	}

	// A partitioned full recompute would otherwise wipe other states' edges,
	// so the pair is only cleared when unpartitioned; partitioned recomputes
	// rely on the upsert overwriting selected children.
	if opts.FullRecompute && opts.StateFIPS == "" {
		if err := e.rels.ClearPair(ctx, pair); err != nil {
			return nil, err
		}
	}

	childIDs, err := e.listChildren(ctx, pair.Child, opts.StateFIPS)
	if err != nil {
		return nil, err
	}

	if !opts.FullRecompute {
		done, err := e.rels.CompletedChildren(ctx, pair)
		if err != nil {
			return nil, err
		}
		remaining := childIDs[:0]
		for _, id := range childIDs {
			if done[id] {
				ps.Resumed++
				continue
			}
			remaining = append(remaining, id)
		}
		childIDs = remaining
	}
	ps.Children = int64(len(childIDs))

	childBoxes, err := e.geoms.BoundingBoxes(ctx, pair.Child)
	if err != nil {
		return nil, err
	}
	parentBoxes, err := e.geoms.BoundingBoxes(ctx, pair.Parent)
	if err != nil {
		return nil, err
	}

	filter := spatial.NewFilter(childIDs, childBoxes, parentBoxes)
	writer := relation.NewWriter(e.rels, pair, runID, opts.FlushSize)
	parents := newParentSource(e.geoms, pair.Parent, e.retry)

	var degenerate, invalid, faults atomic.Int64

	candidates := filter.Stream(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for range opts.Workers {
		g.Go(func() error {
			calc := overlap.NewCalculator()
			defer calc.Close()
			for cand := range candidates {
				if err := e.processChild(gctx, calc, parents, writer, pair, cand, &degenerate, &invalid, &faults); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := writer.Flush(ctx); err != nil {
		return nil, err
	}

	ps.MissingGeometry = filter.MissingGeometry()
	ps.Degenerate = degenerate.Load()
	ps.Invalid = invalid.Load()
	ps.Faults = faults.Load()
	ps.EdgesWritten = writer.Written()
	ps.Demotions = writer.Demotions()
	ps.Elapsed = time.Since(started)
	return ps, nil
}

func (e *Engine) listChildren(ctx context.Context, t geometry.GeoType, stateFIPS string) ([]string, error) {
	if stateFIPS == "" {
		return e.geoms.ListIDs(ctx, t)
	}
	return e.geoms.ListIDsByState(ctx, t, stateFIPS)
}

// processChild computes one child's full edge set. Geometry-level problems
// (degenerate, invalid, GEOS faults) increment counters and move on; only
// writer errors propagate.
func (e *Engine) processChild(ctx context.Context, calc *overlap.Calculator, parents *parentSource, writer *relation.Writer, pair relation.Pair, cand spatial.Candidate, degenerate, invalid, faults *atomic.Int64) error {
	log := zap.L().With(zap.String("component", "engine"), zap.String("pair", pair.Name))

	// No bbox candidates: record the child complete with zero edges so
	// upsert-only reruns do not re-examine it.
	if len(cand.Parents) == 0 {
		return writer.WriteChild(ctx, cand.Child, nil)
	}

	childWKB, err := e.childWKB(ctx, pair.Child, cand.Child)
	if err != nil {
		faults.Add(1)
		log.Warn("failed to load child geometry", zap.String("child_geoid", cand.Child), zap.Error(err))
		return nil
	}

	child, err := calc.NewChild(cand.Child, childWKB)
	if err != nil {
		return e.recordChildProblem(ctx, writer, log, cand.Child, err, degenerate, invalid, faults)
	}
	defer child.Destroy()

	edges := make([]relation.Edge, 0, len(cand.Parents))
	for _, parentGeoid := range cand.Parents {
		parentWKB, err := parents.wkb(ctx, parentGeoid)
		if err != nil {
			if errors.Is(err, overlap.ErrInvalidGeometry) || errors.Is(err, geometry.ErrNotFound) {
				invalid.Add(1)
				continue
			}
			faults.Add(1)
			log.Warn("failed to load parent geometry", zap.String("parent_geoid", parentGeoid), zap.Error(err))
			continue
		}

		res, err := calc.Overlap(child, parentGeoid, parentWKB)
		if err != nil {
			return e.recordChildProblem(ctx, writer, log, cand.Child, err, degenerate, invalid, faults)
		}
		if res == nil {
			continue
		}
		edges = append(edges, relation.Edge{
			ChildGeoid:     cand.Child,
			ParentGeoid:    parentGeoid,
			OverlapPct:     res.Pct,
			OverlapAreaKm2: res.AreaKm2,
		})
	}

	return writer.WriteChild(ctx, cand.Child, edges)
}

// recordChildProblem classifies a per-child geometry error and marks the
// child completed so resume does not spin on a geometry that can never
// compute.
func (e *Engine) recordChildProblem(ctx context.Context, writer *relation.Writer, log *zap.Logger, childGeoid string, err error, degenerate, invalid, faults *atomic.Int64) error {
	var degErr *overlap.DegenerateGeometryError
	switch {
	case errors.As(err, &degErr):
		degenerate.Add(1)
		log.Warn("skipping degenerate geometry", zap.String("geoid", degErr.Geoid))
	case errors.Is(err, overlap.ErrInvalidGeometry):
		invalid.Add(1)
	default:
		faults.Add(1)
		log.Warn("geometry fault", zap.String("child_geoid", childGeoid), zap.Error(err))
	}
	return writer.WriteChild(ctx, childGeoid, nil)
}

func (e *Engine) childWKB(ctx context.Context, t geometry.GeoType, geoid string) ([]byte, error) {
	g, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (geom.T, error) {
		return e.geoms.Geometry(ctx, t, geoid)
	})
	if err != nil {
		return nil, err
	}
	return geometry.EqualAreaWKB(g)
}
