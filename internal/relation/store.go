package relation

import "context"

// Store is the persistence surface for relationship edges and per-child
// completion progress. All writes are idempotent per (child, parent) key.
type Store interface {
	// UpsertEdges writes a batch of edges for one pair type.
	UpsertEdges(ctx context.Context, pair Pair, edges []Edge) (int64, error)

	// ParentsOf returns all edges where child is the child geoid, ordered
	// by is_primary desc then overlap_pct desc.
	ParentsOf(ctx context.Context, pair Pair, childGeoid string) ([]Edge, error)

	// ChildrenOf returns all edges pointing at the given parent geoid.
	ChildrenOf(ctx context.Context, pair Pair, parentGeoid string) ([]Edge, error)

	// AllEdges returns every edge of a pair type, ordered by child then
	// descending overlap. The hierarchy compiler reads through this.
	AllEdges(ctx context.Context, pair Pair) ([]Edge, error)

	// CompletedChildren returns the set of child geoids already fully
	// written for a pair (for batch-granularity resume).
	CompletedChildren(ctx context.Context, pair Pair) (map[string]bool, error)

	// MarkCompleted records that the given children are fully written.
	MarkCompleted(ctx context.Context, pair Pair, runID string, children []string) error

	// ClearPair removes all edges and progress for a pair (full recompute).
	ClearPair(ctx context.Context, pair Pair) error

	// DeriveCountyState populates the structural county→state table from
	// the county geoids' embedded state prefix. stateFIPS optionally
	// restricts to one state partition.
	DeriveCountyState(ctx context.Context, stateFIPS string) (int64, error)
}
