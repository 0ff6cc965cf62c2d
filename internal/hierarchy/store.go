package hierarchy

import (
	"context"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

// Store is the persistence surface for compiled hierarchy records.
type Store interface {
	// UpsertRecords writes a batch of records keyed by geoid.
	UpsertRecords(ctx context.Context, records []Record) (int64, error)

	// Get returns one entity's record, or geometry.ErrNotFound.
	Get(ctx context.Context, geoid string) (*Record, error)

	// ChildrenByPrimary lists the geoids of childType entities whose primary
	// ancestor at parentType's level is parentGeoid.
	ChildrenByPrimary(ctx context.Context, childType, parentType geometry.GeoType, parentGeoid string) ([]string, error)

	// Clear removes every record ahead of a full recompile.
	Clear(ctx context.Context) error
}
