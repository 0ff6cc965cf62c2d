package engine

import (
	"context"
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/resilience"
)

// parentSource hands out equal-area parent WKB, fetched and projected once
// per pair run and shared across workers. Entries cache errors too, so an
// absent or unprojectable parent is not refetched per child.
type parentSource struct {
	geoms geometry.Store
	t     geometry.GeoType
	retry resilience.RetryConfig

	mu    sync.RWMutex
	cache map[string]parentEntry
}

type parentEntry struct {
	wkb []byte
	err error
}

func newParentSource(geoms geometry.Store, t geometry.GeoType, retry resilience.RetryConfig) *parentSource {
	return &parentSource{
		geoms: geoms,
		t:     t,
		retry: retry,
		cache: make(map[string]parentEntry),
	}
}

// wkb returns the projected WKB for one parent. Concurrent first requests
// for the same parent may fetch twice; the fetch is idempotent and the last
// write wins.
func (p *parentSource) wkb(ctx context.Context, geoid string) ([]byte, error) {
	p.mu.RLock()
	entry, ok := p.cache[geoid]
	p.mu.RUnlock()
	if ok {
		return entry.wkb, entry.err
	}

	entry = p.fetch(ctx, geoid)

	p.mu.Lock()
	p.cache[geoid] = entry
	p.mu.Unlock()
	return entry.wkb, entry.err
}

func (p *parentSource) fetch(ctx context.Context, geoid string) parentEntry {
	g, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (geom.T, error) {
		return p.geoms.Geometry(ctx, p.t, geoid)
	})
	if err != nil {
		return parentEntry{err: err}
	}

	data, err := geometry.EqualAreaWKB(g)
	if err != nil {
		return parentEntry{err: err}
	}
	return parentEntry{wkb: data}
}
