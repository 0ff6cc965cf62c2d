package relation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for writer tests.
type memStore struct {
	mu        sync.Mutex
	edges     map[string][]Edge
	completed map[string]map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		edges:     make(map[string][]Edge),
		completed: make(map[string]map[string]bool),
	}
}

func (m *memStore) UpsertEdges(_ context.Context, pair Pair, edges []Edge) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[pair.Name] = append(m.edges[pair.Name], edges...)
	return int64(len(edges)), nil
}

func (m *memStore) ParentsOf(_ context.Context, pair Pair, child string) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Edge
	for _, e := range m.edges[pair.Name] {
		if e.ChildGeoid == child {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ChildrenOf(_ context.Context, pair Pair, parent string) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Edge
	for _, e := range m.edges[pair.Name] {
		if e.ParentGeoid == parent {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) AllEdges(_ context.Context, pair Pair) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Edge(nil), m.edges[pair.Name]...), nil
}

func (m *memStore) CompletedChildren(_ context.Context, pair Pair) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := make(map[string]bool)
	for child := range m.completed[pair.Name] {
		done[child] = true
	}
	return done, nil
}

func (m *memStore) MarkCompleted(_ context.Context, pair Pair, _ string, children []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed[pair.Name] == nil {
		m.completed[pair.Name] = make(map[string]bool)
	}
	for _, child := range children {
		m.completed[pair.Name][child] = true
	}
	return nil
}

func (m *memStore) ClearPair(_ context.Context, pair Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, pair.Name)
	delete(m.completed, pair.Name)
	return nil
}

func (m *memStore) DeriveCountyState(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func TestAssignPrimary_MajorityWins(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)

	edges := []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 20},
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 80},
	}

	demotions := AssignPrimary(pair, edges)

	assert.Zero(t, demotions)
	assert.Equal(t, "48201", edges[0].ParentGeoid, "sorted by descending overlap")
	assert.True(t, edges[0].IsPrimary)
	assert.False(t, edges[1].IsPrimary)
}

func TestAssignPrimary_ExactlyFiftyIsNotPrimary(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)

	edges := []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 50},
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 50},
	}

	AssignPrimary(pair, edges)
	for _, e := range edges {
		assert.False(t, e.IsPrimary)
	}
}

func TestAssignPrimary_DemotesExtraCandidates(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)

	// Topology noise: two parents both claim > 50%.
	edges := []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 52},
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 61},
	}

	demotions := AssignPrimary(pair, edges)

	assert.Equal(t, 1, demotions)
	assert.Equal(t, "48201", edges[0].ParentGeoid)
	assert.True(t, edges[0].IsPrimary)
	assert.False(t, edges[1].IsPrimary)
}

func TestAssignPrimary_TieBreaksOnParentGeoid(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)

	edges := []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 51},
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 51},
	}

	AssignPrimary(pair, edges)
	assert.Equal(t, "48201", edges[0].ParentGeoid, "equal pct orders by parent geoid")
	assert.True(t, edges[0].IsPrimary)
	assert.False(t, edges[1].IsPrimary)
}

func TestWriter_FlushesAndMarksProgress(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)
	store := newMemStore()
	w := NewWriter(store, pair, "run-1", 100)

	err = w.WriteChild(context.Background(), "77001", []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 80},
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 20},
	})
	require.NoError(t, err)
	require.NoError(t, w.Flush(context.Background()))

	assert.Equal(t, int64(2), w.Written())
	assert.Zero(t, w.Demotions())

	edges, err := store.AllEdges(context.Background(), pair)
	require.NoError(t, err)
	require.Len(t, edges, 2)

	done, err := store.CompletedChildren(context.Background(), pair)
	require.NoError(t, err)
	assert.True(t, done["77001"])
}

func TestWriter_ChildWithNoEdgesIsStillCompleted(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)
	store := newMemStore()
	w := NewWriter(store, pair, "run-1", 100)

	require.NoError(t, w.WriteChild(context.Background(), "99999", nil))
	require.NoError(t, w.Flush(context.Background()))

	assert.Zero(t, w.Written())
	done, err := store.CompletedChildren(context.Background(), pair)
	require.NoError(t, err)
	assert.True(t, done["99999"])
}

func TestWriter_AutoFlushAtBatchSize(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)
	store := newMemStore()
	w := NewWriter(store, pair, "run-1", 2)

	require.NoError(t, w.WriteChild(context.Background(), "77001", []Edge{
		{ChildGeoid: "77001", ParentGeoid: "48201", OverlapPct: 80},
		{ChildGeoid: "77001", ParentGeoid: "48339", OverlapPct: 20},
	}))

	// Buffer hit the flush size, so rows are already in the store.
	assert.Equal(t, int64(2), w.Written())
}

func TestWriter_ConcurrentWrites(t *testing.T) {
	pair, err := PairByName("zcta_county")
	require.NoError(t, err)
	store := newMemStore()
	w := NewWriter(store, pair, "run-1", 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			child := []string{"77001", "77002", "77003", "77004", "77005", "77006", "77007", "77008"}[n]
			_ = w.WriteChild(context.Background(), child, []Edge{
				{ChildGeoid: child, ParentGeoid: "48201", OverlapPct: 90},
			})
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Flush(context.Background()))

	assert.Equal(t, int64(8), w.Written())
	done, err := store.CompletedChildren(context.Background(), pair)
	require.NoError(t, err)
	assert.Len(t, done, 8)
}
