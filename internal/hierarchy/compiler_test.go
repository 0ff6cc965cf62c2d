package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

// fakeGeoms serves fixed id/name/area maps per type.
type fakeGeoms struct {
	ids   map[geometry.GeoType][]string
	names map[string]string
	areas map[string]float64
}

func (f *fakeGeoms) ListIDs(_ context.Context, t geometry.GeoType) ([]string, error) {
	return f.ids[t], nil
}

func (f *fakeGeoms) ListIDsByState(_ context.Context, t geometry.GeoType, _ string) ([]string, error) {
	return f.ids[t], nil
}

func (f *fakeGeoms) Geometry(_ context.Context, _ geometry.GeoType, _ string) (geom.T, error) {
	return nil, geometry.ErrNotFound
}

func (f *fakeGeoms) BoundingBoxes(_ context.Context, _ geometry.GeoType) ([]geometry.IDBox, error) {
	return nil, nil
}

func (f *fakeGeoms) Names(_ context.Context, t geometry.GeoType) (map[string]string, error) {
	return f.names, nil
}

func (f *fakeGeoms) Areas(_ context.Context, _ geometry.GeoType) (map[string]float64, error) {
	return f.areas, nil
}

// fakeRels serves fixed edge lists per pair.
type fakeRels struct {
	edges map[string][]relation.Edge
}

func (f *fakeRels) AllEdges(_ context.Context, pair relation.Pair) ([]relation.Edge, error) {
	return f.edges[pair.Name], nil
}

func (f *fakeRels) UpsertEdges(_ context.Context, _ relation.Pair, _ []relation.Edge) (int64, error) {
	return 0, nil
}

func (f *fakeRels) ParentsOf(_ context.Context, _ relation.Pair, _ string) ([]relation.Edge, error) {
	return nil, nil
}

func (f *fakeRels) ChildrenOf(_ context.Context, _ relation.Pair, _ string) ([]relation.Edge, error) {
	return nil, nil
}

func (f *fakeRels) CompletedChildren(_ context.Context, _ relation.Pair) (map[string]bool, error) {
	return nil, nil
}

func (f *fakeRels) MarkCompleted(_ context.Context, _ relation.Pair, _ string, _ []string) error {
	return nil
}

func (f *fakeRels) ClearPair(_ context.Context, _ relation.Pair) error { return nil }

func (f *fakeRels) DeriveCountyState(_ context.Context, _ string) (int64, error) { return 0, nil }

// fakeStore collects upserted records.
type fakeStore struct {
	records map[string]Record
}

func (f *fakeStore) UpsertRecords(_ context.Context, records []Record) (int64, error) {
	for _, r := range records {
		f.records[r.Geoid] = r
	}
	return int64(len(records)), nil
}

func (f *fakeStore) Get(_ context.Context, geoid string) (*Record, error) {
	r, ok := f.records[geoid]
	if !ok {
		return nil, geometry.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) ChildrenByPrimary(_ context.Context, _, _ geometry.GeoType, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) Clear(_ context.Context) error { return nil }

func primary(child, parent string, pct float64) relation.Edge {
	return relation.Edge{ChildGeoid: child, ParentGeoid: parent, OverlapPct: pct, IsPrimary: true}
}

func secondary(child, parent string, pct float64) relation.Edge {
	return relation.Edge{ChildGeoid: child, ParentGeoid: parent, OverlapPct: pct}
}

func fixtureCompiler() (*Compiler, *fakeStore) {
	geoms := &fakeGeoms{
		ids: map[geometry.GeoType][]string{
			geometry.State:  {"22", "48"},
			geometry.CBSA:   {"26420"},
			geometry.County: {"22071", "48201", "48339"},
			geometry.Place:  {"4835000"},
			geometry.ZCTA:   {"77001", "99999"},
		},
		names: map[string]string{"48201": "Harris County", "77001": "77001"},
		areas: map[string]float64{"77001": 55.5},
	}
	rels := &fakeRels{edges: map[string][]relation.Edge{
		"zcta_county": {
			primary("77001", "48201", 80),
			secondary("77001", "48339", 20),
		},
		"zcta_place": {primary("77001", "4835000", 61.2)},
		"zcta_cbsa":  {primary("77001", "26420", 100)},
		"place_county": {
			primary("4835000", "48201", 95),
			secondary("4835000", "48339", 5),
		},
		"county_cbsa": {
			primary("48201", "26420", 100),
			primary("48339", "26420", 100),
			primary("22071", "26420", 100),
		},
		"county_state": {
			primary("22071", "22", 100),
			primary("48201", "48", 100),
			primary("48339", "48", 100),
		},
	}}
	store := &fakeStore{records: make(map[string]Record)}
	return NewCompiler(geoms, rels, store, 100), store
}

func TestCompile_ZCTARecord(t *testing.T) {
	compiler, store := fixtureCompiler()

	stats, err := compiler.Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), stats.Records)

	rec := store.records["77001"]
	assert.Equal(t, geometry.ZCTA, rec.GeoType)
	assert.Equal(t, "48201", rec.PrimaryCounty)
	assert.Equal(t, []string{"48201", "48339"}, rec.AllCounties)
	assert.Equal(t, "4835000", rec.PrimaryPlace)
	assert.Equal(t, "26420", rec.PrimaryCBSA)
	assert.Equal(t, "48", rec.PrimaryState, "state rides the primary county prefix")
	assert.Equal(t, []string{"48"}, rec.AllStates)
	assert.Equal(t, []string{"US", "48", "26420", "48201", "4835000", "77001"}, rec.Path)
	assert.InDelta(t, 55.5, rec.AreaKm2, 1e-9)
}

func TestCompile_ZCTAWithNoEdges(t *testing.T) {
	compiler, store := fixtureCompiler()

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	// Missing edges yield empty primaries and sentinel path slots, never an
	// error; the validator surfaces this.
	rec := store.records["99999"]
	assert.Empty(t, rec.PrimaryCounty)
	assert.Empty(t, rec.PrimaryState)
	assert.Equal(t, []string{"US", "unknown", "unknown", "unknown", "unknown", "99999"}, rec.Path)
}

func TestCompile_CountyRecord(t *testing.T) {
	compiler, store := fixtureCompiler()

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	rec := store.records["48201"]
	assert.Equal(t, "48", rec.PrimaryState)
	assert.Equal(t, "26420", rec.PrimaryCBSA)
	assert.Equal(t, "Harris County", rec.Name)
	assert.Equal(t, []string{"US", "48", "26420", "48201"}, rec.Path)
}

func TestCompile_PlaceRidesPrimaryCountyCBSA(t *testing.T) {
	compiler, store := fixtureCompiler()

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	rec := store.records["4835000"]
	assert.Equal(t, "48", rec.PrimaryState)
	assert.Equal(t, "48201", rec.PrimaryCounty)
	assert.Equal(t, "26420", rec.PrimaryCBSA, "derived through the primary county")
	assert.Equal(t, []string{"US", "48", "26420", "48201", "4835000"}, rec.Path)
}

func TestCompile_CBSAPlurality(t *testing.T) {
	compiler, store := fixtureCompiler()

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	// Two Texas counties vs one Louisiana county: Texas wins the plurality;
	// all_states is the union over every member.
	rec := store.records["26420"]
	assert.Equal(t, "48", rec.PrimaryState)
	assert.Equal(t, []string{"22", "48"}, rec.AllStates)
	assert.Equal(t, []string{"22071", "48201", "48339"}, rec.AllCounties)
	assert.Equal(t, []string{"US", "48", "26420"}, rec.Path)
}

func TestCompile_CBSAPluralityTieBreaksLowestFIPS(t *testing.T) {
	compiler, store := fixtureCompiler()
	rels := compiler.rels.(*fakeRels)
	// Remove one Texas county to force a 1-1 tie with Louisiana.
	rels.edges["county_cbsa"] = []relation.Edge{
		primary("48201", "26420", 100),
		primary("22071", "26420", 100),
	}

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "22", store.records["26420"].PrimaryState)
}

func TestCompile_StateRecord(t *testing.T) {
	compiler, store := fixtureCompiler()

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"US", "48"}, store.records["48"].Path)
}

func TestCompile_PathLengthsAreStablePerType(t *testing.T) {
	compiler, store := fixtureCompiler()

	_, err := compiler.Compile(context.Background())
	require.NoError(t, err)

	for geoid, rec := range store.records {
		assert.Len(t, rec.Path, PathLen(rec.GeoType), "geoid %s", geoid)
		assert.Equal(t, Root, rec.Path[0])
		assert.Equal(t, geoid, rec.Path[len(rec.Path)-1])
	}
}

func TestPathLen(t *testing.T) {
	assert.Equal(t, 2, PathLen(geometry.State))
	assert.Equal(t, 3, PathLen(geometry.CBSA))
	assert.Equal(t, 4, PathLen(geometry.County))
	assert.Equal(t, 5, PathLen(geometry.Place))
	assert.Equal(t, 6, PathLen(geometry.ZCTA))
	assert.Zero(t, PathLen(geometry.GeoType("tract")))
}
