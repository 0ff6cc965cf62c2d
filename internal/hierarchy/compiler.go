package hierarchy

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

// Compiler regenerates every hierarchy record from the relationship tables.
// It never runs incrementally: relationships changed upstream, so the whole
// derived layer is rebuilt. Missing edges yield records with empty
// primaries — that is a validator finding, not a compile error.
type Compiler struct {
	geoms     geometry.Store
	rels      relation.Store
	store     Store
	batchSize int
}

// NewCompiler creates a Compiler.
func NewCompiler(geoms geometry.Store, rels relation.Store, store Store, batchSize int) *Compiler {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Compiler{geoms: geoms, rels: rels, store: store, batchSize: batchSize}
}

// Stats summarizes one compile run.
type Stats struct {
	Records int64
	ByType  map[geometry.GeoType]int64
}

// edgeSet holds one pair type's edges indexed for O(1) lookups.
type edgeSet struct {
	primary map[string]string   // child → primary parent
	all     map[string][]string // child → every overlapping parent
	members map[string][]string // parent → every overlapping child
	primes  map[string][]string // parent → children whose primary is this parent
}

func indexEdges(edges []relation.Edge) *edgeSet {
	es := &edgeSet{
		primary: make(map[string]string),
		all:     make(map[string][]string),
		members: make(map[string][]string),
		primes:  make(map[string][]string),
	}
	for _, e := range edges {
		es.all[e.ChildGeoid] = append(es.all[e.ChildGeoid], e.ParentGeoid)
		es.members[e.ParentGeoid] = append(es.members[e.ParentGeoid], e.ChildGeoid)
		if e.IsPrimary {
			es.primary[e.ChildGeoid] = e.ParentGeoid
			es.primes[e.ParentGeoid] = append(es.primes[e.ParentGeoid], e.ChildGeoid)
		}
	}
	return es
}

// Compile rebuilds the hierarchy record for every entity of every type.
func (c *Compiler) Compile(ctx context.Context) (*Stats, error) {
	log := zap.L().With(zap.String("component", "hierarchy.compiler"))

	sets := make(map[string]*edgeSet, len(relation.Pairs))
	for _, pair := range relation.Pairs {
		edges, err := c.rels.AllEdges(ctx, pair)
		if err != nil {
			return nil, err
		}
		sets[pair.Name] = indexEdges(edges)
		log.Debug("loaded relationship edges", zap.String("pair", pair.Name), zap.Int("edges", len(edges)))
	}

	stats := &Stats{ByType: make(map[geometry.GeoType]int64)}
	for _, t := range geometry.AllTypes {
		n, err := c.compileType(ctx, t, sets)
		if err != nil {
			return nil, err
		}
		stats.ByType[t] = n
		stats.Records += n
		log.Info("hierarchy compiled for type", zap.String("geo_type", string(t)), zap.Int64("records", n))
	}

	return stats, nil
}

func (c *Compiler) compileType(ctx context.Context, t geometry.GeoType, sets map[string]*edgeSet) (int64, error) {
	ids, err := c.geoms.ListIDs(ctx, t)
	if err != nil {
		return 0, err
	}
	names, err := c.geoms.Names(ctx, t)
	if err != nil {
		return 0, err
	}
	areas, err := c.geoms.Areas(ctx, t)
	if err != nil {
		return 0, err
	}

	var written int64
	batch := make([]Record, 0, c.batchSize)
	for _, geoid := range ids {
		rec, err := c.build(t, geoid, sets)
		if err != nil {
			return written, err
		}
		rec.Name = names[geoid]
		rec.AreaKm2 = areas[geoid]

		batch = append(batch, *rec)
		if len(batch) >= c.batchSize {
			n, err := c.store.UpsertRecords(ctx, batch)
			if err != nil {
				return written, err
			}
			written += n
			batch = batch[:0]
		}
	}

	n, err := c.store.UpsertRecords(ctx, batch)
	if err != nil {
		return written, err
	}
	return written + n, nil
}

// build assembles one record from the indexed edge sets.
func (c *Compiler) build(t geometry.GeoType, geoid string, sets map[string]*edgeSet) (*Record, error) {
	rec := &Record{Geoid: geoid, GeoType: t}

	switch t {
	case geometry.State:
		rec.Path = []string{Root, geoid}

	case geometry.CBSA:
		c.buildCBSA(rec, geoid, sets["county_cbsa"])
		rec.Path = []string{Root, orUnknown(rec.PrimaryState), geoid}

	case geometry.County:
		state := statePrefix(geoid)
		rec.PrimaryState = state
		rec.AllStates = []string{state}
		cc := sets["county_cbsa"]
		rec.PrimaryCBSA = cc.primary[geoid]
		rec.AllCBSAs = sortedSet(cc.all[geoid])
		rec.Path = []string{Root, state, orUnknown(rec.PrimaryCBSA), geoid}

	case geometry.Place:
		state := statePrefix(geoid)
		rec.PrimaryState = state
		rec.AllStates = []string{state}
		pc := sets["place_county"]
		rec.PrimaryCounty = pc.primary[geoid]
		rec.AllCounties = sortedSet(pc.all[geoid])
		// Place→CBSA is never computed spatially; it rides the primary
		// county's primary CBSA.
		if rec.PrimaryCounty != "" {
			rec.PrimaryCBSA = sets["county_cbsa"].primary[rec.PrimaryCounty]
		}
		rec.Path = []string{Root, state, orUnknown(rec.PrimaryCBSA), orUnknown(rec.PrimaryCounty), geoid}

	case geometry.ZCTA:
		zc := sets["zcta_county"]
		rec.PrimaryCounty = zc.primary[geoid]
		rec.AllCounties = sortedSet(zc.all[geoid])
		rec.PrimaryPlace = sets["zcta_place"].primary[geoid]
		rec.AllPlaces = sortedSet(sets["zcta_place"].all[geoid])
		rec.PrimaryCBSA = sets["zcta_cbsa"].primary[geoid]
		rec.AllCBSAs = sortedSet(sets["zcta_cbsa"].all[geoid])
		// ZCTA→state rides ZCTA→county→state, never direct intersection.
		rec.PrimaryState = statePrefix(rec.PrimaryCounty)
		states := make([]string, 0, len(rec.AllCounties))
		for _, county := range rec.AllCounties {
			if s := statePrefix(county); s != "" {
				states = append(states, s)
			}
		}
		rec.AllStates = sortedSet(states)
		rec.Path = []string{
			Root,
			orUnknown(rec.PrimaryState),
			orUnknown(rec.PrimaryCBSA),
			orUnknown(rec.PrimaryCounty),
			orUnknown(rec.PrimaryPlace),
			geoid,
		}

	default:
		return nil, eris.Errorf("hierarchy: cannot compile type %q", t)
	}

	return rec, nil
}

// buildCBSA derives a CBSA's state ancestry from its member counties:
// primary_state is the state holding the plurality of primary-member
// counties (lowest state FIPS on a tie), all_states the union over every
// member county.
func (c *Compiler) buildCBSA(rec *Record, geoid string, countyCBSA *edgeSet) {
	members := countyCBSA.members[geoid]
	rec.AllCounties = sortedSet(members)

	var states []string
	for _, county := range members {
		if s := statePrefix(county); s != "" {
			states = append(states, s)
		}
	}
	rec.AllStates = sortedSet(states)

	counts := make(map[string]int)
	for _, county := range countyCBSA.primes[geoid] {
		if s := statePrefix(county); s != "" {
			counts[s]++
		}
	}
	best := ""
	for state, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && state < best) {
			best = state
		}
	}
	rec.PrimaryState = best
}

// statePrefix returns the 2-char state geoid embedded in a county or place
// geoid, or "" when the input is empty or malformed.
func statePrefix(geoid string) string {
	if len(geoid) < 2 {
		return ""
	}
	return geoid[:2]
}

// sortedSet dedupes and sorts a geoid list; insertion order carries no
// meaning in the ancestor sets.
func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
