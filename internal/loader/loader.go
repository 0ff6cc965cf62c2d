package loader

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geo-hierarchy/internal/db"
	"github.com/sells-group/geo-hierarchy/internal/geometry"
)

// Options configures one ingestion run.
type Options struct {
	Year        int      // TIGER vintage (default 2024)
	Types       []string // entity types; empty = all five layers
	States      []string // state abbreviations for per-state layers; empty = all
	TempDir     string   // archive cache directory
	Concurrency int      // parallel per-state downloads (default 3)
	BatchSize   int      // upsert batch size (default 50,000)
	RatePerSec  float64  // download rate limit
	Incremental bool     // skip (layer, state, year) combos already loaded
	DryRun      bool     // download and parse without writing
}

// StatusRow is one row of geo.load_status.
type StatusRow struct {
	Layer      string
	StateFIPS  string
	Year       int
	RowCount   int
	LoadedAt   time.Time
	DurationMs int
}

const defaultBatchSize = 50000

// Load ingests the selected layers. National layers load sequentially;
// per-state layers fan out across states with bounded concurrency.
func Load(ctx context.Context, pool db.Pool, opts Options) error {
	if opts.Year == 0 {
		opts.Year = 2024
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.TempDir == "" {
		opts.TempDir = "/tmp/geo-hierarchy/tiger"
	}

	log := zap.L().With(zap.String("component", "loader"), zap.Int("year", opts.Year))

	layers, err := selectLayers(opts.Types)
	if err != nil {
		return err
	}
	states, err := ResolveStates(opts.States)
	if err != nil {
		return err
	}

	dl := NewDownloader(opts.TempDir, opts.RatePerSec)

	for _, layer := range layers {
		if layer.National {
			if err := loadLayer(ctx, pool, dl, layer, "us", opts); err != nil {
				return eris.Wrapf(err, "loader: load %s", layer.Type)
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, fips := range states {
			g.Go(func() error {
				return loadLayer(gctx, pool, dl, layer, fips, opts)
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrapf(err, "loader: load %s", layer.Type)
		}
	}

	log.Info("geometry load complete", zap.Int("layers", len(layers)))
	return nil
}

func selectLayers(types []string) ([]Layer, error) {
	if len(types) == 0 {
		return Layers, nil
	}
	out := make([]Layer, 0, len(types))
	for _, s := range types {
		t, err := geometry.ParseGeoType(s)
		if err != nil {
			return nil, err
		}
		layer, err := LayerByType(t)
		if err != nil {
			return nil, err
		}
		out = append(out, layer)
	}
	return out, nil
}

// loadLayer handles one (layer, partition) archive end to end.
func loadLayer(ctx context.Context, pool db.Pool, dl *Downloader, layer Layer, stateFIPS string, opts Options) error {
	log := zap.L().With(
		zap.String("component", "loader"),
		zap.String("layer", string(layer.Type)),
		zap.String("state_fips", stateFIPS),
	)

	if opts.Incremental {
		loaded, err := isLoaded(ctx, pool, layer, stateFIPS, opts.Year)
		if err != nil {
			return err
		}
		if loaded {
			log.Debug("already loaded, skipping")
			return nil
		}
	}

	start := time.Now()

	shpPath, err := dl.Fetch(ctx, DownloadURL(layer, opts.Year, stateFIPS))
	if err != nil {
		return err
	}

	rows, err := ParseLayer(shpPath, layer)
	if err != nil {
		return err
	}
	log.Info("shapefile parsed", zap.Int("rows", len(rows)))

	if opts.DryRun {
		log.Info("dry run, skipping write")
		return nil
	}

	var total int64
	for i := 0; i < len(rows); i += opts.BatchSize {
		end := min(i+opts.BatchSize, len(rows))
		n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
			Table:        layer.Type.Table(),
			Columns:      append(append([]string{}, layer.Columns...), "geom"),
			ConflictKeys: []string{"geoid"},
		}, rows[i:end])
		if err != nil {
			return eris.Wrapf(err, "loader: upsert %s rows %d-%d", layer.Type, i, end)
		}
		total += n
	}

	elapsed := time.Since(start)
	if err := recordLoad(ctx, pool, layer, stateFIPS, opts.Year, total, elapsed); err != nil {
		log.Warn("failed to record load status", zap.Error(err))
	}

	log.Info("layer loaded", zap.Int64("rows", total), zap.Duration("elapsed", elapsed))
	return nil
}

func isLoaded(ctx context.Context, pool db.Pool, layer Layer, stateFIPS string, year int) (bool, error) {
	var count int
	row := pool.QueryRow(ctx,
		`SELECT count(*) FROM geo.load_status WHERE layer = $1 AND state_fips = $2 AND year = $3`,
		string(layer.Type), stateFIPS, year)
	if err := row.Scan(&count); err != nil {
		return false, eris.Wrap(err, "loader: check load status")
	}
	return count > 0, nil
}

func recordLoad(ctx context.Context, pool db.Pool, layer Layer, stateFIPS string, year int, rowCount int64, elapsed time.Duration) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO geo.load_status (layer, state_fips, year, row_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (layer, state_fips, year) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			loaded_at = now(),
			duration_ms = EXCLUDED.duration_ms`,
		string(layer.Type), stateFIPS, year, rowCount, elapsed.Milliseconds())
	if err != nil {
		return eris.Wrap(err, "loader: record load status")
	}
	return nil
}

// Status returns the per-layer load ledger.
func Status(ctx context.Context, pool db.Pool) ([]StatusRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT layer, state_fips, year, row_count, loaded_at, COALESCE(duration_ms, 0)
		FROM geo.load_status
		ORDER BY layer, state_fips`)
	if err != nil {
		return nil, eris.Wrap(err, "loader: query load status")
	}
	defer rows.Close()

	var status []StatusRow
	for rows.Next() {
		var sr StatusRow
		if err := rows.Scan(&sr.Layer, &sr.StateFIPS, &sr.Year, &sr.RowCount, &sr.LoadedAt, &sr.DurationMs); err != nil {
			return nil, eris.Wrap(err, "loader: scan load status row")
		}
		status = append(status, sr)
	}
	return status, rows.Err()
}
