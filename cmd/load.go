package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/loader"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Download TIGER/Line polygon layers and load them into geo.*",
	Long: `Downloads Census TIGER/Line archives for the five entity layers (state,
county, cbsa, place, zcta), parses the shapefiles, and bulk-upserts the
polygons into the geo.* entity tables. Places ship one archive per state;
everything else is national.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := loader.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "load: migrate")
		}

		typesStr, _ := cmd.Flags().GetString("types")
		statesStr, _ := cmd.Flags().GetString("states")
		year, _ := cmd.Flags().GetInt("year")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		incremental, _ := cmd.Flags().GetBool("incremental")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		opts := loader.Options{
			Year:        year,
			TempDir:     cfg.Loader.TempDir,
			Concurrency: concurrency,
			BatchSize:   cfg.Loader.BatchSize,
			RatePerSec:  cfg.Loader.RatePerSec,
			Incremental: incremental,
			DryRun:      dryRun,
		}
		if typesStr != "" {
			opts.Types = splitAndTrim(typesStr)
		}
		if statesStr != "" {
			opts.States = splitAndTrim(statesStr)
		}
		if opts.Year == 0 {
			opts.Year = cfg.Loader.Year
		}
		if opts.Concurrency == 0 {
			opts.Concurrency = cfg.Loader.Concurrency
		}

		zap.L().Info("starting geometry load",
			zap.Int("year", opts.Year),
			zap.Strings("types", opts.Types),
			zap.Strings("states", opts.States),
			zap.Bool("incremental", opts.Incremental),
			zap.Bool("dry_run", opts.DryRun),
		)

		if err := loader.Load(ctx, pool, opts); err != nil {
			return eris.Wrap(err, "load")
		}

		fmt.Println("geometry load complete")
		return nil
	},
}

func init() {
	loadCmd.Flags().String("types", "", "comma-separated entity types (default: all five)")
	loadCmd.Flags().String("states", "", "comma-separated state abbreviations for per-state layers (default: all 50 + DC)")
	loadCmd.Flags().Int("year", 0, "TIGER/Line year (default: from config or 2024)")
	loadCmd.Flags().Int("concurrency", 0, "parallel state downloads (default: from config or 3)")
	loadCmd.Flags().Bool("incremental", true, "skip already-loaded layer/state/year combos")
	loadCmd.Flags().Bool("dry-run", false, "download and parse without writing")
	rootCmd.AddCommand(loadCmd)
}

// splitAndTrim splits a comma-separated flag value into trimmed parts.
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
