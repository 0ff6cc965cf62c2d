package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/geo-hierarchy/internal/engine"
	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

var relateCmd = &cobra.Command{
	Use:   "relate",
	Short: "Compute pairwise overlap relationships between entity layers",
	Long: `Computes polygon overlap edges for the configured relationship pairs
(zcta-county, zcta-place, zcta-cbsa, place-county, county-cbsa) plus the
structural county-state path, assigning each child its primary parent.

Reruns are upsert-only by default: children already recorded complete are
skipped. Use --full-recompute to clear a pair and start over.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		pairsStr, _ := cmd.Flags().GetString("pairs")
		stateFIPS, _ := cmd.Flags().GetString("state")
		fullRecompute, _ := cmd.Flags().GetBool("full-recompute")
		workers, _ := cmd.Flags().GetInt("workers")

		if workers <= 0 {
			workers = cfg.Engine.Workers
		}

		opts := engine.Options{
			StateFIPS:     stateFIPS,
			FullRecompute: fullRecompute,
			Workers:       workers,
			FlushSize:     cfg.Engine.WriteBatchSize,
		}
		if pairsStr != "" {
			opts.Pairs = splitAndTrim(pairsStr)
		}

		eng := engine.New(
			geometry.NewPostgresStore(pool),
			relation.NewPostgresStore(pool),
		)
		sum, err := eng.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "relate")
		}

		printSummary(sum)
		return nil
	},
}

func init() {
	relateCmd.Flags().String("pairs", "", "comma-separated pair types (default: all)")
	relateCmd.Flags().String("state", "", "restrict children to one state FIPS code")
	relateCmd.Flags().Bool("full-recompute", false, "clear existing edges and progress before computing")
	relateCmd.Flags().Int("workers", 0, "overlap workers (default: from config or 8)")
	rootCmd.AddCommand(relateCmd)
}

func printSummary(sum *engine.Summary) {
	p := message.NewPrinter(language.English)

	p.Printf("run %s finished in %v\n", sum.RunID, sum.Elapsed.Round(1e9))
	p.Printf("%-14s %12s %10s %10s %8s %8s %10s\n",
		"pair", "children", "resumed", "edges", "skipped", "demoted", "elapsed")
	for _, ps := range sum.Pairs {
		skipped := ps.MissingGeometry + ps.Degenerate + ps.Invalid + ps.Faults
		p.Printf("%-14s %12d %10d %10d %8d %8d %10v\n",
			ps.Pair, ps.Children, ps.Resumed, ps.EdgesWritten, skipped, ps.Demotions, ps.Elapsed.Round(1e9))
	}
	p.Printf("total edges written: %d\n", sum.EdgesWritten)
}
