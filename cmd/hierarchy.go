package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/hierarchy"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy",
	Short: "Compile denormalized hierarchy records from relationship edges",
	Long: `Rebuilds geo.hierarchy from the stored relationship edges: primary and
full ancestor sets per entity plus the fixed-length hierarchy path. The
table is derived data and is regenerated in full on every run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := hierarchy.NewPostgresStore(pool)
		if err := store.Clear(ctx); err != nil {
			return eris.Wrap(err, "hierarchy")
		}

		compiler := hierarchy.NewCompiler(
			geometry.NewPostgresStore(pool),
			relation.NewPostgresStore(pool),
			store,
			cfg.Engine.WriteBatchSize,
		)
		stats, err := compiler.Compile(ctx)
		if err != nil {
			return eris.Wrap(err, "hierarchy")
		}

		p := message.NewPrinter(language.English)
		for _, t := range geometry.AllTypes {
			p.Printf("%-8s %10d records\n", t, stats.ByType[t])
		}
		p.Printf("total    %10d records\n", stats.Records)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hierarchyCmd)
}
