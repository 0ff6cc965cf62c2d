package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/geo-hierarchy/internal/db"
	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/loader"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loaded geometry, edge counts, and hierarchy coverage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := printLoadStatus(ctx, pool); err != nil {
			return err
		}
		return printTableCounts(ctx, pool)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printLoadStatus(ctx context.Context, pool db.Pool) error {
	status, err := loader.Status(ctx, pool)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	if len(status) == 0 {
		fmt.Println("no geometry loaded yet")
		return nil
	}

	p := message.NewPrinter(language.English)
	p.Printf("%-8s %-6s %-6s %12s %12s %s\n", "layer", "fips", "year", "rows", "duration", "loaded at")
	fmt.Println(strings.Repeat("-", 70))
	for _, s := range status {
		p.Printf("%-8s %-6s %-6d %12d %10dms %s\n",
			s.Layer, s.StateFIPS, s.Year, s.RowCount, s.DurationMs,
			s.LoadedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func printTableCounts(ctx context.Context, pool db.Pool) error {
	p := message.NewPrinter(language.English)

	fmt.Println()
	for _, t := range geometry.AllTypes {
		n, err := countRows(ctx, pool, t.Table())
		if err != nil {
			return err
		}
		p.Printf("%-22s %12d\n", t.Table(), n)
	}
	for _, pair := range relation.Pairs {
		n, err := countRows(ctx, pool, pair.Table)
		if err != nil {
			return err
		}
		p.Printf("%-22s %12d\n", pair.Table, n)
	}
	n, err := countRows(ctx, pool, "geo.hierarchy")
	if err != nil {
		return err
	}
	p.Printf("%-22s %12d\n", "geo.hierarchy", n)
	return nil
}

// countRows counts rows of a table. Callers only pass registry-derived
// table names, never user input.
func countRows(ctx context.Context, pool db.Pool, table string) (int64, error) {
	var n int64
	row := pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table))
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "status: count %s", table)
	}
	return n, nil
}
