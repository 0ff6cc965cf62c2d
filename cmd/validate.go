package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geo-hierarchy/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the consistency battery over edges and hierarchy records",
	Long: `Runs the read-only consistency checks: duplicate primaries, weak
primaries, out-of-range percentages, overlap sums outside the tolerance
band, ZCTAs without county edges, entities without hierarchy records, and
hierarchy/edge primary disagreements.

Findings are reported, not fatal: the command exits 0 unless a query
fails.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		v := validate.New(pool, cfg.Engine.OverlapSumLow, cfg.Engine.OverlapSumHigh)
		report, err := v.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		for _, f := range report.Findings {
			fmt.Printf("%-8s %-18s %-14s %-8s %s\n",
				f.Severity, f.Check, f.Pair, f.Geoid, f.Detail)
		}
		fmt.Printf("%d errors, %d warnings\n", report.Errors, report.Warnings)

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrapf(err, "validate: create %s", out)
			}
			defer f.Close() //nolint:errcheck
			if err := report.WriteYAML(f); err != nil {
				return err
			}
			fmt.Printf("report written to %s\n", out)
		}

		return nil
	},
}

func init() {
	validateCmd.Flags().String("out", "", "write the full report as YAML to this path")
	rootCmd.AddCommand(validateCmd)
}
