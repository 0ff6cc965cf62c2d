package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geo-hierarchy/internal/config"
	"github.com/sells-group/geo-hierarchy/internal/db"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geo-hierarchy",
	Short: "Geographic relationship and hierarchy resolution engine",
	Long: `Loads Census TIGER/Line polygon layers into PostGIS, computes pairwise
polygon overlaps between geographic entity types (state, county, CBSA,
place, ZCTA), assigns primary parents, compiles denormalized hierarchy
records, and validates the result.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// openPool connects to the configured database.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	return db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
