package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/engine"
	"github.com/sells-group/reconcile-cli/internal/store"
	anthropicpkg "github.com/sells-group/reconcile-cli/pkg/anthropic"
	"github.com/sells-group/reconcile-cli/pkg/contractindex"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reconcile-cli",
	Short: "Invoice-to-contract reconciliation engine",
	Long:  "Matches extracted invoices against indexed contracts, flags field-level discrepancies, and stores one reconciliation record per invoice file.",
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

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "reconcile.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newEngine(st store.Store) *engine.Engine {
	indexClient := contractindex.NewClient(cfg.Index.Key,
		contractindex.WithBaseURL(cfg.Index.BaseURL),
		contractindex.WithRateLimit(cfg.Index.RateLimit, 1),
	)
	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	return engine.New(indexClient, aiClient, st, engine.Config{
		IndexName:         cfg.Index.Name,
		TopK:              cfg.Index.TopK,
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		AmountTolerance:   cfg.Reconcile.AmountTolerance,
		RetrieveTimeout:   cfg.Reconcile.RetrieveTimeout(),
		AdjudicateTimeout: cfg.Reconcile.AdjudicateTimeout(),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
