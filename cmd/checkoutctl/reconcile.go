package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/di"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/config"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/observability"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/secrets"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

// reconcileCmd runs one sweep against the configured store, the same work the scheduler
// triggers over /internal/payments:reconcile.
func reconcileCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
		envFile   string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the gateway for stale non-final transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			resolver, err := secrets.NewResolver(ctx, secrets.Options{
				ProjectID: os.Getenv("API_SECRET_DEFAULT_PROJECT_ID"),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer resolver.Close()

			cfg, err := config.Load(ctx, config.WithEnvFile(envFile), config.WithSecretResolver(resolver))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			reg, err := di.OpenRegistry(ctx, cfg)
			if err != nil {
				return err
			}
			container, err := di.NewContainer(ctx, cfg, reg, di.WithLogger(logger))
			if err != nil {
				_ = reg.Close(ctx)
				return err
			}
			defer func() {
				if err := container.Close(context.Background()); err != nil {
					logger.Warn("close", zap.Error(err))
				}
			}()

			result, err := container.Services.Reconciliation.ReconcilePending(ctx, services.ReconcileSweepCommand{
				OlderThan: olderThan,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{
				"checked":   result.Checked,
				"finalized": result.Finalized,
				"pending":   result.Pending,
				"failed":    result.Failed,
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only transactions created before now minus this age (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum transactions to check (default from config)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with API_* settings")
	return cmd
}
