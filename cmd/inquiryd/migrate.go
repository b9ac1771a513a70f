package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/observability"
	"github.com/inquirydesk/inquiry-service/internal/persistence"
	"github.com/inquirydesk/inquiry-service/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := observability.NewLogger(cfg.Logger, cfg.App)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if !pg.Enabled() {
			return errors.New("POSTGRES_DSN is required to run migrations")
		}

		if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Error("migration failed", zap.Error(err))
			return err
		}
		return nil
	},
}
