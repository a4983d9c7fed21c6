package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizapp-service/internal/infra/postgres"
)

// NewMigrateCmd applies (or rolls back) database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, rollback)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "revert the last applied migration group")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, rollback bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()

	if rollback {
		group, err := postgres.Rollback(ctx, db)
		if err != nil {
			return err
		}
		if group.IsZero() {
			log.Info("nothing to roll back")
			return nil
		}
		log.Info("rolled back", zap.Stringer("group", group))
		return nil
	}

	group, err := postgres.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.Info("migrations applied", zap.Stringer("group", group))
	return nil
}
