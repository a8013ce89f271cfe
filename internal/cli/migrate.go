package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"pfp-quiz-service/internal/config"
	"pfp-quiz-service/internal/infra/memory"
	pgstore "pfp-quiz-service/internal/infra/postgres"
	pgmigrations "pfp-quiz-service/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	var seedMock int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			if seedMock > 0 {
				return seedProfiles(cmd.Context(), cfg, seedMock)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&seedMock, "seed-mock", 0, "insert this many mock profiles per mode into the profiles table")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Printf("no new migrations")
		return nil
	}
	log.Printf("migrations applied: %s", group)
	return nil
}

func seedProfiles(ctx context.Context, cfg config.Config, count int) error {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := pgstore.NewProfileLoader(pool)
	for mode, profiles := range memory.MockPools(count) {
		if err := loader.SaveProfiles(ctx, mode, profiles); err != nil {
			return err
		}
		log.Printf("seeded %d %s profiles", len(profiles), mode)
	}
	return nil
}
