package commands

import (
	"context"
	"errors"
	"fmt"

	postgresstore "github.com/wolfeidau/governor/internal/store/postgres"
	sqlitestore "github.com/wolfeidau/governor/internal/store/sqlite"
)

// MigrateCmd applies the schema to a persistent store. Migrations are
// idempotent so running it twice is safe.
type MigrateCmd struct {
	Store StoreFlags `embed:""`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	switch c.Store.StoreType {
	case "postgres":
		if err := c.Store.PostgresStore.validate(); err != nil {
			return err
		}
		pool, err := postgresstore.NewPool(ctx, c.Store.PostgresStore.poolConfig())
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

	case "sqlite":
		db, err := sqlitestore.OpenDB(c.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("failed to close sqlite database: %w", err)
		}

	default:
		return errors.New("the memory store has no schema; use --store-type=postgres or sqlite")
	}

	log.Info().Str("store_type", c.Store.StoreType).Msg("Database migrations completed")
	return nil
}
