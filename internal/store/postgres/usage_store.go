package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// UsageStore implements store.UsageStore using PostgreSQL.
type UsageStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

var _ store.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a new PostgreSQL-backed usage store.
func NewUsageStore(pool *pgxpool.Pool, cfg *StoreConfig) *UsageStore {
	return &UsageStore{pool: pool, cfg: cfg}
}

// Increment upserts the day row and adds amount in a single statement.
func (s *UsageStore) Increment(ctx context.Context, orgID, date string, counter models.CounterType, amount int64) error {
	col, err := counter.Column()
	if err != nil {
		return err
	}

	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	// col comes from a fixed set so it is safe to interpolate
	query := fmt.Sprintf(`
		INSERT INTO usage_counters (organization_id, counter_date, %[1]s)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (organization_id, counter_date) DO UPDATE SET
			%[1]s = usage_counters.%[1]s + EXCLUDED.%[1]s
	`, col)

	if _, err := s.pool.Exec(ctx, query, orgID, date, amount); err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, mapPostgresError(err))
	}

	return nil
}

// GetDaily returns one day of counters, zeroed when no row exists.
func (s *UsageStore) GetDaily(ctx context.Context, orgID, date string) (*models.UsageCounters, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ai_calls_count, projects_count, users_count, initiatives_count, storage_used_mb
		FROM usage_counters
		WHERE organization_id = $1 AND counter_date = $2::date
	`

	u := &models.UsageCounters{OrgID: orgID, CounterDate: date}
	err := s.pool.QueryRow(ctx, query, orgID, date).Scan(
		&u.AICallsCount,
		&u.ProjectsCount,
		&u.UsersCount,
		&u.InitiativesCount,
		&u.StorageUsedMB,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get daily usage: %w", mapPostgresError(err))
	}

	return u, nil
}

// GetTotals sums every recorded day for the organization.
func (s *UsageStore) GetTotals(ctx context.Context, orgID string) (*models.UsageCounters, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT COALESCE(SUM(ai_calls_count), 0)::bigint,
			COALESCE(SUM(projects_count), 0)::bigint,
			COALESCE(SUM(users_count), 0)::bigint,
			COALESCE(SUM(initiatives_count), 0)::bigint,
			COALESCE(SUM(storage_used_mb), 0)::bigint
		FROM usage_counters
		WHERE organization_id = $1
	`

	u := &models.UsageCounters{OrgID: orgID}
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&u.AICallsCount,
		&u.ProjectsCount,
		&u.UsersCount,
		&u.InitiativesCount,
		&u.StorageUsedMB,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", mapPostgresError(err))
	}

	return u, nil
}
