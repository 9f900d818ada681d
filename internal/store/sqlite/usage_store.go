package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// UsageStore implements store.UsageStore on SQLite.
type UsageStore struct {
	db DBTX
}

var _ store.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a SQLite usage store.
func NewUsageStore(db DBTX) *UsageStore {
	return &UsageStore{db: db}
}

// Increment upserts the day row and adds amount to the counter column in one statement.
func (s *UsageStore) Increment(ctx context.Context, orgID, date string, counter models.CounterType, amount int64) error {
	col, err := counter.Column()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO usage_counters (organization_id, counter_date, %[1]s) VALUES (?, ?, ?)
		 ON CONFLICT(organization_id, counter_date) DO UPDATE SET %[1]s = %[1]s + excluded.%[1]s`, col)
	if _, err := s.db.ExecContext(ctx, query, orgID, date, amount); err != nil {
		return fmt.Errorf("incrementing %s: %w", col, err)
	}
	return nil
}

func (s *UsageStore) GetDaily(ctx context.Context, orgID, date string) (*models.UsageCounters, error) {
	u := &models.UsageCounters{OrgID: orgID, CounterDate: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT ai_calls_count, projects_count, users_count, initiatives_count, storage_used_mb
		 FROM usage_counters WHERE organization_id = ? AND counter_date = ?`, orgID, date,
	).Scan(&u.AICallsCount, &u.ProjectsCount, &u.UsersCount, &u.InitiativesCount, &u.StorageUsedMB)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("getting daily usage: %w", err)
	}
	return u, nil
}

func (s *UsageStore) GetTotals(ctx context.Context, orgID string) (*models.UsageCounters, error) {
	u := &models.UsageCounters{OrgID: orgID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ai_calls_count), 0), COALESCE(SUM(projects_count), 0),
			COALESCE(SUM(users_count), 0), COALESCE(SUM(initiatives_count), 0),
			COALESCE(SUM(storage_used_mb), 0)
		 FROM usage_counters WHERE organization_id = ?`, orgID,
	).Scan(&u.AICallsCount, &u.ProjectsCount, &u.UsersCount, &u.InitiativesCount, &u.StorageUsedMB)
	if err != nil {
		return nil, fmt.Errorf("summing usage: %w", err)
	}
	return u, nil
}
