package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/governor/internal/models"
)

type usageKey struct {
	orgID string
	date  string
}

// UsageStore implements store.UsageStore using in-memory storage.
type UsageStore struct {
	mu sync.Mutex

	rows map[usageKey]*models.UsageCounters
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		rows: make(map[usageKey]*models.UsageCounters),
	}
}

// Increment creates or adds to the (orgID, date) row under the store lock.
func (s *UsageStore) Increment(ctx context.Context, orgID, date string, counter models.CounterType, amount int64) error {
	if _, err := counter.Column(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{orgID: orgID, date: date}
	row, exists := s.rows[key]
	if !exists {
		row = &models.UsageCounters{OrgID: orgID, CounterDate: date}
		s.rows[key] = row
	}
	row.Add(counter, amount)

	return nil
}

// GetDaily returns a copy of the row for one day, or zeroes.
func (s *UsageStore) GetDaily(ctx context.Context, orgID, date string) (*models.UsageCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.rows[usageKey{orgID: orgID, date: date}]
	if !exists {
		return &models.UsageCounters{OrgID: orgID, CounterDate: date}, nil
	}
	clone := *row
	return &clone, nil
}

// GetTotals sums every day recorded for the organization.
func (s *UsageStore) GetTotals(ctx context.Context, orgID string) (*models.UsageCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := &models.UsageCounters{OrgID: orgID}
	for key, row := range s.rows {
		if key.orgID != orgID {
			continue
		}
		total.AICallsCount += row.AICallsCount
		total.ProjectsCount += row.ProjectsCount
		total.UsersCount += row.UsersCount
		total.InitiativesCount += row.InitiativesCount
		total.StorageUsedMB += row.StorageUsedMB
	}
	return total, nil
}
