package store

import (
	"context"

	"github.com/wolfeidau/governor/internal/models"
)

// UsageStore tracks per-day usage counters for tenants.
type UsageStore interface {
	// Increment adds amount to the named counter of the (orgID, date) row,
	// creating the row if needed. Implementations must do this as a single
	// atomic insert-or-add so concurrent increments never lose updates.
	Increment(ctx context.Context, orgID, date string, counter models.CounterType, amount int64) error

	// GetDaily returns the counters for one day. A missing row yields zeroes.
	GetDaily(ctx context.Context, orgID, date string) (*models.UsageCounters, error)

	// GetTotals sums every recorded day for the organization.
	GetTotals(ctx context.Context, orgID string) (*models.UsageCounters, error)
}
