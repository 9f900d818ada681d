// Package postgres implements the governance stores on PostgreSQL using a shared pgx pool.
package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/governor/internal/store"
)

// NewStores returns every PostgreSQL store sharing pool.
func NewStores(pool *pgxpool.Pool, cfg *StoreConfig) (*store.Stores, error) {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	orgs := NewOrganizationStore(pool, cfg)
	actions := NewActionStore(pool, cfg)
	projects := NewProjectStore(pool, cfg)

	return &store.Stores{
		Organizations: orgs,
		Limits:        orgs,
		Policies:      orgs,
		Usage:         NewUsageStore(pool, cfg),
		Actions:       actions,
		Audit:         actions,
		Projects:      projects,
		Work:          projects,
	}, nil
}
