package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/governor/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrLimitsNotFound            = errors.New("organization limits not found")
	ErrPolicyNotFound            = errors.New("organization policy not found")
)

// OrganizationStore defines the interface for tenant storage operations.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if an organization with the same ID already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID string) (*models.Organization, error)

	// Update updates an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// AddTrialTokens atomically adds tokens to the cumulative token counter.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	AddTrialTokens(ctx context.Context, orgID string, tokens int64) error
}

// LimitsStore holds the optional per-tenant limits row.
// It is written only on tier change; billing and admin flows own the rest.
type LimitsStore interface {
	// GetLimits returns ErrLimitsNotFound when no row exists.
	GetLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error)

	// PutLimits inserts or replaces the limits row.
	PutLimits(ctx context.Context, limits *models.OrganizationLimits) error

	// DeleteLimits removes the limits row. Deleting a missing row is not an error.
	DeleteLimits(ctx context.Context, orgID string) error
}

// PolicyStore holds the per-tenant autonomy configuration.
type PolicyStore interface {
	// GetOrgPolicy returns ErrPolicyNotFound when no row exists.
	GetOrgPolicy(ctx context.Context, orgID string) (*models.OrgPolicy, error)

	// PutOrgPolicy inserts or replaces the policy row.
	PutOrgPolicy(ctx context.Context, policy *models.OrgPolicy) error
}
