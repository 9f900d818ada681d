package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// OrganizationStore implements store.OrganizationStore, store.LimitsStore and
// store.PolicyStore using in-memory storage.
// This implementation is for testing and local development - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[string]*models.Organization       // org_id -> Organization
	limits        map[string]*models.OrganizationLimits // org_id -> limits row
	policies      map[string]*models.OrgPolicy          // org_id -> policy row
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[string]*models.Organization),
		limits:        make(map[string]*models.OrganizationLimits),
		policies:      make(map[string]*models.OrgPolicy),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	s.organizations[org.OrgID] = cloneOrg(org)

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrg(org), nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	org.UpdatedAt = time.Now()
	s.organizations[org.OrgID] = cloneOrg(org)

	return nil
}

// AddTrialTokens adds tokens to the cumulative counter under the store lock.
func (s *OrganizationStore) AddTrialTokens(ctx context.Context, orgID string, tokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}
	org.TrialTokensUsed += tokens

	return nil
}

// GetLimits returns the limits row for an organization.
func (s *OrganizationStore) GetLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.limits[orgID]
	if !exists {
		return nil, store.ErrLimitsNotFound
	}

	clone := *l
	clone.AIRolesEnabled = slices.Clone(l.AIRolesEnabled)
	return &clone, nil
}

// PutLimits inserts or replaces the limits row.
func (s *OrganizationStore) PutLimits(ctx context.Context, limits *models.OrganizationLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *limits
	clone.AIRolesEnabled = slices.Clone(limits.AIRolesEnabled)
	s.limits[limits.OrgID] = &clone

	return nil
}

// DeleteLimits removes the limits row if present.
func (s *OrganizationStore) DeleteLimits(ctx context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.limits, orgID)

	return nil
}

// GetOrgPolicy returns the policy row for an organization.
func (s *OrganizationStore) GetOrgPolicy(ctx context.Context, orgID string) (*models.OrgPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.policies[orgID]
	if !exists {
		return nil, store.ErrPolicyNotFound
	}

	clone := *p
	clone.Rules = slices.Clone(p.Rules)
	return &clone, nil
}

// PutOrgPolicy inserts or replaces the policy row.
func (s *OrganizationStore) PutOrgPolicy(ctx context.Context, policy *models.OrgPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *policy
	clone.Rules = slices.Clone(policy.Rules)
	clone.UpdatedAt = time.Now()
	s.policies[policy.OrgID] = &clone

	return nil
}

func cloneOrg(org *models.Organization) *models.Organization {
	clone := *org
	if org.TrialStartedAt != nil {
		t := *org.TrialStartedAt
		clone.TrialStartedAt = &t
	}
	if org.TrialExpiresAt != nil {
		t := *org.TrialExpiresAt
		clone.TrialExpiresAt = &t
	}
	return &clone
}
