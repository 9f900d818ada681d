package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// OrganizationStore implements store.OrganizationStore, store.LimitsStore and
// store.PolicyStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

var (
	_ store.OrganizationStore = (*OrganizationStore)(nil)
	_ store.LimitsStore       = (*OrganizationStore)(nil)
	_ store.PolicyStore       = (*OrganizationStore)(nil)
)

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool, cfg *StoreConfig) *OrganizationStore {
	return &OrganizationStore{pool: pool, cfg: cfg}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO organizations (
			id, name, organization_type, is_active, trial_started_at, trial_expires_at,
			trial_tokens_used, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		string(org.Type),
		org.IsActive,
		org.TrialStartedAt,
		org.TrialExpiresAt,
		org.TrialTokensUsed,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID).
		Str("type", string(org.Type)).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, organization_type, is_active, trial_started_at, trial_expires_at,
			trial_tokens_used, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var (
		org     models.Organization
		orgType string
	)
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.OrgID,
		&org.Name,
		&orgType,
		&org.IsActive,
		&org.TrialStartedAt,
		&org.TrialExpiresAt,
		&org.TrialTokensUsed,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	org.Type = models.OrganizationType(orgType)
	org.TrialStartedAt = utcPtr(org.TrialStartedAt)
	org.TrialExpiresAt = utcPtr(org.TrialExpiresAt)
	org.CreatedAt = org.CreatedAt.UTC()
	org.UpdatedAt = org.UpdatedAt.UTC()

	return &org, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE organizations SET
			name = $2,
			organization_type = $3,
			is_active = $4,
			trial_started_at = $5,
			trial_expires_at = $6,
			trial_tokens_used = $7,
			updated_at = $8
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		string(org.Type),
		org.IsActive,
		org.TrialStartedAt,
		org.TrialExpiresAt,
		org.TrialTokensUsed,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.OrgID).
		Str("type", string(org.Type)).
		Msg("Updated organization")

	return nil
}

// AddTrialTokens adds to the cumulative token counter in a single statement.
func (s *OrganizationStore) AddTrialTokens(ctx context.Context, orgID string, tokens int64) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx,
		`UPDATE organizations SET trial_tokens_used = trial_tokens_used + $2 WHERE id = $1`,
		orgID, tokens,
	)
	if err != nil {
		return fmt.Errorf("failed to add trial tokens: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// GetLimits returns the limits row for an organization.
func (s *OrganizationStore) GetLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT organization_id, max_projects, max_users, max_ai_calls_per_day, max_initiatives,
			max_storage_mb, max_total_tokens, ai_roles_enabled
		FROM organization_limits
		WHERE organization_id = $1
	`

	var (
		l     models.OrganizationLimits
		roles []byte
	)
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&l.OrgID,
		&l.MaxProjects,
		&l.MaxUsers,
		&l.MaxAICallsPerDay,
		&l.MaxInitiatives,
		&l.MaxStorageMB,
		&l.MaxTotalTokens,
		&roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLimitsNotFound
		}
		return nil, fmt.Errorf("failed to get organization limits: %w", mapPostgresError(err))
	}

	if err := json.Unmarshal(roles, &l.AIRolesEnabled); err != nil {
		return nil, fmt.Errorf("failed to decode ai_roles_enabled: %w", err)
	}

	return &l, nil
}

// PutLimits inserts or replaces the limits row.
func (s *OrganizationStore) PutLimits(ctx context.Context, l *models.OrganizationLimits) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	roles := l.AIRolesEnabled
	if roles == nil {
		roles = []models.AIRole{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to encode ai roles: %w", err)
	}

	query := `
		INSERT INTO organization_limits (
			organization_id, max_projects, max_users, max_ai_calls_per_day, max_initiatives,
			max_storage_mb, max_total_tokens, ai_roles_enabled
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8::jsonb
		)
		ON CONFLICT (organization_id) DO UPDATE SET
			max_projects = EXCLUDED.max_projects,
			max_users = EXCLUDED.max_users,
			max_ai_calls_per_day = EXCLUDED.max_ai_calls_per_day,
			max_initiatives = EXCLUDED.max_initiatives,
			max_storage_mb = EXCLUDED.max_storage_mb,
			max_total_tokens = EXCLUDED.max_total_tokens,
			ai_roles_enabled = EXCLUDED.ai_roles_enabled
	`

	_, err = s.pool.Exec(ctx, query,
		l.OrgID,
		l.MaxProjects,
		l.MaxUsers,
		l.MaxAICallsPerDay,
		l.MaxInitiatives,
		l.MaxStorageMB,
		l.MaxTotalTokens,
		string(rolesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to put organization limits: %w", mapPostgresError(err))
	}

	return nil
}

// DeleteLimits removes the limits row.
func (s *OrganizationStore) DeleteLimits(ctx context.Context, orgID string) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM organization_limits WHERE organization_id = $1`, orgID); err != nil {
		return fmt.Errorf("failed to delete organization limits: %w", mapPostgresError(err))
	}

	return nil
}

// GetOrgPolicy returns the autonomy configuration for an organization.
func (s *OrganizationStore) GetOrgPolicy(ctx context.Context, orgID string) (*models.OrgPolicy, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT organization_id, policy_level, auto_approve_rules, updated_at
		FROM org_ai_policies
		WHERE organization_id = $1
	`

	var (
		p     models.OrgPolicy
		level string
		rules []byte
	)
	err := s.pool.QueryRow(ctx, query, orgID).Scan(&p.OrgID, &level, &rules, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get org policy: %w", mapPostgresError(err))
	}

	p.PolicyLevel = models.PolicyLevel(level)
	p.UpdatedAt = p.UpdatedAt.UTC()
	if err := json.Unmarshal(rules, &p.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode auto_approve_rules: %w", err)
	}

	return &p, nil
}

// PutOrgPolicy inserts or replaces the policy row.
func (s *OrganizationStore) PutOrgPolicy(ctx context.Context, p *models.OrgPolicy) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	rules := p.Rules
	if rules == nil {
		rules = []models.AutoApprovalRule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to encode auto approve rules: %w", err)
	}

	query := `
		INSERT INTO org_ai_policies (organization_id, policy_level, auto_approve_rules, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (organization_id) DO UPDATE SET
			policy_level = EXCLUDED.policy_level,
			auto_approve_rules = EXCLUDED.auto_approve_rules,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, p.OrgID, string(p.PolicyLevel), string(rulesJSON), p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to put org policy: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", p.OrgID).
		Str("policy_level", string(p.PolicyLevel)).
		Int("rules", len(rules)).
		Msg("Updated org policy")

	return nil
}
