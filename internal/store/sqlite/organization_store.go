package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// OrganizationStore implements store.OrganizationStore, store.LimitsStore and
// store.PolicyStore on SQLite.
type OrganizationStore struct {
	db DBTX
}

var (
	_ store.OrganizationStore = (*OrganizationStore)(nil)
	_ store.LimitsStore       = (*OrganizationStore)(nil)
	_ store.PolicyStore       = (*OrganizationStore)(nil)
)

// NewOrganizationStore creates a SQLite organization store.
func NewOrganizationStore(db DBTX) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, organization_type, is_active, trial_started_at,
			trial_expires_at, trial_tokens_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		org.OrgID, org.Name, string(org.Type), boolToInt(org.IsActive),
		nullTime(org.TrialStartedAt), nullTime(org.TrialExpiresAt), org.TrialTokensUsed,
		formatTime(org.CreatedAt), formatTime(org.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrOrganizationAlreadyExists
	}
	return nil
}

func (s *OrganizationStore) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	var (
		org                        models.Organization
		orgType                    string
		isActive                   int
		trialStarted, trialExpires sql.NullString
		createdAt, updatedAt       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, organization_type, is_active, trial_started_at, trial_expires_at,
			trial_tokens_used, created_at, updated_at
		 FROM organizations WHERE id = ?`, orgID,
	).Scan(&org.OrgID, &org.Name, &orgType, &isActive, &trialStarted, &trialExpires,
		&org.TrialTokensUsed, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}

	org.Type = models.OrganizationType(orgType)
	org.IsActive = isActive != 0
	if org.TrialStartedAt, err = parseNullTime(trialStarted); err != nil {
		return nil, fmt.Errorf("parsing trial_started_at: %w", err)
	}
	if org.TrialExpiresAt, err = parseNullTime(trialExpires); err != nil {
		return nil, fmt.Errorf("parsing trial_expires_at: %w", err)
	}
	if org.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if org.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &org, nil
}

func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, organization_type = ?, is_active = ?,
			trial_started_at = ?, trial_expires_at = ?, trial_tokens_used = ?, updated_at = ?
		 WHERE id = ?`,
		org.Name, string(org.Type), boolToInt(org.IsActive),
		nullTime(org.TrialStartedAt), nullTime(org.TrialExpiresAt), org.TrialTokensUsed,
		formatTime(org.UpdatedAt), org.OrgID,
	)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	return requireRow(res, store.ErrOrganizationNotFound)
}

// AddTrialTokens increments the counter in place so concurrent calls add up.
func (s *OrganizationStore) AddTrialTokens(ctx context.Context, orgID string, tokens int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET trial_tokens_used = trial_tokens_used + ? WHERE id = ?`,
		tokens, orgID,
	)
	if err != nil {
		return fmt.Errorf("adding trial tokens: %w", err)
	}
	return requireRow(res, store.ErrOrganizationNotFound)
}

func (s *OrganizationStore) GetLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error) {
	var (
		l     models.OrganizationLimits
		roles string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT organization_id, max_projects, max_users, max_ai_calls_per_day, max_initiatives,
			max_storage_mb, max_total_tokens, ai_roles_enabled_json
		 FROM organization_limits WHERE organization_id = ?`, orgID,
	).Scan(&l.OrgID, &l.MaxProjects, &l.MaxUsers, &l.MaxAICallsPerDay, &l.MaxInitiatives,
		&l.MaxStorageMB, &l.MaxTotalTokens, &roles)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrLimitsNotFound
		}
		return nil, fmt.Errorf("getting organization limits: %w", err)
	}
	if err := json.Unmarshal([]byte(roles), &l.AIRolesEnabled); err != nil {
		return nil, fmt.Errorf("decoding ai_roles_enabled_json: %w", err)
	}
	return &l, nil
}

func (s *OrganizationStore) PutLimits(ctx context.Context, l *models.OrganizationLimits) error {
	roles := l.AIRolesEnabled
	if roles == nil {
		roles = []models.AIRole{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encoding ai roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO organization_limits (organization_id, max_projects, max_users,
			max_ai_calls_per_day, max_initiatives, max_storage_mb, max_total_tokens, ai_roles_enabled_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(organization_id) DO UPDATE SET
			max_projects = excluded.max_projects,
			max_users = excluded.max_users,
			max_ai_calls_per_day = excluded.max_ai_calls_per_day,
			max_initiatives = excluded.max_initiatives,
			max_storage_mb = excluded.max_storage_mb,
			max_total_tokens = excluded.max_total_tokens,
			ai_roles_enabled_json = excluded.ai_roles_enabled_json`,
		l.OrgID, l.MaxProjects, l.MaxUsers, l.MaxAICallsPerDay, l.MaxInitiatives,
		l.MaxStorageMB, l.MaxTotalTokens, string(rolesJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting organization limits: %w", err)
	}
	return nil
}

func (s *OrganizationStore) DeleteLimits(ctx context.Context, orgID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM organization_limits WHERE organization_id = ?`, orgID); err != nil {
		return fmt.Errorf("deleting organization limits: %w", err)
	}
	return nil
}

func (s *OrganizationStore) GetOrgPolicy(ctx context.Context, orgID string) (*models.OrgPolicy, error) {
	var (
		p                     models.OrgPolicy
		level, rules, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT organization_id, policy_level, auto_approve_rules, updated_at
		 FROM org_ai_policies WHERE organization_id = ?`, orgID,
	).Scan(&p.OrgID, &level, &rules, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("getting org policy: %w", err)
	}
	p.PolicyLevel = models.PolicyLevel(level)
	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, fmt.Errorf("decoding auto_approve_rules: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

func (s *OrganizationStore) PutOrgPolicy(ctx context.Context, p *models.OrgPolicy) error {
	rules := p.Rules
	if rules == nil {
		rules = []models.AutoApprovalRule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encoding auto approve rules: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO org_ai_policies (organization_id, policy_level, auto_approve_rules, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(organization_id) DO UPDATE SET
			policy_level = excluded.policy_level,
			auto_approve_rules = excluded.auto_approve_rules,
			updated_at = excluded.updated_at`,
		p.OrgID, string(p.PolicyLevel), string(rulesJSON), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting org policy: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
