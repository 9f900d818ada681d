package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// OrganizationType is the commercial tier of a tenant.
type OrganizationType string

const (
	OrganizationTypeDemo  OrganizationType = "DEMO"
	OrganizationTypeTrial OrganizationType = "TRIAL"
	OrganizationTypePaid  OrganizationType = "PAID"
)

// Valid reports whether t is a known tier.
func (t OrganizationType) Valid() bool {
	switch t {
	case OrganizationTypeDemo, OrganizationTypeTrial, OrganizationTypePaid:
		return true
	}
	return false
}

// Rank orders tiers for upgrade checks. DEMO < TRIAL < PAID.
func (t OrganizationType) Rank() int {
	switch t {
	case OrganizationTypeDemo:
		return 0
	case OrganizationTypeTrial:
		return 1
	case OrganizationTypePaid:
		return 2
	}
	return -1
}

// ParseOrganizationType converts a case-insensitive string into an OrganizationType.
func ParseOrganizationType(s string) (OrganizationType, error) {
	t := OrganizationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid organization type %q", s)
	}
	return t, nil
}

// Organization represents a tenant in the system.
type Organization struct {
	OrgID           string           `json:"id"`
	Name            string           `json:"name"`
	Type            OrganizationType `json:"organizationType"`
	IsActive        bool             `json:"isActive"`
	TrialStartedAt  *time.Time       `json:"trialStartedAt,omitempty"`
	TrialExpiresAt  *time.Time       `json:"trialExpiresAt,omitempty"`
	TrialTokensUsed int64            `json:"trialTokensUsed"` // cumulative, hard budget
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Unlimited marks a limit that is never enforced.
const Unlimited = -1

// OrganizationLimits holds the numeric quotas for a tenant.
// A missing row means the type-specific defaults apply.
type OrganizationLimits struct {
	OrgID            string   `json:"organizationId"`
	MaxProjects      int64    `json:"maxProjects"`
	MaxUsers         int64    `json:"maxUsers"`
	MaxAICallsPerDay int64    `json:"maxAICallsPerDay"`
	MaxInitiatives   int64    `json:"maxInitiatives"`
	MaxStorageMB     int64    `json:"maxStorageMb"`
	MaxTotalTokens   int64    `json:"maxTotalTokens"`
	AIRolesEnabled   []AIRole `json:"aiRolesEnabled"`
}

// RoleEnabled reports whether role is in the enabled set.
func (l *OrganizationLimits) RoleEnabled(role AIRole) bool {
	return slices.Contains(l.AIRolesEnabled, role)
}

// DefaultLimits returns the limits applied to a tenant of type t when no
// limits row exists.
func DefaultLimits(orgID string, t OrganizationType) *OrganizationLimits {
	switch t {
	case OrganizationTypeDemo:
		return &OrganizationLimits{
			OrgID:            orgID,
			MaxProjects:      1,
			MaxUsers:         1,
			MaxAICallsPerDay: 10,
			MaxInitiatives:   5,
			MaxStorageMB:     10,
			MaxTotalTokens:   10_000,
			AIRolesEnabled:   []AIRole{AIRoleAdvisor},
		}
	case OrganizationTypePaid:
		return &OrganizationLimits{
			OrgID:            orgID,
			MaxProjects:      Unlimited,
			MaxUsers:         Unlimited,
			MaxAICallsPerDay: Unlimited,
			MaxInitiatives:   Unlimited,
			MaxStorageMB:     Unlimited,
			MaxTotalTokens:   Unlimited,
			AIRolesEnabled:   []AIRole{AIRoleAdvisor, AIRoleManager, AIRoleOperator},
		}
	default:
		return &OrganizationLimits{
			OrgID:            orgID,
			MaxProjects:      3,
			MaxUsers:         4,
			MaxAICallsPerDay: 50,
			MaxInitiatives:   5,
			MaxStorageMB:     100,
			MaxTotalTokens:   100_000,
			AIRolesEnabled:   []AIRole{AIRoleAdvisor},
		}
	}
}

// CounterType names one of the per-day usage counters.
type CounterType string

const (
	CounterAICalls     CounterType = "ai_calls"
	CounterProjects    CounterType = "projects"
	CounterUsers       CounterType = "users"
	CounterInitiatives CounterType = "initiatives"
	CounterStorageMB   CounterType = "storage_mb"
)

// Column returns the usage_counters column backing the counter.
func (c CounterType) Column() (string, error) {
	switch c {
	case CounterAICalls:
		return "ai_calls_count", nil
	case CounterProjects:
		return "projects_count", nil
	case CounterUsers:
		return "users_count", nil
	case CounterInitiatives:
		return "initiatives_count", nil
	case CounterStorageMB:
		return "storage_used_mb", nil
	}
	return "", fmt.Errorf("unknown counter type %q", c)
}

// UsageCounters is one day of monotonically increasing usage for a tenant.
// When returned as totals, CounterDate is empty and the values are summed
// across every recorded day.
type UsageCounters struct {
	OrgID            string `json:"organizationId"`
	CounterDate      string `json:"counterDate,omitempty"` // UTC, YYYY-MM-DD
	AICallsCount     int64  `json:"aiCallsCount"`
	ProjectsCount    int64  `json:"projectsCount"`
	UsersCount       int64  `json:"usersCount"`
	InitiativesCount int64  `json:"initiativesCount"`
	StorageUsedMB    int64  `json:"storageUsedMb"`
}

// Add increments the counter named by c on u.
func (u *UsageCounters) Add(c CounterType, amount int64) {
	switch c {
	case CounterAICalls:
		u.AICallsCount += amount
	case CounterProjects:
		u.ProjectsCount += amount
	case CounterUsers:
		u.UsersCount += amount
	case CounterInitiatives:
		u.InitiativesCount += amount
	case CounterStorageMB:
		u.StorageUsedMB += amount
	}
}

// CounterDate formats t as the UTC calendar date used to key usage rows.
func CounterDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
