package models

import (
	"fmt"
	"strings"
	"time"
)

// PolicyLevel is the autonomy tier an organization grants the assistant.
type PolicyLevel string

const (
	PolicyLevelAdvisory   PolicyLevel = "ADVISORY"
	PolicyLevelAssisted   PolicyLevel = "ASSISTED"
	PolicyLevelProactive  PolicyLevel = "PROACTIVE"
	PolicyLevelAutonomous PolicyLevel = "AUTONOMOUS"
)

var policyLevelRank = map[PolicyLevel]int{
	PolicyLevelAdvisory:   0,
	PolicyLevelAssisted:   1,
	PolicyLevelProactive:  2,
	PolicyLevelAutonomous: 3,
}

// Valid reports whether l is a known policy level.
func (l PolicyLevel) Valid() bool {
	_, ok := policyLevelRank[l]
	return ok
}

// Rank returns the position of l on the ordered scale, or -1 if unknown.
func (l PolicyLevel) Rank() int {
	if r, ok := policyLevelRank[l]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether l is at or above other. Unknown levels never satisfy.
func (l PolicyLevel) AtLeast(other PolicyLevel) bool {
	return l.Valid() && other.Valid() && l.Rank() >= other.Rank()
}

// ParsePolicyLevel converts a case-insensitive string into a PolicyLevel.
func ParsePolicyLevel(s string) (PolicyLevel, error) {
	l := PolicyLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("invalid policy level %q", s)
	}
	return l, nil
}

// RiskLevel classifies the potential impact of a proposed action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank returns LOW=0, MEDIUM=1, HIGH=2, or -1 for unknown values.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool { return r.Rank() >= 0 }

// Scope is the blast radius of a proposed action.
type Scope string

const (
	ScopeUser       Scope = "USER"
	ScopeOrg        Scope = "ORG"
	ScopeInitiative Scope = "INITIATIVE"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeUser, ScopeOrg, ScopeInitiative:
		return true
	}
	return false
}

// AIRole is the project-scoped operating mode of the assistant.
type AIRole string

const (
	AIRoleAdvisor  AIRole = "ADVISOR"  // explain and advise only
	AIRoleManager  AIRole = "MANAGER"  // may propose, never auto-execute
	AIRoleOperator AIRole = "OPERATOR" // autonomous within policy
)

// Valid reports whether r is a known role.
func (r AIRole) Valid() bool {
	switch r {
	case AIRoleAdvisor, AIRoleManager, AIRoleOperator:
		return true
	}
	return false
}

// ParseAIRole converts a case-insensitive string into an AIRole.
func ParseAIRole(s string) (AIRole, error) {
	r := AIRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid AI role %q", s)
	}
	return r, nil
}

// AutoApprovalRule lets matching proposals skip the human approval step.
// All conditions must match (AND).
type AutoApprovalRule struct {
	Name       string         `json:"name" yaml:"name"`
	Conditions map[string]any `json:"conditions" yaml:"conditions"`
}

// OrgPolicy is the per-organization autonomy configuration.
type OrgPolicy struct {
	OrgID       string             `json:"organizationId"`
	PolicyLevel PolicyLevel        `json:"policyLevel"`
	Rules       []AutoApprovalRule `json:"autoApproveRules"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ProjectSettings holds the governance flags of a single project.
type ProjectSettings struct {
	ProjectID      string    `json:"projectId"`
	OrgID          string    `json:"organizationId"`
	AIRole         AIRole    `json:"aiRole"`
	RegulatoryMode bool      `json:"regulatoryMode"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
