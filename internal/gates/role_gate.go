// Package gates holds the project-scoped checks that run before policy evaluation.
package gates

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// Reasons reported by RoleDecision.
const (
	ReasonRoleBlocked    = "ROLE_BLOCKED"
	ReasonRoleNotEnabled = "ROLE_NOT_ENABLED"
)

// ReasonProjectNotInOrg is reported by both gates when the project belongs
// to another organization.
const ReasonProjectNotInOrg = "PROJECT_NOT_IN_ORGANIZATION"

// foreignProject reports whether ps is owned by an organization other than orgID.
func foreignProject(ps *models.ProjectSettings, orgID string) bool {
	return ps != nil && ps.OrgID != "" && ps.OrgID != orgID
}

// DefaultRole applies to projects with no settings row.
const DefaultRole = models.AIRoleAdvisor

// RoleDecision is the outcome of RoleGate.IsActionBlocked.
type RoleDecision struct {
	Blocked          bool          `json:"blocked"`
	Reason           string        `json:"reason,omitempty"`
	Message          string        `json:"message,omitempty"`
	CurrentRole      models.AIRole `json:"currentRole,omitempty"`
	RoleRequired     models.AIRole `json:"roleRequired,omitempty"`
	Suggestion       string        `json:"suggestion,omitempty"`
	RequiresApproval bool          `json:"requiresApproval"`
}

// LimitsResolver returns the effective limits of an organization.
type LimitsResolver interface {
	GetOrganizationLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error)
}

var advisorAllowed = map[models.ActionType]bool{
	models.ActionTypeExplainContext:         true,
	models.ActionTypeAnalyzeRisks:           true,
	models.ActionTypePrepareDecisionSummary: true,
	models.ActionTypeGenerateReport:         true,
}

// RoleGate enforces the AI operating role configured on a project.
type RoleGate struct {
	projects store.ProjectSettingsStore
	limits   LimitsResolver
}

// NewRoleGate creates a role gate.
func NewRoleGate(projects store.ProjectSettingsStore, limits LimitsResolver) *RoleGate {
	return &RoleGate{projects: projects, limits: limits}
}

// RoleFor returns the role configured on the project, or DefaultRole.
func (g *RoleGate) RoleFor(ctx context.Context, projectID string) (models.AIRole, *models.ProjectSettings, error) {
	ps, err := g.projects.GetProjectSettings(ctx, projectID)
	if errors.Is(err, store.ErrProjectSettingsNotFound) {
		return DefaultRole, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load settings for project %s: %w", projectID, err)
	}
	if !ps.AIRole.Valid() {
		return DefaultRole, ps, nil
	}
	return ps.AIRole, ps, nil
}

// IsActionBlocked decides whether the project's AI role may perform actionType
// on behalf of orgID.
func (g *RoleGate) IsActionBlocked(ctx context.Context, orgID, projectID string, actionType models.ActionType) (*RoleDecision, error) {
	role, ps, err := g.RoleFor(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if foreignProject(ps, orgID) {
		zerolog.Ctx(ctx).Warn().
			Str("project_id", projectID).
			Str("org_id", orgID).
			Str("project_org_id", ps.OrgID).
			Msg("project belongs to another organization")
		return &RoleDecision{
			Blocked: true,
			Reason:  ReasonProjectNotInOrg,
			Message: "The project does not belong to your organization",
		}, nil
	}

	if ps != nil && role != DefaultRole {
		limits, err := g.limits.GetOrganizationLimits(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if !limits.RoleEnabled(role) {
			zerolog.Ctx(ctx).Debug().
				Str("project_id", projectID).
				Str("role", string(role)).
				Msg("AI role not enabled for organization")
			return &RoleDecision{
				Blocked:     true,
				Reason:      ReasonRoleNotEnabled,
				Message:     fmt.Sprintf("The %s role is not available on your plan", role),
				CurrentRole: role,
				Suggestion:  "Upgrade your plan to enable this AI role",
			}, nil
		}
	}

	d := &RoleDecision{CurrentRole: role}

	switch role {
	case models.AIRoleAdvisor:
		if !advisorAllowed[actionType] {
			d.Blocked = true
			d.Reason = ReasonRoleBlocked
			d.RoleRequired = models.AIRoleManager
			d.Message = fmt.Sprintf("The AI is in advisor mode and cannot perform %s", actionType)
			d.Suggestion = "Switch the project AI role to MANAGER to let the AI propose changes"
		}
	case models.AIRoleManager:
		d.RequiresApproval = actionType.Mutating()
	case models.AIRoleOperator:
	}

	return d, nil
}
