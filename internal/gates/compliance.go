package gates

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ReasonRegulatoryMode is reported when the compliance lock blocks an action.
const ReasonRegulatoryMode = "REGULATORY_MODE"

// ComplianceDecision is the outcome of ComplianceLock.EnforceRegulatoryMode.
type ComplianceDecision struct {
	Blocked bool   `json:"blocked"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ComplianceLock blocks every mutating action on projects in regulatory mode.
type ComplianceLock struct {
	projects store.ProjectSettingsStore
}

// NewComplianceLock creates a compliance lock.
func NewComplianceLock(projects store.ProjectSettingsStore) *ComplianceLock {
	return &ComplianceLock{projects: projects}
}

// EnforceRegulatoryMode blocks mutating action types when the project is
// locked, and every action on a project owned by another organization.
func (c *ComplianceLock) EnforceRegulatoryMode(ctx context.Context, orgID, projectID string, actionType models.ActionType) (*ComplianceDecision, error) {
	ps, err := c.projects.GetProjectSettings(ctx, projectID)
	if errors.Is(err, store.ErrProjectSettingsNotFound) {
		return &ComplianceDecision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for project %s: %w", projectID, err)
	}

	if foreignProject(ps, orgID) {
		return &ComplianceDecision{
			Blocked: true,
			Reason:  ReasonProjectNotInOrg,
			Message: "The project does not belong to your organization",
		}, nil
	}

	if !ps.RegulatoryMode || !actionType.Mutating() {
		return &ComplianceDecision{}, nil
	}

	return &ComplianceDecision{
		Blocked: true,
		Reason:  ReasonRegulatoryMode,
		Message: "This project operates in regulatory mode. The AI can explain and advise but cannot make changes.",
	}, nil
}
