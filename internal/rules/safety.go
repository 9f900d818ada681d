package rules

import (
	"slices"

	"github.com/wolfeidau/governor/internal/models"
)

// These sets are fixed at compile time. Nothing in an organization policy or
// rule file can remove an entry.
var (
	neverAutoApproveRiskLevels = [...]models.RiskLevel{models.RiskHigh}
	alwaysManualActionTypes    = [...]models.ActionType{models.ActionTypeScheduleMeeting}
)

// NeverAutoApproveRiskLevels returns a copy of the risk levels that always need a human.
func NeverAutoApproveRiskLevels() []models.RiskLevel {
	return slices.Clone(neverAutoApproveRiskLevels[:])
}

// AlwaysManualActionTypes returns a copy of the action types that always need a human.
func AlwaysManualActionTypes() []models.ActionType {
	return slices.Clone(alwaysManualActionTypes[:])
}

// ForcesApproval reports whether p hits one of the safety sets.
func ForcesApproval(p Proposal) bool {
	return slices.Contains(neverAutoApproveRiskLevels[:], p.RiskLevel) ||
		slices.Contains(alwaysManualActionTypes[:], p.ActionType)
}
