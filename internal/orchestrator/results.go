package orchestrator

import (
	"github.com/wolfeidau/governor/internal/models"
)

// Error codes carried by failed results.
const (
	CodeInvalidActionType  = "INVALID_ACTION_TYPE"
	CodeInvalidDraftType   = "INVALID_DRAFT_TYPE"
	CodeInvalidDraft       = "INVALID_DRAFT"
	CodeProjectRequired    = "PROJECT_REQUIRED"
	CodeRegulatoryMode     = "REGULATORY_MODE"
	CodeUpgradeRequired    = "POLICY_UPGRADE_REQUIRED"
	CodeActionNotFound     = "ACTION_NOT_FOUND"
	CodeAlreadyProcessed   = "ACTION_ALREADY_PROCESSED"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeExecutionFailed    = "EXECUTION_FAILED"
	msgNotFoundOrProcessed = "not found or already processed"
)

// RequestResult is returned by RequestAction and CreateDraft. Refusals are
// reported here rather than as errors.
type RequestResult struct {
	Success               bool                `json:"success"`
	ActionID              string              `json:"actionId,omitempty"`
	Status                models.ActionStatus `json:"status,omitempty"`
	RequiresApproval      bool                `json:"requiresApproval"`
	Blocked               bool                `json:"blocked,omitempty"`
	RegulatoryModeEnabled bool                `json:"regulatoryModeEnabled,omitempty"`
	RequiresUpgrade       bool                `json:"requiresUpgrade,omitempty"`
	ErrorCode             string              `json:"errorCode,omitempty"`
	Reason                string              `json:"reason,omitempty"`
	Message               string              `json:"message,omitempty"`
	CurrentRole           models.AIRole       `json:"currentRole,omitempty"`
	RoleRequired          models.AIRole       `json:"roleRequired,omitempty"`
	Suggestion            string              `json:"suggestion,omitempty"`
	RequiredPolicyLevel   models.PolicyLevel  `json:"requiredPolicyLevel,omitempty"`
	CurrentPolicyLevel    models.PolicyLevel  `json:"currentPolicyLevel,omitempty"`
	MatchedRule           string              `json:"matchedRule,omitempty"`
	Action                *models.Action      `json:"action,omitempty"`
}

// TransitionResult is returned by ApproveAction and RejectAction.
type TransitionResult struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"errorCode,omitempty"`
	Action    *models.Action `json:"action,omitempty"`
}

// ExecutionOutput describes the side effect of a successful execution.
type ExecutionOutput struct {
	Message    string `json:"message"`
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
}

// ExecuteResult is returned by ExecuteAction.
type ExecuteResult struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	ErrorCode string           `json:"errorCode,omitempty"`
	Output    *ExecutionOutput `json:"output,omitempty"`
	Action    *models.Action   `json:"action,omitempty"`
}

// PendingAction is an action with its stored JSON decoded. Payload and Draft
// are nil when the stored value is missing or malformed.
type PendingAction struct {
	*models.Action
	Payload map[string]any `json:"payload"`
	Draft   models.Draft   `json:"draftContent"`
}

// PendingFilter narrows GetPendingActions. Set fields are ANDed.
type PendingFilter struct {
	UserID    string
	ProjectID string
	OrgID     string
	Limit     int
}
