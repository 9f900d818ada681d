package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionType identifies the kind of work the assistant wants to perform.
type ActionType string

const (
	ActionTypeCreateDraftTask        ActionType = "CREATE_DRAFT_TASK"
	ActionTypeCreateDraftInitiative  ActionType = "CREATE_DRAFT_INITIATIVE"
	ActionTypeSuggestRoadmapChange   ActionType = "SUGGEST_ROADMAP_CHANGE"
	ActionTypeGenerateReport         ActionType = "GENERATE_REPORT"
	ActionTypePrepareDecisionSummary ActionType = "PREPARE_DECISION_SUMMARY"
	ActionTypeExplainContext         ActionType = "EXPLAIN_CONTEXT"
	ActionTypeAnalyzeRisks           ActionType = "ANALYZE_RISKS"

	// ActionTypeScheduleMeeting touches other people's calendars and is
	// always routed through a human.
	ActionTypeScheduleMeeting ActionType = "SCHEDULE_MEETING"
)

// AllActionTypes lists every known action type.
var AllActionTypes = []ActionType{
	ActionTypeCreateDraftTask,
	ActionTypeCreateDraftInitiative,
	ActionTypeSuggestRoadmapChange,
	ActionTypeGenerateReport,
	ActionTypePrepareDecisionSummary,
	ActionTypeExplainContext,
	ActionTypeAnalyzeRisks,
	ActionTypeScheduleMeeting,
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	for _, known := range AllActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Mutating reports whether executing t changes project state.
func (t ActionType) Mutating() bool {
	switch t {
	case ActionTypeCreateDraftTask,
		ActionTypeCreateDraftInitiative,
		ActionTypeSuggestRoadmapChange,
		ActionTypeScheduleMeeting:
		return true
	}
	return false
}

// ParseActionType converts a case-insensitive string into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid action type %q", s)
	}
	return t, nil
}

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "PENDING"
	ActionStatusApproved ActionStatus = "APPROVED"
	ActionStatusRejected ActionStatus = "REJECTED"
	ActionStatusExecuted ActionStatus = "EXECUTED"
)

// CanTransition reports whether the edge from -> to is legal.
// Only PENDING -> APPROVED|REJECTED and APPROVED -> EXECUTED exist.
func CanTransition(from, to ActionStatus) bool {
	switch from {
	case ActionStatusPending:
		return to == ActionStatusApproved || to == ActionStatusRejected
	case ActionStatusApproved:
		return to == ActionStatusExecuted
	}
	return false
}

// AutoApprover is recorded as the approver of actions that skipped the human step.
const AutoApprover = "system:auto-approval"

// Action is the unit of governed work.
// Payload and DraftContent are stored as raw JSON and may be malformed;
// use DecodePayload and DecodeDraft to read them.
type Action struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"userId"`
	OrgID               string          `json:"organizationId"`
	ProjectID           string          `json:"projectId,omitempty"`
	Type                ActionType      `json:"actionType"`
	Payload             json.RawMessage `json:"-"`
	DraftContent        json.RawMessage `json:"-"`
	AIRole              AIRole          `json:"aiRole,omitempty"`
	RequiredPolicyLevel PolicyLevel     `json:"requiredPolicyLevel"`
	CurrentPolicyLevel  PolicyLevel     `json:"currentPolicyLevel"`
	RequiresApproval    bool            `json:"requiresApproval"`
	Status              ActionStatus    `json:"status"`
	ApprovedBy          string          `json:"approvedBy,omitempty"`
	ApprovedAt          *time.Time      `json:"approvedAt,omitempty"`
	ExecutedAt          *time.Time      `json:"executedAt,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// Clone returns a deep copy of a.
func (a *Action) Clone() *Action {
	c := *a
	c.Payload = append(json.RawMessage(nil), a.Payload...)
	if a.DraftContent != nil {
		c.DraftContent = append(json.RawMessage(nil), a.DraftContent...)
	}
	if a.ApprovedAt != nil {
		t := *a.ApprovedAt
		c.ApprovedAt = &t
	}
	if a.ExecutedAt != nil {
		t := *a.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}

// DecodePayload parses the stored payload as a JSON object.
func (a *Action) DecodePayload() (map[string]any, error) {
	if len(a.Payload) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(a.Payload, &m); err != nil {
		return nil, fmt.Errorf("decoding payload of action %s: %w", a.ID, err)
	}
	return m, nil
}

// ActionTransition describes a conditional status change.
// Stores apply it only if the action is currently in From.
type ActionTransition struct {
	ActionID string
	From     ActionStatus
	To       ActionStatus
	ActorID  string
	At       time.Time
}

// UserDecision is the human verdict recorded in the audit log.
type UserDecision string

const (
	UserDecisionApproved UserDecision = "APPROVED"
	UserDecisionRejected UserDecision = "REJECTED"
)

// AuditLogEntry is an immutable record of a governance decision.
type AuditLogEntry struct {
	ID                string       `json:"id"`
	UserID            string       `json:"userId"`
	OrgID             string       `json:"organizationId"`
	ProjectID         string       `json:"projectId,omitempty"`
	ActionID          string       `json:"actionId"`
	ActionType        ActionType   `json:"actionType"`
	ActionDescription string       `json:"actionDescription"`
	AIRole            AIRole       `json:"aiRole,omitempty"`
	PolicyLevel       PolicyLevel  `json:"policyLevel"`
	UserDecision      UserDecision `json:"userDecision"`
	UserFeedback      string       `json:"userFeedback,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// Caller is the already-authenticated identity issuing a request.
type Caller struct {
	UserID    string
	OrgID     string
	ProjectID string // optional
}

// DraftType is the user-facing name of a draftable entity.
type DraftType string

const (
	DraftTypeTask       DraftType = "task"
	DraftTypeInitiative DraftType = "initiative"
)

// ActionType maps the draft type to the action that materializes it.
func (d DraftType) ActionType() (ActionType, bool) {
	switch d {
	case DraftTypeTask:
		return ActionTypeCreateDraftTask, true
	case DraftTypeInitiative:
		return ActionTypeCreateDraftInitiative, true
	}
	return "", false
}

// ErrNoDraftSchema is returned by DecodeDraft for action types that carry no draft.
var ErrNoDraftSchema = errors.New("action type has no draft schema")

// Draft is a proposed, not yet persisted domain object.
type Draft interface {
	DraftActionType() ActionType
}

// TaskDraft is the schema of CREATE_DRAFT_TASK payloads and draft content.
type TaskDraft struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Priority     string `json:"priority,omitempty"`
	AssigneeID   string `json:"assigneeId,omitempty"`
	InitiativeID string `json:"initiativeId,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
}

func (TaskDraft) DraftActionType() ActionType { return ActionTypeCreateDraftTask }

// InitiativeDraft is the schema of CREATE_DRAFT_INITIATIVE payloads and draft content.
type InitiativeDraft struct {
	Name      string `json:"name"`
	Summary   string `json:"summary,omitempty"`
	Objective string `json:"objective,omitempty"`
	OwnerID   string `json:"ownerId,omitempty"`
}

func (InitiativeDraft) DraftActionType() ActionType { return ActionTypeCreateDraftInitiative }

// DecodeDraft parses raw into the draft schema for t.
func DecodeDraft(t ActionType, raw []byte) (Draft, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch t {
	case ActionTypeCreateDraftTask:
		var d TaskDraft
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decoding task draft: %w", err)
		}
		return d, nil
	case ActionTypeCreateDraftInitiative:
		var d InitiativeDraft
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decoding initiative draft: %w", err)
		}
		return d, nil
	}
	return nil, ErrNoDraftSchema
}

// Task is a project work item created when a task draft is executed.
type Task struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	CreatedBy      string    `json:"createdBy"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	AssigneeID     string    `json:"assigneeId,omitempty"`
	Status         string    `json:"status"`
	SourceActionID string    `json:"sourceActionId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// InitiativeStatusDraft is the status of initiatives created from AI drafts.
const InitiativeStatusDraft = "DRAFT"

// Initiative is a strategic initiative created when an initiative draft is executed.
type Initiative struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"organizationId"`
	ProjectID      string    `json:"projectId,omitempty"`
	Name           string    `json:"name"`
	Summary        string    `json:"summary,omitempty"`
	Objective      string    `json:"objective,omitempty"`
	OwnerID        string    `json:"ownerId"`
	Status         string    `json:"status"`
	SourceActionID string    `json:"sourceActionId"`
	CreatedAt      time.Time `json:"createdAt"`
}
