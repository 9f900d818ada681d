// Package orchestrator sequences the governance gates and owns the action lifecycle.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/gates"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/rules"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/wolfeidau/governor/internal/orchestrator"

// PolicyResolver decides whether the organization's policy level permits a proposal.
type PolicyResolver interface {
	CanPerformAction(ctx context.Context, orgID string, p rules.Proposal) (*rules.PolicyDecision, error)
}

// RoleGate checks the project's AI operating role.
type RoleGate interface {
	IsActionBlocked(ctx context.Context, orgID, projectID string, actionType models.ActionType) (*gates.RoleDecision, error)
}

// ComplianceGate checks the project's regulatory lock.
type ComplianceGate interface {
	EnforceRegulatoryMode(ctx context.Context, orgID, projectID string, actionType models.ActionType) (*gates.ComplianceDecision, error)
}

// Executor performs the side effect of an approved action.
type Executor func(ctx context.Context, action *models.Action) (*ExecutionOutput, error)

// Orchestrator is the governance facade.
type Orchestrator struct {
	actions    store.ActionStore
	audit      store.AuditStore
	policy     PolicyResolver
	roles      RoleGate
	compliance ComplianceGate
	work       WorkService
	executors  map[models.ActionType]Executor
	now        func() time.Time
	newID      func() string
	tracer     trace.Tracer

	executing sync.Map // action_id -> struct{} while its executor runs
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkService sets the service that materializes task and initiative drafts.
func WithWorkService(ws WorkService) Option {
	return func(o *Orchestrator) { o.work = ws }
}

// WithExecutor overrides the executor for one action type.
func WithExecutor(t models.ActionType, ex Executor) Option {
	return func(o *Orchestrator) { o.executors[t] = ex }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides action and audit id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an orchestrator from its collaborators.
func New(actions store.ActionStore, audit store.AuditStore, policy PolicyResolver, roles RoleGate, compliance ComplianceGate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		actions:    actions,
		audit:      audit,
		policy:     policy,
		roles:      roles,
		compliance: compliance,
		executors:  make(map[models.ActionType]Executor),
		now:        time.Now,
		newID:      newID,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RequestAction runs the gates in priority order (compliance, role, policy)
// and persists the action when none refuses. The first refusal short-circuits.
func (o *Orchestrator) RequestAction(ctx context.Context, caller models.Caller, actionType models.ActionType, payload map[string]any) (*RequestResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.RequestAction", trace.WithAttributes(
		attribute.String("action_type", string(actionType)),
		attribute.String("org_id", caller.OrgID),
	))
	defer span.End()

	started := time.Now()
	m := telemetry.GetMetrics()
	m.ActionsRequestedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action_type", string(actionType))))
	defer func() {
		m.ActionRequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}()

	log := zerolog.Ctx(ctx).With().
		Str("user_id", caller.UserID).
		Str("org_id", caller.OrgID).
		Str("project_id", caller.ProjectID).
		Str("action_type", string(actionType)).
		Logger()

	if !actionType.Valid() {
		return &RequestResult{
			ErrorCode: CodeInvalidActionType,
			Reason:    fmt.Sprintf("unknown action type %q", actionType),
		}, nil
	}

	// tasks are owned by a project, so a task without one could never execute
	if actionType == models.ActionTypeCreateDraftTask && caller.ProjectID == "" {
		return &RequestResult{
			ErrorCode: CodeProjectRequired,
			Reason:    "task drafts require a project",
		}, nil
	}

	blocked := func(gate string) {
		m.ActionsBlockedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("gate", gate)))
	}

	var role models.AIRole
	roleForcedApproval := false

	if caller.ProjectID != "" {
		cd, err := o.compliance.EnforceRegulatoryMode(ctx, caller.OrgID, caller.ProjectID, actionType)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("compliance check: %w", err)
		}
		if cd.Blocked {
			blocked("compliance")
			log.Info().Str("reason", cd.Reason).Msg("action blocked by compliance lock")
			return &RequestResult{
				Blocked:               true,
				RegulatoryModeEnabled: cd.Reason == gates.ReasonRegulatoryMode,
				ErrorCode:             cd.Reason,
				Reason:                cd.Reason,
				Message:               cd.Message,
			}, nil
		}

		rd, err := o.roles.IsActionBlocked(ctx, caller.OrgID, caller.ProjectID, actionType)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("role check: %w", err)
		}
		if rd.Blocked {
			blocked("role")
			log.Info().Str("reason", rd.Reason).Str("role", string(rd.CurrentRole)).Msg("action blocked by role gate")
			return &RequestResult{
				Blocked:      true,
				ErrorCode:    rd.Reason,
				Reason:       rd.Reason,
				Message:      rd.Message,
				CurrentRole:  rd.CurrentRole,
				RoleRequired: rd.RoleRequired,
				Suggestion:   rd.Suggestion,
			}, nil
		}
		role = rd.CurrentRole
		roleForcedApproval = rd.RequiresApproval
	}

	proposal := rules.ProposalFor(actionType, payload)

	pd, err := o.policy.CanPerformAction(ctx, caller.OrgID, proposal)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("policy check: %w", err)
	}
	if !pd.Allowed {
		blocked("policy")
		log.Info().Str("required", string(pd.RequiredLevel)).Str("current", string(pd.CurrentLevel)).Msg("action requires policy upgrade")
		return &RequestResult{
			RequiresUpgrade:     true,
			ErrorCode:           CodeUpgradeRequired,
			Reason:              pd.Reason,
			RequiredPolicyLevel: pd.RequiredLevel,
			CurrentPolicyLevel:  pd.CurrentLevel,
		}, nil
	}

	requiresApproval := pd.RequiresApproval || roleForcedApproval

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	now := o.now().UTC()
	action := &models.Action{
		ID:                  o.newID(),
		UserID:              caller.UserID,
		OrgID:               caller.OrgID,
		ProjectID:           caller.ProjectID,
		Type:                actionType,
		Payload:             raw,
		AIRole:              role,
		RequiredPolicyLevel: pd.RequiredLevel,
		CurrentPolicyLevel:  pd.CurrentLevel,
		RequiresApproval:    requiresApproval,
		Status:              models.ActionStatusPending,
		CreatedAt:           now,
	}
	if !requiresApproval {
		action.Status = models.ActionStatusApproved
		action.ApprovedBy = models.AutoApprover
		action.ApprovedAt = &now
	}

	if err := o.actions.CreateAction(ctx, action); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persisting action: %w", err)
	}

	m.ActionTransitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(action.Status))))
	log.Info().
		Str("action_id", action.ID).
		Str("status", string(action.Status)).
		Bool("role_forced_approval", roleForcedApproval).
		Str("matched_rule", pd.MatchedRule).
		Msg("action requested")

	return &RequestResult{
		Success:             true,
		ActionID:            action.ID,
		Status:              action.Status,
		RequiresApproval:    requiresApproval,
		CurrentRole:         role,
		RequiredPolicyLevel: pd.RequiredLevel,
		CurrentPolicyLevel:  pd.CurrentLevel,
		MatchedRule:         pd.MatchedRule,
		Action:              action,
	}, nil
}

// CreateDraft requests the action matching draftType and, only on success,
// attaches the serialized draft. The two writes are independent: if the
// second fails the action exists without draft content and executors fall
// back to the payload.
func (o *Orchestrator) CreateDraft(ctx context.Context, caller models.Caller, draftType models.DraftType, content map[string]any) (*RequestResult, error) {
	actionType, ok := draftType.ActionType()
	if !ok {
		return &RequestResult{
			ErrorCode: CodeInvalidDraftType,
			Reason:    fmt.Sprintf("unknown draft type %q", draftType),
		}, nil
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encoding draft: %w", err)
	}
	if _, err := models.DecodeDraft(actionType, raw); err != nil {
		return &RequestResult{ErrorCode: CodeInvalidDraft, Reason: err.Error()}, nil
	}

	res, err := o.RequestAction(ctx, caller, actionType, content)
	if err != nil || !res.Success {
		return res, err
	}

	if err := o.actions.SetDraftContent(ctx, res.ActionID, raw); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("action_id", res.ActionID).Msg("failed to attach draft content")
		return res, fmt.Errorf("attaching draft to action %s: %w", res.ActionID, err)
	}
	res.Action.DraftContent = raw

	return res, nil
}
