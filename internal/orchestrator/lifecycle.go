package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ApproveAction moves a PENDING action to APPROVED. The conditional write is
// the only concurrency guard: if it matches no row, another caller already
// resolved the action and nothing is written.
func (o *Orchestrator) ApproveAction(ctx context.Context, actionID, approverID string) (*TransitionResult, error) {
	return o.decide(ctx, actionID, approverID, models.ActionStatusApproved, "")
}

// RejectAction moves a PENDING action to REJECTED, recording reason as feedback.
func (o *Orchestrator) RejectAction(ctx context.Context, actionID, userID, reason string) (*TransitionResult, error) {
	return o.decide(ctx, actionID, userID, models.ActionStatusRejected, reason)
}

func (o *Orchestrator) decide(ctx context.Context, actionID, actorID string, to models.ActionStatus, feedback string) (*TransitionResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.decide", trace.WithAttributes(
		attribute.String("action_id", actionID),
		attribute.String("to", string(to)),
	))
	defer span.End()

	m := telemetry.GetMetrics()
	log := zerolog.Ctx(ctx).With().Str("action_id", actionID).Str("actor_id", actorID).Logger()

	ok, err := o.actions.TransitionAction(ctx, models.ActionTransition{
		ActionID: actionID,
		From:     models.ActionStatusPending,
		To:       to,
		ActorID:  actorID,
		At:       o.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transitioning action %s to %s: %w", actionID, to, err)
	}
	if !ok {
		m.ActionTransitionConflicts.Add(ctx, 1)
		log.Debug().Str("to", string(to)).Msg("conditional update matched no pending action")
		return &TransitionResult{Error: msgNotFoundOrProcessed, ErrorCode: CodeAlreadyProcessed}, nil
	}
	m.ActionTransitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))

	action, err := o.actions.GetAction(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("loading action %s: %w", actionID, err)
	}

	decision := models.UserDecisionApproved
	if to == models.ActionStatusRejected {
		decision = models.UserDecisionRejected
	}

	entry := &models.AuditLogEntry{
		ID:                o.newID(),
		UserID:            actorID,
		OrgID:             action.OrgID,
		ProjectID:         action.ProjectID,
		ActionID:          action.ID,
		ActionType:        action.Type,
		ActionDescription: describe(action),
		AIRole:            action.AIRole,
		PolicyLevel:       action.CurrentPolicyLevel,
		UserDecision:      decision,
		UserFeedback:      feedback,
		CreatedAt:         o.now().UTC(),
	}
	if err := o.audit.AppendAudit(ctx, entry); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appending audit entry for action %s: %w", actionID, err)
	}

	log.Info().Str("status", string(to)).Msg("action decided")

	return &TransitionResult{Success: true, Action: action}, nil
}

// ExecuteAction performs the side effect of an APPROVED action and marks it
// EXECUTED. A failing executor leaves the action APPROVED so it can be retried.
func (o *Orchestrator) ExecuteAction(ctx context.Context, actionID, userID string) (*ExecuteResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ExecuteAction", trace.WithAttributes(
		attribute.String("action_id", actionID),
	))
	defer span.End()

	m := telemetry.GetMetrics()
	log := zerolog.Ctx(ctx).With().Str("action_id", actionID).Str("user_id", userID).Logger()

	// claimed before the status read so a caller arriving after release sees EXECUTED
	if _, busy := o.executing.LoadOrStore(actionID, struct{}{}); busy {
		m.ActionTransitionConflicts.Add(ctx, 1)
		return &ExecuteResult{Error: "action is already being executed", ErrorCode: CodeAlreadyProcessed}, nil
	}
	defer o.executing.Delete(actionID)

	action, err := o.actions.GetAction(ctx, actionID)
	if errors.Is(err, store.ErrActionNotFound) {
		return &ExecuteResult{Error: "action not found", ErrorCode: CodeActionNotFound}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading action %s: %w", actionID, err)
	}

	if action.Status != models.ActionStatusApproved {
		return &ExecuteResult{
			Error:     fmt.Sprintf("action is %s, not APPROVED", action.Status),
			ErrorCode: CodeInvalidStatus,
			Action:    action,
		}, nil
	}

	out, err := o.dispatch(ctx, action)
	if err != nil {
		m.ActionExecutionErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action_type", string(action.Type))))
		log.Error().Err(err).Str("action_type", string(action.Type)).Msg("action execution failed")
		return &ExecuteResult{Error: err.Error(), ErrorCode: CodeExecutionFailed, Action: action}, nil
	}

	ok, err := o.actions.TransitionAction(ctx, models.ActionTransition{
		ActionID: actionID,
		From:     models.ActionStatusApproved,
		To:       models.ActionStatusExecuted,
		ActorID:  userID,
		At:       o.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("marking action %s executed: %w", actionID, err)
	}
	if !ok {
		m.ActionTransitionConflicts.Add(ctx, 1)
		return &ExecuteResult{Error: msgNotFoundOrProcessed, ErrorCode: CodeAlreadyProcessed, Output: out}, nil
	}
	m.ActionTransitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(models.ActionStatusExecuted))))

	action, err = o.actions.GetAction(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("loading action %s: %w", actionID, err)
	}

	log.Info().Str("entity_id", out.EntityID).Msg("action executed")

	return &ExecuteResult{Success: true, Output: out, Action: action}, nil
}

// describe renders a short human summary for the audit log.
func describe(a *models.Action) string {
	raw := a.DraftContent
	if len(raw) == 0 {
		raw = a.Payload
	}
	if d, err := models.DecodeDraft(a.Type, raw); err == nil && d != nil {
		switch v := d.(type) {
		case models.TaskDraft:
			if v.Title != "" {
				return fmt.Sprintf("Create task: %s", v.Title)
			}
		case models.InitiativeDraft:
			if v.Name != "" {
				return fmt.Sprintf("Create initiative: %s", v.Name)
			}
		}
	}
	return string(a.Type)
}
