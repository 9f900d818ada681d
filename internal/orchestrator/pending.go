package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
)

// GetPendingActions lists PENDING actions, oldest first, with their stored
// JSON decoded. Rows with malformed JSON are returned with nil fields.
func (o *Orchestrator) GetPendingActions(ctx context.Context, filter PendingFilter) ([]*PendingAction, error) {
	actions, err := o.actions.ListActions(ctx, store.ActionFilter{
		Status:    models.ActionStatusPending,
		UserID:    filter.UserID,
		ProjectID: filter.ProjectID,
		OrgID:     filter.OrgID,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending actions: %w", err)
	}

	out := make([]*PendingAction, 0, len(actions))
	for _, a := range actions {
		pa := &PendingAction{Action: a}

		if payload, err := a.DecodePayload(); err != nil {
			o.decodeFailed(ctx, a, "payload", err)
		} else {
			pa.Payload = payload
		}

		if len(a.DraftContent) > 0 {
			if draft, err := models.DecodeDraft(a.Type, a.DraftContent); err != nil {
				o.decodeFailed(ctx, a, "draft_content", err)
			} else {
				pa.Draft = draft
			}
		}

		out = append(out, pa)
	}

	return out, nil
}

func (o *Orchestrator) decodeFailed(ctx context.Context, a *models.Action, field string, err error) {
	telemetry.GetMetrics().PendingPayloadDecodeFailure.Add(ctx, 1)
	zerolog.Ctx(ctx).Warn().Err(err).
		Str("action_id", a.ID).
		Str("field", field).
		Msg("stored JSON could not be decoded")
}

// GetAction returns a single action.
func (o *Orchestrator) GetAction(ctx context.Context, actionID string) (*models.Action, error) {
	return o.actions.GetAction(ctx, actionID)
}

// ListAuditLog returns the newest audit entries for an organization first.
func (o *Orchestrator) ListAuditLog(ctx context.Context, orgID string, limit int) ([]*models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := o.audit.ListAudit(ctx, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	return entries, nil
}
