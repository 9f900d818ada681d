package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/governor/internal/models"
)

// Sentinel errors for action store operations
var (
	ErrActionNotFound      = errors.New("action not found")
	ErrActionAlreadyExists = errors.New("action already exists")
)

// ActionFilter narrows ListActions. Empty fields are ignored; set fields are ANDed.
type ActionFilter struct {
	Status    models.ActionStatus
	UserID    string
	ProjectID string
	OrgID     string
	Limit     int
}

// ActionStore persists governed actions.
type ActionStore interface {
	// CreateAction inserts a new action row.
	CreateAction(ctx context.Context, action *models.Action) error

	// GetAction returns ErrActionNotFound when the id is unknown.
	GetAction(ctx context.Context, actionID string) (*models.Action, error)

	// SetDraftContent attaches serialized draft content to an existing action.
	// Returns ErrActionNotFound if the action doesn't exist.
	SetDraftContent(ctx context.Context, actionID string, content []byte) error

	// TransitionAction applies t only if the action is currently in t.From.
	// It reports whether a row changed; false means the action is missing or
	// another caller already moved it. This is the only concurrency guard for
	// approval races and must be a single conditional write.
	TransitionAction(ctx context.Context, t models.ActionTransition) (bool, error)

	// ListActions returns actions matching filter, oldest first.
	ListActions(ctx context.Context, filter ActionFilter) ([]*models.Action, error)
}

// AuditStore is the append-only governance decision log.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error

	// ListAudit returns the newest entries for an organization first.
	ListAudit(ctx context.Context, orgID string, limit int) ([]*models.AuditLogEntry, error)
}
