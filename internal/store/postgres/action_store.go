package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ActionStore implements store.ActionStore and store.AuditStore using PostgreSQL.
type ActionStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

var (
	_ store.ActionStore = (*ActionStore)(nil)
	_ store.AuditStore  = (*ActionStore)(nil)
)

// NewActionStore creates a new PostgreSQL-backed action store.
func NewActionStore(pool *pgxpool.Pool, cfg *StoreConfig) *ActionStore {
	return &ActionStore{pool: pool, cfg: cfg}
}

const actionColumns = `
	id, user_id, organization_id, project_id, action_type, payload, draft_content,
	ai_role, required_policy_level, current_policy_level, requires_approval, status,
	approved_by, approved_at, executed_at, created_at`

// CreateAction inserts a new action row.
func (s *ActionStore) CreateAction(ctx context.Context, a *models.Action) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	payload := string(a.Payload)
	if payload == "" {
		payload = "{}"
	}
	var draft *string
	if a.DraftContent != nil {
		d := string(a.DraftContent)
		draft = &d
	}

	query := `INSERT INTO ai_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.OrgID,
		nullText(a.ProjectID),
		string(a.Type),
		payload,
		draft,
		nullText(string(a.AIRole)),
		string(a.RequiredPolicyLevel),
		string(a.CurrentPolicyLevel),
		a.RequiresApproval,
		string(a.Status),
		nullText(a.ApprovedBy),
		a.ApprovedAt,
		a.ExecutedAt,
		a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrActionAlreadyExists
		}
		return fmt.Errorf("failed to create action: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("action_id", a.ID).
		Str("action_type", string(a.Type)).
		Str("status", string(a.Status)).
		Msg("Created action")

	return nil
}

// GetAction retrieves an action by ID.
func (s *ActionStore) GetAction(ctx context.Context, actionID string) (*models.Action, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+actionColumns+` FROM ai_actions WHERE id = $1`, actionID)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get action: %w", mapPostgresError(err))
	}

	return a, nil
}

// SetDraftContent attaches serialized draft content to an action.
func (s *ActionStore) SetDraftContent(ctx context.Context, actionID string, content []byte) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx,
		`UPDATE ai_actions SET draft_content = $2 WHERE id = $1`, actionID, string(content))
	if err != nil {
		return fmt.Errorf("failed to set draft content: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrActionNotFound
	}

	return nil
}

// TransitionAction is a single UPDATE guarded by the current status, so
// under READ COMMITTED only one concurrent caller can match the row.
func (s *ActionStore) TransitionAction(ctx context.Context, t models.ActionTransition) (bool, error) {
	// Illegal edges never reach the database
	if !models.CanTransition(t.From, t.To) {
		log.Debug().
			Str("action_id", t.ActionID).
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Msg("Refused illegal action transition")
		return false, nil
	}

	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE ai_actions SET
			status = $3,
			approved_by = CASE WHEN $3 = 'APPROVED' THEN $4 ELSE approved_by END,
			approved_at = CASE WHEN $3 = 'APPROVED' THEN $5 ELSE approved_at END,
			executed_at = CASE WHEN $3 = 'EXECUTED' THEN $5 ELSE executed_at END
		WHERE id = $1 AND status = $2
	`

	result, err := s.pool.Exec(ctx, query,
		t.ActionID,
		string(t.From),
		string(t.To),
		t.ActorID,
		t.At,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition action: %w", mapPostgresError(err))
	}

	changed := result.RowsAffected() == 1

	log.Debug().
		Str("action_id", t.ActionID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Bool("changed", changed).
		Msg("Transition action")

	return changed, nil
}

// ListActions returns actions matching filter, oldest first.
func (s *ActionStore) ListActions(ctx context.Context, filter store.ActionFilter) ([]*models.Action, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.OrgID != "" {
		add("organization_id = $%d", filter.OrgID)
	}

	query := `SELECT ` + actionColumns + ` FROM ai_actions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

// AppendAudit appends a decision to the audit log.
func (s *ActionStore) AppendAudit(ctx context.Context, e *models.AuditLogEntry) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO ai_audit_logs (
			id, user_id, organization_id, project_id, action_id, action_type,
			action_description, ai_role, policy_level, user_decision, user_feedback, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID,
		e.UserID,
		e.OrgID,
		nullText(e.ProjectID),
		e.ActionID,
		string(e.ActionType),
		e.ActionDescription,
		nullText(string(e.AIRole)),
		string(e.PolicyLevel),
		string(e.UserDecision),
		nullText(e.UserFeedback),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", mapPostgresError(err))
	}

	return nil
}

// ListAudit returns the newest entries for an organization first.
func (s *ActionStore) ListAudit(ctx context.Context, orgID string, limit int) ([]*models.AuditLogEntry, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, organization_id, project_id, action_id, action_type,
			action_description, ai_role, policy_level, user_decision, user_feedback, created_at
		FROM ai_audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC, seq DESC
	`
	args := []any{orgID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var (
			e                         models.AuditLogEntry
			projectID, role, feedback *string
			actionType, level, dec    string
		)
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.OrgID,
			&projectID,
			&e.ActionID,
			&actionType,
			&e.ActionDescription,
			&role,
			&level,
			&dec,
			&feedback,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ProjectID = deref(projectID)
		e.ActionType = models.ActionType(actionType)
		e.AIRole = models.AIRole(deref(role))
		e.PolicyLevel = models.PolicyLevel(level)
		e.UserDecision = models.UserDecision(dec)
		e.UserFeedback = deref(feedback)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}

func scanAction(row pgx.Row) (*models.Action, error) {
	var (
		a                                  models.Action
		projectID, draft, role, approvedBy *string
		actionType, required, current, st  string
		payload                            string
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.OrgID,
		&projectID,
		&actionType,
		&payload,
		&draft,
		&role,
		&required,
		&current,
		&a.RequiresApproval,
		&st,
		&approvedBy,
		&a.ApprovedAt,
		&a.ExecutedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ProjectID = deref(projectID)
	a.Type = models.ActionType(actionType)
	a.Payload = []byte(payload)
	if draft != nil {
		a.DraftContent = []byte(*draft)
	}
	a.AIRole = models.AIRole(deref(role))
	a.RequiredPolicyLevel = models.PolicyLevel(required)
	a.CurrentPolicyLevel = models.PolicyLevel(current)
	a.Status = models.ActionStatus(st)
	a.ApprovedBy = deref(approvedBy)
	a.ApprovedAt = utcPtr(a.ApprovedAt)
	a.ExecutedAt = utcPtr(a.ExecutedAt)
	a.CreatedAt = a.CreatedAt.UTC()

	return &a, nil
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
