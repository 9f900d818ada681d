package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ActionStore implements store.ActionStore and store.AuditStore on SQLite.
type ActionStore struct {
	db DBTX
}

var (
	_ store.ActionStore = (*ActionStore)(nil)
	_ store.AuditStore  = (*ActionStore)(nil)
)

// NewActionStore creates a SQLite action store.
func NewActionStore(db DBTX) *ActionStore {
	return &ActionStore{db: db}
}

const actionColumns = `id, user_id, organization_id, project_id, action_type, payload, draft_content,
	ai_role, required_policy_level, current_policy_level, requires_approval, status,
	approved_by, approved_at, executed_at, created_at`

func (s *ActionStore) CreateAction(ctx context.Context, a *models.Action) error {
	payload := string(a.Payload)
	if payload == "" {
		payload = "{}"
	}
	var draft any
	if a.DraftContent != nil {
		draft = string(a.DraftContent)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_actions (`+actionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.UserID, a.OrgID, nullString(a.ProjectID), string(a.Type), payload, draft,
		nullString(string(a.AIRole)), string(a.RequiredPolicyLevel), string(a.CurrentPolicyLevel),
		boolToInt(a.RequiresApproval), string(a.Status),
		nullString(a.ApprovedBy), nullTime(a.ApprovedAt), nullTime(a.ExecutedAt), formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrActionAlreadyExists
	}
	return nil
}

func (s *ActionStore) GetAction(ctx context.Context, actionID string) (*models.Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM ai_actions WHERE id = ?`, actionID)
	a, err := scanAction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrActionNotFound
		}
		return nil, fmt.Errorf("getting action: %w", err)
	}
	return a, nil
}

func (s *ActionStore) SetDraftContent(ctx context.Context, actionID string, content []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ai_actions SET draft_content = ? WHERE id = ?`, string(content), actionID)
	if err != nil {
		return fmt.Errorf("setting draft content: %w", err)
	}
	return requireRow(res, store.ErrActionNotFound)
}

// TransitionAction is a single UPDATE guarded by the current status.
// Illegal edges are refused without touching the row.
func (s *ActionStore) TransitionAction(ctx context.Context, t models.ActionTransition) (bool, error) {
	if !models.CanTransition(t.From, t.To) {
		return false, nil
	}

	var (
		query string
		args  []any
	)
	switch t.To {
	case models.ActionStatusApproved:
		query = `UPDATE ai_actions SET status = ?, approved_by = ?, approved_at = ? WHERE id = ? AND status = ?`
		args = []any{string(t.To), t.ActorID, formatTime(t.At), t.ActionID, string(t.From)}
	case models.ActionStatusExecuted:
		query = `UPDATE ai_actions SET status = ?, executed_at = ? WHERE id = ? AND status = ?`
		args = []any{string(t.To), formatTime(t.At), t.ActionID, string(t.From)}
	default:
		query = `UPDATE ai_actions SET status = ? WHERE id = ? AND status = ?`
		args = []any{string(t.To), t.ActionID, string(t.From)}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transitioning action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ActionStore) ListActions(ctx context.Context, filter store.ActionFilter) ([]*models.Action, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.OrgID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, filter.OrgID)
	}

	query := `SELECT ` + actionColumns + ` FROM ai_actions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	var result []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *ActionStore) AppendAudit(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_audit_logs (id, user_id, organization_id, project_id, action_id, action_type,
			action_description, ai_role, policy_level, user_decision, user_feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.OrgID, nullString(e.ProjectID), e.ActionID, string(e.ActionType),
		e.ActionDescription, nullString(string(e.AIRole)), string(e.PolicyLevel),
		string(e.UserDecision), nullString(e.UserFeedback), formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func (s *ActionStore) ListAudit(ctx context.Context, orgID string, limit int) ([]*models.AuditLogEntry, error) {
	query := `SELECT id, user_id, organization_id, project_id, action_id, action_type,
			action_description, ai_role, policy_level, user_decision, user_feedback, created_at
		 FROM ai_audit_logs WHERE organization_id = ?
		 ORDER BY created_at DESC, rowid DESC`
	args := []any{orgID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLogEntry
	for rows.Next() {
		var (
			e                         models.AuditLogEntry
			projectID, role, feedback sql.NullString
			actionType, level, dec    string
			createdAt                 string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrgID, &projectID, &e.ActionID, &actionType,
			&e.ActionDescription, &role, &level, &dec, &feedback, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.ProjectID = projectID.String
		e.ActionType = models.ActionType(actionType)
		e.AIRole = models.AIRole(role.String)
		e.PolicyLevel = models.PolicyLevel(level)
		e.UserDecision = models.UserDecision(dec)
		e.UserFeedback = feedback.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (*models.Action, error) {
	var (
		a                                  models.Action
		projectID, draft, role, approvedBy sql.NullString
		approvedAt, executedAt             sql.NullString
		actionType, required, current, st  string
		payload, createdAt                 string
		requiresApproval                   int
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.OrgID, &projectID, &actionType, &payload, &draft,
		&role, &required, &current, &requiresApproval, &st,
		&approvedBy, &approvedAt, &executedAt, &createdAt); err != nil {
		return nil, err
	}

	a.ProjectID = projectID.String
	a.Type = models.ActionType(actionType)
	a.Payload = []byte(payload)
	if draft.Valid {
		a.DraftContent = []byte(draft.String)
	}
	a.AIRole = models.AIRole(role.String)
	a.RequiredPolicyLevel = models.PolicyLevel(required)
	a.CurrentPolicyLevel = models.PolicyLevel(current)
	a.RequiresApproval = requiresApproval != 0
	a.Status = models.ActionStatus(st)
	a.ApprovedBy = approvedBy.String

	var err error
	if a.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, fmt.Errorf("parsing approved_at: %w", err)
	}
	if a.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return nil, fmt.Errorf("parsing executed_at: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &a, nil
}
