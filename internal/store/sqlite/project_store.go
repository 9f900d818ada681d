package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ProjectStore implements store.ProjectSettingsStore and store.WorkStore on SQLite.
type ProjectStore struct {
	db DBTX
}

var (
	_ store.ProjectSettingsStore = (*ProjectStore)(nil)
	_ store.WorkStore            = (*ProjectStore)(nil)
)

// NewProjectStore creates a SQLite project store.
func NewProjectStore(db DBTX) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	var (
		ps              models.ProjectSettings
		role, updatedAt string
		regulatory      int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, organization_id, ai_role, regulatory_mode, updated_at
		 FROM project_ai_settings WHERE project_id = ?`, projectID,
	).Scan(&ps.ProjectID, &ps.OrgID, &role, &regulatory, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrProjectSettingsNotFound
		}
		return nil, fmt.Errorf("getting project settings: %w", err)
	}
	ps.AIRole = models.AIRole(role)
	ps.RegulatoryMode = regulatory != 0
	if ps.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &ps, nil
}

func (s *ProjectStore) PutProjectSettings(ctx context.Context, ps *models.ProjectSettings) error {
	role := ps.AIRole
	if role == "" {
		role = models.AIRoleAdvisor
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_ai_settings (project_id, organization_id, ai_role, regulatory_mode, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
			organization_id = excluded.organization_id,
			ai_role = excluded.ai_role,
			regulatory_mode = excluded.regulatory_mode,
			updated_at = excluded.updated_at`,
		ps.ProjectID, ps.OrgID, string(role), boolToInt(ps.RegulatoryMode), formatTime(ps.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting project settings: %w", err)
	}
	return nil
}

// CreateTask inserts t, or sets t.ID to the task already created for t.SourceActionID.
func (s *ProjectStore) CreateTask(ctx context.Context, t *models.Task) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, created_by, title, description, priority, assignee_id,
			status, source_action_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_action_id) DO NOTHING`,
		t.ID, t.ProjectID, t.CreatedBy, t.Title, t.Description, t.Priority, nullString(t.AssigneeID),
		t.Status, t.SourceActionID, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM tasks WHERE source_action_id = ?`, t.SourceActionID,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("loading existing task: %w", err)
	}
	return nil
}

// CreateInitiative inserts i, or sets i.ID to the initiative already created for i.SourceActionID.
func (s *ProjectStore) CreateInitiative(ctx context.Context, i *models.Initiative) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO initiatives (id, organization_id, project_id, name, summary, objective, owner_id,
			status, source_action_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_action_id) DO NOTHING`,
		i.ID, i.OrgID, nullString(i.ProjectID), i.Name, i.Summary, i.Objective, i.OwnerID,
		i.Status, i.SourceActionID, formatTime(i.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting initiative: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM initiatives WHERE source_action_id = ?`, i.SourceActionID,
	).Scan(&i.ID); err != nil {
		return fmt.Errorf("loading existing initiative: %w", err)
	}
	return nil
}

// TasksCreatedBy returns the tasks materialized from an action.
func (s *ProjectStore) TasksCreatedBy(ctx context.Context, actionID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, created_by, title, description, priority, assignee_id,
			status, source_action_id, created_at
		 FROM tasks WHERE source_action_id = ? ORDER BY created_at`, actionID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		var (
			t         models.Task
			assignee  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.CreatedBy, &t.Title, &t.Description, &t.Priority,
			&assignee, &t.Status, &t.SourceActionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.AssigneeID = assignee.String
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}
