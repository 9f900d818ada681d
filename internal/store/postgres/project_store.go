package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ProjectStore implements store.ProjectSettingsStore and store.WorkStore using PostgreSQL.
type ProjectStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

var (
	_ store.ProjectSettingsStore = (*ProjectStore)(nil)
	_ store.WorkStore            = (*ProjectStore)(nil)
)

// NewProjectStore creates a new PostgreSQL-backed project store.
func NewProjectStore(pool *pgxpool.Pool, cfg *StoreConfig) *ProjectStore {
	return &ProjectStore{pool: pool, cfg: cfg}
}

// GetProjectSettings returns the governance flags of a project.
func (s *ProjectStore) GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT project_id, organization_id, ai_role, regulatory_mode, updated_at
		FROM project_ai_settings
		WHERE project_id = $1
	`

	var (
		ps   models.ProjectSettings
		role string
	)
	err := s.pool.QueryRow(ctx, query, projectID).Scan(
		&ps.ProjectID,
		&ps.OrgID,
		&role,
		&ps.RegulatoryMode,
		&ps.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProjectSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get project settings: %w", mapPostgresError(err))
	}

	ps.AIRole = models.AIRole(role)
	ps.UpdatedAt = ps.UpdatedAt.UTC()

	return &ps, nil
}

// PutProjectSettings inserts or replaces the settings row.
func (s *ProjectStore) PutProjectSettings(ctx context.Context, ps *models.ProjectSettings) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	role := ps.AIRole
	if role == "" {
		role = models.AIRoleAdvisor
	}

	query := `
		INSERT INTO project_ai_settings (project_id, organization_id, ai_role, regulatory_mode, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			ai_role = EXCLUDED.ai_role,
			regulatory_mode = EXCLUDED.regulatory_mode,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, ps.ProjectID, ps.OrgID, string(role), ps.RegulatoryMode, ps.UpdatedAt); err != nil {
		return fmt.Errorf("failed to put project settings: %w", mapPostgresError(err))
	}

	return nil
}

// CreateTask inserts a task created from an executed draft. When a task
// already exists for t.SourceActionID, t.ID is set to the existing id.
func (s *ProjectStore) CreateTask(ctx context.Context, t *models.Task) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO tasks (
			id, project_id, created_by, title, description, priority, assignee_id,
			status, source_action_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (source_action_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		t.ID,
		t.ProjectID,
		t.CreatedBy,
		t.Title,
		t.Description,
		t.Priority,
		nullText(t.AssigneeID),
		t.Status,
		t.SourceActionID,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", mapPostgresError(err))
	}

	// Already materialized by an earlier run, report the existing row
	if tag.RowsAffected() == 0 {
		err := s.pool.QueryRow(ctx, `SELECT id FROM tasks WHERE source_action_id = $1`, t.SourceActionID).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("failed to load existing task: %w", mapPostgresError(err))
		}
		log.Debug().
			Str("task_id", t.ID).
			Str("source_action_id", t.SourceActionID).
			Msg("Reused existing task")
		return nil
	}

	log.Debug().
		Str("task_id", t.ID).
		Str("source_action_id", t.SourceActionID).
		Msg("Created task")

	return nil
}

// CreateInitiative inserts an initiative created from an executed draft. When
// one already exists for i.SourceActionID, i.ID is set to the existing id.
func (s *ProjectStore) CreateInitiative(ctx context.Context, i *models.Initiative) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO initiatives (
			id, organization_id, project_id, name, summary, objective, owner_id,
			status, source_action_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (source_action_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		i.ID,
		i.OrgID,
		nullText(i.ProjectID),
		i.Name,
		i.Summary,
		i.Objective,
		i.OwnerID,
		i.Status,
		i.SourceActionID,
		i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create initiative: %w", mapPostgresError(err))
	}

	// Already materialized by an earlier run, report the existing row
	if tag.RowsAffected() == 0 {
		err := s.pool.QueryRow(ctx, `SELECT id FROM initiatives WHERE source_action_id = $1`, i.SourceActionID).Scan(&i.ID)
		if err != nil {
			return fmt.Errorf("failed to load existing initiative: %w", mapPostgresError(err))
		}
		log.Debug().
			Str("initiative_id", i.ID).
			Str("source_action_id", i.SourceActionID).
			Msg("Reused existing initiative")
		return nil
	}

	log.Debug().
		Str("initiative_id", i.ID).
		Str("source_action_id", i.SourceActionID).
		Msg("Created initiative")

	return nil
}
