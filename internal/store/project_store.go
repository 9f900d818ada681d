package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/governor/internal/models"
)

// ErrProjectSettingsNotFound is returned when a project has no governance settings row.
var ErrProjectSettingsNotFound = errors.New("project settings not found")

// ProjectSettingsStore holds per-project AI role and regulatory flags.
type ProjectSettingsStore interface {
	GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error)
	PutProjectSettings(ctx context.Context, settings *models.ProjectSettings) error
}

// WorkStore materializes executed drafts as project entities. Each source
// action yields at most one entity: creating a second one for the same
// SourceActionID stores nothing and sets the argument's ID to the existing row.
type WorkStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	CreateInitiative(ctx context.Context, initiative *models.Initiative) error
}

// Stores bundles every store a backend provides.
type Stores struct {
	Organizations OrganizationStore
	Limits        LimitsStore
	Policies      PolicyStore
	Usage         UsageStore
	Actions       ActionStore
	Audit         AuditStore
	Projects      ProjectSettingsStore
	Work          WorkStore
}
