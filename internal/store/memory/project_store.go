package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ProjectStore implements store.ProjectSettingsStore and store.WorkStore using in-memory storage.
type ProjectStore struct {
	mu sync.RWMutex

	settings    map[string]*models.ProjectSettings // project_id -> settings
	tasks       map[string]*models.Task
	initiatives map[string]*models.Initiative
	bySource    map[string]string // "task:" or "initiative:" + source_action_id -> id
}

// NewProjectStore creates a new in-memory project store.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{
		settings:    make(map[string]*models.ProjectSettings),
		tasks:       make(map[string]*models.Task),
		initiatives: make(map[string]*models.Initiative),
		bySource:    make(map[string]string),
	}
}

// GetProjectSettings returns the settings row for a project.
func (s *ProjectStore) GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, exists := s.settings[projectID]
	if !exists {
		return nil, store.ErrProjectSettingsNotFound
	}
	clone := *ps
	return &clone, nil
}

// PutProjectSettings inserts or replaces the settings row.
func (s *ProjectStore) PutProjectSettings(ctx context.Context, settings *models.ProjectSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *settings
	clone.UpdatedAt = time.Now()
	s.settings[settings.ProjectID] = &clone

	return nil
}

// CreateTask stores a task. A second task for the same source action is not
// stored; task.ID is set to the existing one instead.
func (s *ProjectStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.bySource["task:"+task.SourceActionID]; exists {
		task.ID = id
		return nil
	}

	clone := *task
	s.tasks[task.ID] = &clone
	s.bySource["task:"+task.SourceActionID] = task.ID

	return nil
}

// CreateInitiative stores an initiative, deduplicated on SourceActionID like CreateTask.
func (s *ProjectStore) CreateInitiative(ctx context.Context, initiative *models.Initiative) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.bySource["initiative:"+initiative.SourceActionID]; exists {
		initiative.ID = id
		return nil
	}

	clone := *initiative
	s.initiatives[initiative.ID] = &clone
	s.bySource["initiative:"+initiative.SourceActionID] = initiative.ID

	return nil
}

// Tasks returns every stored task. Used by tests and the CLI.
func (s *ProjectStore) Tasks() []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		clone := *t
		out = append(out, &clone)
	}
	return out
}

// Initiatives returns every stored initiative.
func (s *ProjectStore) Initiatives() []*models.Initiative {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Initiative, 0, len(s.initiatives))
	for _, i := range s.initiatives {
		clone := *i
		out = append(out, &clone)
	}
	return out
}

// NewStores returns a full set of in-memory stores.
func NewStores() *store.Stores {
	orgs := NewOrganizationStore()
	actions := NewActionStore()
	projects := NewProjectStore()
	return &store.Stores{
		Organizations: orgs,
		Limits:        orgs,
		Policies:      orgs,
		Usage:         NewUsageStore(),
		Actions:       actions,
		Audit:         actions,
		Projects:      projects,
		Work:          projects,
	}
}
