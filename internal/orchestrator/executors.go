package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// WorkService creates the project entities drafted by the assistant and
// returns their ids.
type WorkService interface {
	CreateTask(ctx context.Context, action *models.Action, draft models.TaskDraft) (string, error)
	CreateInitiative(ctx context.Context, action *models.Action, draft models.InitiativeDraft) (string, error)
}

// StoreWorkService implements WorkService on a store.WorkStore.
type StoreWorkService struct {
	work  store.WorkStore
	newID func() string
	now   func() time.Time
}

// NewStoreWorkService creates a WorkService backed by work.
func NewStoreWorkService(work store.WorkStore) *StoreWorkService {
	return &StoreWorkService{work: work, newID: newID, now: time.Now}
}

// CreateTask inserts a task owned by the action's project and user. A retry
// for the same action returns the id of the task created the first time.
func (s *StoreWorkService) CreateTask(ctx context.Context, action *models.Action, draft models.TaskDraft) (string, error) {
	task := &models.Task{
		ID:             s.newID(),
		ProjectID:      action.ProjectID,
		CreatedBy:      action.UserID,
		Title:          draft.Title,
		Description:    draft.Description,
		Priority:       draft.Priority,
		AssigneeID:     draft.AssigneeID,
		Status:         "TODO",
		SourceActionID: action.ID,
		CreatedAt:      s.now().UTC(),
	}
	if task.Priority == "" {
		task.Priority = "MEDIUM"
	}
	if err := s.work.CreateTask(ctx, task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// CreateInitiative inserts a DRAFT initiative.
func (s *StoreWorkService) CreateInitiative(ctx context.Context, action *models.Action, draft models.InitiativeDraft) (string, error) {
	owner := draft.OwnerID
	if owner == "" {
		owner = action.UserID
	}
	initiative := &models.Initiative{
		ID:             s.newID(),
		OrgID:          action.OrgID,
		ProjectID:      action.ProjectID,
		Name:           draft.Name,
		Summary:        draft.Summary,
		Objective:      draft.Objective,
		OwnerID:        owner,
		Status:         models.InitiativeStatusDraft,
		SourceActionID: action.ID,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.work.CreateInitiative(ctx, initiative); err != nil {
		return "", err
	}
	return initiative.ID, nil
}

var errNoWorkService = errors.New("no work service configured")

// dispatch runs the executor for the action's type. Registered executors win;
// every known type is listed so a new one shows up here.
func (o *Orchestrator) dispatch(ctx context.Context, a *models.Action) (*ExecutionOutput, error) {
	if ex, ok := o.executors[a.Type]; ok {
		return ex(ctx, a)
	}

	switch a.Type {
	case models.ActionTypeCreateDraftTask:
		return o.executeTask(ctx, a)
	case models.ActionTypeCreateDraftInitiative:
		return o.executeInitiative(ctx, a)
	case models.ActionTypeGenerateReport,
		models.ActionTypePrepareDecisionSummary,
		models.ActionTypeExplainContext,
		models.ActionTypeAnalyzeRisks,
		models.ActionTypeSuggestRoadmapChange,
		models.ActionTypeScheduleMeeting:
		return acknowledge(a), nil
	default:
		return acknowledge(a), nil
	}
}

func acknowledge(a *models.Action) *ExecutionOutput {
	return &ExecutionOutput{Message: fmt.Sprintf("%s executed", a.Type)}
}

// draftOf prefers attached draft content and falls back to the payload.
func draftOf(a *models.Action) (models.Draft, error) {
	raw := a.DraftContent
	if len(raw) == 0 {
		raw = a.Payload
	}
	d, err := models.DecodeDraft(a.Type, raw)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("action %s has no draft content", a.ID)
	}
	return d, nil
}

func (o *Orchestrator) executeTask(ctx context.Context, a *models.Action) (*ExecutionOutput, error) {
	if o.work == nil {
		return nil, errNoWorkService
	}
	if a.ProjectID == "" {
		return nil, errors.New("task drafts require a project")
	}
	d, err := draftOf(a)
	if err != nil {
		return nil, err
	}
	draft := d.(models.TaskDraft)
	if draft.Title == "" {
		return nil, errors.New("task draft has no title")
	}

	id, err := o.work.CreateTask(ctx, a, draft)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return &ExecutionOutput{Message: "Task created", EntityType: "task", EntityID: id}, nil
}

func (o *Orchestrator) executeInitiative(ctx context.Context, a *models.Action) (*ExecutionOutput, error) {
	if o.work == nil {
		return nil, errNoWorkService
	}
	d, err := draftOf(a)
	if err != nil {
		return nil, err
	}
	draft := d.(models.InitiativeDraft)
	if draft.Name == "" {
		return nil, errors.New("initiative draft has no name")
	}

	id, err := o.work.CreateInitiative(ctx, a, draft)
	if err != nil {
		return nil, fmt.Errorf("creating initiative: %w", err)
	}
	return &ExecutionOutput{Message: "Initiative created as draft", EntityType: "initiative", EntityID: id}, nil
}
