package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func newPendingAction(id string, createdAt time.Time) *models.Action {
	return &models.Action{
		ID:                  id,
		UserID:              "user-1",
		OrgID:               "org-1",
		ProjectID:           "proj-1",
		Type:                models.ActionTypeCreateDraftTask,
		Payload:             []byte(`{"title":"Write release notes"}`),
		AIRole:              models.AIRoleManager,
		RequiredPolicyLevel: models.PolicyLevelAssisted,
		CurrentPolicyLevel:  models.PolicyLevelAssisted,
		RequiresApproval:    true,
		Status:              models.ActionStatusPending,
		CreatedAt:           createdAt,
	}
}

func TestOpenDB_MigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(db))
}

func TestOpenDB_CreatesDirectory(t *testing.T) {
	path := t.TempDir() + "/nested/governor.db"
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewOrganizationStore(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrOrganizationNotFound)
}

func TestOrganizationStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewOrganizationStore(newTestDB(t))

	expires := testNow.Add(14 * 24 * time.Hour)
	org := &models.Organization{
		OrgID:          "org-1",
		Name:           "Acme",
		Type:           models.OrganizationTypeTrial,
		IsActive:       true,
		TrialStartedAt: &testNow,
		TrialExpiresAt: &expires,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	require.NoError(t, s.Create(ctx, org))
	assert.ErrorIs(t, s.Create(ctx, org), store.ErrOrganizationAlreadyExists)

	got, err := s.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, models.OrganizationTypeTrial, got.Type)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.TrialExpiresAt)
	assert.True(t, expires.Equal(*got.TrialExpiresAt))

	got.Type = models.OrganizationTypePaid
	got.TrialStartedAt = nil
	got.TrialExpiresAt = nil
	require.NoError(t, s.Update(ctx, got))

	got, err = s.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrganizationTypePaid, got.Type)
	assert.Nil(t, got.TrialExpiresAt)

	missing := &models.Organization{OrgID: "nope", Type: models.OrganizationTypeDemo}
	assert.ErrorIs(t, s.Update(ctx, missing), store.ErrOrganizationNotFound)
}

func TestOrganizationStore_AddTrialTokensConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewOrganizationStore(newTestDB(t))

	require.NoError(t, s.Create(ctx, &models.Organization{
		OrgID: "org-1", Type: models.OrganizationTypeTrial, IsActive: true,
		CreatedAt: testNow, UpdatedAt: testNow,
	}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddTrialTokens(ctx, "org-1", 150))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.TrialTokensUsed)

	assert.ErrorIs(t, s.AddTrialTokens(ctx, "missing", 1), store.ErrOrganizationNotFound)
}

func TestOrganizationStore_Limits(t *testing.T) {
	ctx := context.Background()
	s := NewOrganizationStore(newTestDB(t))

	_, err := s.GetLimits(ctx, "org-1")
	assert.ErrorIs(t, err, store.ErrLimitsNotFound)

	limits := models.DefaultLimits("org-1", models.OrganizationTypeTrial)
	require.NoError(t, s.PutLimits(ctx, limits))

	limits.MaxProjects = 7
	limits.AIRolesEnabled = []models.AIRole{models.AIRoleAdvisor, models.AIRoleManager}
	require.NoError(t, s.PutLimits(ctx, limits))

	got, err := s.GetLimits(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.MaxProjects)
	assert.Equal(t, int64(50), got.MaxAICallsPerDay)
	assert.True(t, got.RoleEnabled(models.AIRoleManager))
	assert.False(t, got.RoleEnabled(models.AIRoleOperator))

	require.NoError(t, s.DeleteLimits(ctx, "org-1"))
	require.NoError(t, s.DeleteLimits(ctx, "org-1"))
	_, err = s.GetLimits(ctx, "org-1")
	assert.ErrorIs(t, err, store.ErrLimitsNotFound)
}

func TestOrganizationStore_Policy(t *testing.T) {
	ctx := context.Background()
	s := NewOrganizationStore(newTestDB(t))

	_, err := s.GetOrgPolicy(ctx, "org-1")
	assert.ErrorIs(t, err, store.ErrPolicyNotFound)

	require.NoError(t, s.PutOrgPolicy(ctx, &models.OrgPolicy{
		OrgID:       "org-1",
		PolicyLevel: models.PolicyLevelProactive,
		Rules: []models.AutoApprovalRule{{
			Name:       "low-risk",
			Conditions: map[string]any{"risk_level_lte": "LOW", "action_type_in": []any{"GENERATE_REPORT"}},
		}},
		UpdatedAt: testNow,
	}))

	got, err := s.GetOrgPolicy(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyLevelProactive, got.PolicyLevel)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "low-risk", got.Rules[0].Name)
	assert.Equal(t, "LOW", got.Rules[0].Conditions["risk_level_lte"])
	assert.Equal(t, []any{"GENERATE_REPORT"}, got.Rules[0].Conditions["action_type_in"])
}

func TestActionStore_CreateGetDraft(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))

	a := newPendingAction("act-1", testNow)
	require.NoError(t, s.CreateAction(ctx, a))
	assert.ErrorIs(t, s.CreateAction(ctx, a), store.ErrActionAlreadyExists)

	got, err := s.GetAction(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, a.Type, got.Type)
	assert.Equal(t, models.AIRoleManager, got.AIRole)
	assert.JSONEq(t, `{"title":"Write release notes"}`, string(got.Payload))
	assert.Nil(t, got.DraftContent)
	assert.True(t, testNow.Equal(got.CreatedAt))

	require.NoError(t, s.SetDraftContent(ctx, "act-1", []byte(`{"title":"Draft"}`)))
	got, err = s.GetAction(ctx, "act-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Draft"}`, string(got.DraftContent))

	assert.ErrorIs(t, s.SetDraftContent(ctx, "missing", []byte(`{}`)), store.ErrActionNotFound)
	_, err = s.GetAction(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrActionNotFound)
}

func TestActionStore_MalformedPayloadRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))

	a := newPendingAction("act-1", testNow)
	a.Payload = []byte(`{not json`)
	require.NoError(t, s.CreateAction(ctx, a))

	got, err := s.GetAction(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(got.Payload))
	_, err = got.DecodePayload()
	assert.Error(t, err)
}

func TestActionStore_TransitionAction(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))
	require.NoError(t, s.CreateAction(ctx, newPendingAction("act-1", testNow)))

	approvedAt := testNow.Add(time.Minute)
	ok, err := s.TransitionAction(ctx, models.ActionTransition{
		ActionID: "act-1", From: models.ActionStatusPending, To: models.ActionStatusApproved,
		ActorID: "approver", At: approvedAt,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionAction(ctx, models.ActionTransition{
		ActionID: "act-1", From: models.ActionStatusPending, To: models.ActionStatusRejected,
		ActorID: "someone", At: approvedAt,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	executedAt := testNow.Add(2 * time.Minute)
	ok, err = s.TransitionAction(ctx, models.ActionTransition{
		ActionID: "act-1", From: models.ActionStatusApproved, To: models.ActionStatusExecuted,
		ActorID: "approver", At: executedAt,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetAction(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusExecuted, got.Status)
	assert.Equal(t, "approver", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, approvedAt.Equal(*got.ApprovedAt))
	require.NotNil(t, got.ExecutedAt)
	assert.True(t, executedAt.Equal(*got.ExecutedAt))

	ok, err = s.TransitionAction(ctx, models.ActionTransition{
		ActionID: "missing", From: models.ActionStatusPending, To: models.ActionStatusApproved,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActionStore_TransitionRefusesIllegalEdges(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))
	require.NoError(t, s.CreateAction(ctx, newPendingAction("pending", testNow)))
	rejected := newPendingAction("rejected", testNow)
	rejected.Status = models.ActionStatusRejected
	require.NoError(t, s.CreateAction(ctx, rejected))

	ok, err := s.TransitionAction(ctx, models.ActionTransition{
		ActionID: "pending", From: models.ActionStatusPending, To: models.ActionStatusExecuted, At: testNow,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TransitionAction(ctx, models.ActionTransition{
		ActionID: "rejected", From: models.ActionStatusRejected, To: models.ActionStatusApproved,
		ActorID: "approver", At: testNow,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetAction(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusPending, got.Status)
	assert.Nil(t, got.ExecutedAt)

	got, err = s.GetAction(ctx, "rejected")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusRejected, got.Status)
	assert.Nil(t, got.ApprovedAt)
}

func TestActionStore_ConcurrentApprovalHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))
	require.NoError(t, s.CreateAction(ctx, newPendingAction("act-1", testNow)))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionAction(ctx, models.ActionTransition{
				ActionID: "act-1", From: models.ActionStatusPending, To: models.ActionStatusApproved,
				ActorID: fmt.Sprintf("user-%d", i), At: testNow,
			})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestActionStore_ListActions(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))

	older := newPendingAction("act-b", testNow)
	newer := newPendingAction("act-a", testNow.Add(time.Second))
	other := newPendingAction("act-c", testNow)
	other.UserID = "user-2"
	other.ProjectID = ""
	done := newPendingAction("act-d", testNow)
	done.Status = models.ActionStatusRejected

	for _, a := range []*models.Action{newer, older, other, done} {
		require.NoError(t, s.CreateAction(ctx, a))
	}

	pending, err := s.ListActions(ctx, store.ActionFilter{Status: models.ActionStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "act-b", pending[0].ID)
	assert.Equal(t, "act-c", pending[1].ID)
	assert.Equal(t, "act-a", pending[2].ID)

	mine, err := s.ListActions(ctx, store.ActionFilter{
		Status: models.ActionStatusPending, UserID: "user-1", ProjectID: "proj-1", OrgID: "org-1",
	})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	limited, err := s.ListActions(ctx, store.ActionFilter{Status: models.ActionStatusPending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "act-b", limited[0].ID)
}

func TestActionStore_AuditNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewActionStore(newTestDB(t))

	for i, decision := range []models.UserDecision{models.UserDecisionApproved, models.UserDecisionRejected, models.UserDecisionApproved} {
		require.NoError(t, s.AppendAudit(ctx, &models.AuditLogEntry{
			ID:           fmt.Sprintf("audit-%d", i),
			UserID:       "user-1",
			OrgID:        "org-1",
			ActionID:     fmt.Sprintf("act-%d", i),
			ActionType:   models.ActionTypeGenerateReport,
			PolicyLevel:  models.PolicyLevelAssisted,
			UserDecision: decision,
			UserFeedback: "reason",
			CreatedAt:    testNow.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.AppendAudit(ctx, &models.AuditLogEntry{
		ID: "audit-other", UserID: "u", OrgID: "org-2", ActionID: "x",
		ActionType: models.ActionTypeGenerateReport, PolicyLevel: models.PolicyLevelAssisted,
		UserDecision: models.UserDecisionApproved, CreatedAt: testNow,
	}))

	entries, err := s.ListAudit(ctx, "org-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "audit-2", entries[0].ID)
	assert.Equal(t, "audit-1", entries[1].ID)
	assert.Equal(t, models.UserDecisionRejected, entries[1].UserDecision)
	assert.Equal(t, "reason", entries[1].UserFeedback)
}

func TestUsageStore_IncrementAndTotals(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore(newTestDB(t))

	daily, err := s.GetDaily(ctx, "org-1", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(0), daily.AICallsCount)

	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Increment(ctx, "org-1", "2026-03-10", models.CounterAICalls, 1))
		}()
	}
	wg.Wait()

	require.NoError(t, s.Increment(ctx, "org-1", "2026-03-10", models.CounterProjects, 2))
	require.NoError(t, s.Increment(ctx, "org-1", "2026-03-11", models.CounterProjects, 1))
	require.NoError(t, s.Increment(ctx, "org-2", "2026-03-10", models.CounterProjects, 9))

	daily, err = s.GetDaily(ctx, "org-1", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(25), daily.AICallsCount)
	assert.Equal(t, int64(2), daily.ProjectsCount)
	assert.Equal(t, "2026-03-10", daily.CounterDate)

	totals, err := s.GetTotals(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.ProjectsCount)
	assert.Equal(t, int64(25), totals.AICallsCount)

	assert.Error(t, s.Increment(ctx, "org-1", "2026-03-10", models.CounterType("bogus"), 1))
}

func TestProjectStore_SettingsAndWork(t *testing.T) {
	ctx := context.Background()
	s := NewProjectStore(newTestDB(t))

	_, err := s.GetProjectSettings(ctx, "proj-1")
	assert.ErrorIs(t, err, store.ErrProjectSettingsNotFound)

	require.NoError(t, s.PutProjectSettings(ctx, &models.ProjectSettings{
		ProjectID: "proj-1", OrgID: "org-1", AIRole: models.AIRoleOperator, RegulatoryMode: true, UpdatedAt: testNow,
	}))
	got, err := s.GetProjectSettings(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.AIRoleOperator, got.AIRole)
	assert.True(t, got.RegulatoryMode)

	require.NoError(t, s.CreateTask(ctx, &models.Task{
		ID: "task-1", ProjectID: "proj-1", CreatedBy: "user-1", Title: "Ship it",
		Priority: "HIGH", Status: "TODO", SourceActionID: "act-1", CreatedAt: testNow,
	}))
	require.NoError(t, s.CreateInitiative(ctx, &models.Initiative{
		ID: "init-1", OrgID: "org-1", Name: "Growth", OwnerID: "user-1",
		Status: models.InitiativeStatusDraft, SourceActionID: "act-2", CreatedAt: testNow,
	}))

	tasks, err := s.TasksCreatedBy(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Ship it", tasks[0].Title)
	assert.Empty(t, tasks[0].AssigneeID)
}

func TestProjectStore_WorkIsUniquePerSourceAction(t *testing.T) {
	ctx := context.Background()
	s := NewProjectStore(newTestDB(t))

	require.NoError(t, s.CreateTask(ctx, &models.Task{
		ID: "task-1", ProjectID: "proj-1", CreatedBy: "user-1", Title: "Ship it",
		Status: "TODO", SourceActionID: "act-1", CreatedAt: testNow,
	}))
	retry := &models.Task{
		ID: "task-2", ProjectID: "proj-1", CreatedBy: "user-1", Title: "Ship it",
		Status: "TODO", SourceActionID: "act-1", CreatedAt: testNow,
	}
	require.NoError(t, s.CreateTask(ctx, retry))
	assert.Equal(t, "task-1", retry.ID)

	tasks, err := s.TasksCreatedBy(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)

	require.NoError(t, s.CreateInitiative(ctx, &models.Initiative{
		ID: "init-1", OrgID: "org-1", Name: "Growth", OwnerID: "user-1",
		Status: models.InitiativeStatusDraft, SourceActionID: "act-2", CreatedAt: testNow,
	}))
	again := &models.Initiative{
		ID: "init-2", OrgID: "org-1", Name: "Growth", OwnerID: "user-1",
		Status: models.InitiativeStatusDraft, SourceActionID: "act-2", CreatedAt: testNow,
	}
	require.NoError(t, s.CreateInitiative(ctx, again))
	assert.Equal(t, "init-1", again.ID)
}

func TestNewStores_WiresEveryStore(t *testing.T) {
	stores := NewStores(newTestDB(t))
	assert.NotNil(t, stores.Organizations)
	assert.NotNil(t, stores.Limits)
	assert.NotNil(t, stores.Policies)
	assert.NotNil(t, stores.Usage)
	assert.NotNil(t, stores.Actions)
	assert.NotNil(t, stores.Audit)
	assert.NotNil(t, stores.Projects)
	assert.NotNil(t, stores.Work)
}
