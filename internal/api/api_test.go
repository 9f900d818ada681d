package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/gates"
	httpmw "github.com/wolfeidau/governor/internal/http"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/orchestrator"
	"github.com/wolfeidau/governor/internal/quota"
	"github.com/wolfeidau/governor/internal/rules"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/store/memory"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	stores  *store.Stores
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	stores := memory.NewStores()
	clock := func() time.Time { return testNow }

	q := quota.NewService(stores.Organizations, stores.Limits, stores.Usage, quota.WithClock(clock))
	orc := orchestrator.New(
		stores.Actions,
		stores.Audit,
		rules.NewResolver(stores.Policies),
		gates.NewRoleGate(stores.Projects, q),
		gates.NewComplianceLock(stores.Projects),
		orchestrator.WithWorkService(orchestrator.NewStoreWorkService(stores.Work)),
		orchestrator.WithClock(clock),
	)

	ctx := context.Background()
	expires := testNow.Add(10 * 24 * time.Hour)
	for _, org := range []*models.Organization{
		{OrgID: "org-trial", Name: "Trial Co", Type: models.OrganizationTypeTrial, IsActive: true, TrialStartedAt: &testNow, TrialExpiresAt: &expires},
		{OrgID: "org-demo", Name: "Demo Co", Type: models.OrganizationTypeDemo, IsActive: true, TrialStartedAt: &testNow},
		{OrgID: "org-paid", Name: "Paid Co", Type: models.OrganizationTypePaid, IsActive: true},
		{OrgID: "org-other", Name: "Other Co", Type: models.OrganizationTypePaid, IsActive: true},
	} {
		org.CreatedAt = testNow
		org.UpdatedAt = testNow
		require.NoError(t, stores.Organizations.Create(ctx, org))
	}
	require.NoError(t, stores.Projects.PutProjectSettings(ctx, &models.ProjectSettings{
		ProjectID:      "proj-regulated",
		OrgID:          "org-trial",
		AIRole:         models.AIRoleOperator,
		RegulatoryMode: true,
		UpdatedAt:      testNow,
	}))
	require.NoError(t, stores.Projects.PutProjectSettings(ctx, &models.ProjectSettings{
		ProjectID: "proj-managed",
		OrgID:     "org-paid",
		AIRole:    models.AIRoleManager,
		UpdatedAt: testNow,
	}))

	return &testServer{
		handler: NewRouter(orc, q, Config{Logger: zerolog.Nop(), Version: "test", CORSOrigins: []string{"https://app.example.com"}}),
		stores:  stores,
	}
}

type identity struct {
	user, org, project string
}

var (
	trialUser   = identity{user: "user-1", org: "org-trial"}
	managedUser = identity{user: "user-1", org: "org-paid", project: "proj-managed"}
)

func (s *testServer) do(t *testing.T, method, path string, id identity, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id.user != "" {
		req.Header.Set(httpmw.HeaderUserID, id.user)
	}
	if id.org != "" {
		req.Header.Set(httpmw.HeaderOrganizationID, id.org)
	}
	if id.project != "" {
		req.Header.Set(httpmw.HeaderProjectID, id.project)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", identity{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode[map[string]string](t, rec)["version"])
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/actions/pending", identity{user: "user-1"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode[errorBody](t, rec).ErrorCode)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/actions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestAction_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		id         identity
		actionType models.ActionType
		wantStatus int
		wantCode   string
	}{
		{
			name:       "pending report",
			id:         trialUser,
			actionType: models.ActionTypeGenerateReport,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "policy level too low",
			id:         trialUser,
			actionType: models.ActionTypeSuggestRoadmapChange,
			wantStatus: http.StatusPaymentRequired,
			wantCode:   orchestrator.CodeUpgradeRequired,
		},
		{
			name:       "advisor role blocks drafts",
			id:         identity{user: "user-1", org: "org-trial", project: "proj-unset"},
			actionType: models.ActionTypeCreateDraftTask,
			wantStatus: http.StatusForbidden,
			wantCode:   gates.ReasonRoleBlocked,
		},
		{
			name:       "regulatory lock",
			id:         identity{user: "user-1", org: "org-trial", project: "proj-regulated"},
			actionType: models.ActionTypeCreateDraftTask,
			wantStatus: http.StatusForbidden,
			wantCode:   orchestrator.CodeRegulatoryMode,
		},
		{
			name:       "task draft without a project",
			id:         trialUser,
			actionType: models.ActionTypeCreateDraftTask,
			wantStatus: http.StatusBadRequest,
			wantCode:   orchestrator.CodeProjectRequired,
		},
		{
			name:       "project of another organization",
			id:         identity{user: "user-9", org: "org-other", project: "proj-managed"},
			actionType: models.ActionTypeGenerateReport,
			wantStatus: http.StatusForbidden,
			wantCode:   gates.ReasonProjectNotInOrg,
		},
		{
			name:       "manager role drafts pending approval",
			id:         managedUser,
			actionType: models.ActionTypeCreateDraftTask,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "unknown type",
			id:         trialUser,
			actionType: "DELETE_EVERYTHING",
			wantStatus: http.StatusBadRequest,
			wantCode:   orchestrator.CodeInvalidActionType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodPost, "/v1/actions", tt.id, map[string]any{
				"actionType": tt.actionType,
				"payload":    map[string]any{"title": "Quarterly"},
			})
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			res := decode[orchestrator.RequestResult](t, rec)
			assert.Equal(t, tt.wantCode, res.ErrorCode)
			if tt.wantStatus == http.StatusCreated {
				assert.True(t, res.Success)
				assert.Equal(t, models.ActionStatusPending, res.Status)
				assert.True(t, res.RequiresApproval)
			}
		})
	}
}

func TestRequestAction_BadBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString("{not json"))
	req.Header.Set(httpmw.HeaderUserID, "user-1")
	req.Header.Set(httpmw.HeaderOrganizationID, "org-trial")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, decode[errorBody](t, rec).ErrorCode)
}

func TestDraftLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/drafts", managedUser, map[string]any{
		"draftType": "task",
		"content":   map[string]any{"title": "Write onboarding guide", "priority": "HIGH"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orchestrator.RequestResult](t, rec)
	require.NotEmpty(t, created.ActionID)
	assert.Equal(t, models.ActionStatusPending, created.Status)
	assert.Equal(t, models.AIRoleManager, created.Action.AIRole)

	rec = s.do(t, http.MethodGet, "/v1/actions/pending", managedUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Actions []struct {
			ID           string         `json:"id"`
			Payload      map[string]any `json:"payload"`
			DraftContent map[string]any `json:"draftContent"`
		} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending.Actions, 1)
	assert.Equal(t, created.ActionID, pending.Actions[0].ID)
	assert.Equal(t, "Write onboarding guide", pending.Actions[0].DraftContent["title"])

	// other tenants cannot see or touch the action
	other := identity{user: "user-9", org: "org-other"}
	rec = s.do(t, http.MethodGet, "/v1/actions/pending", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actions":[]}`, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/approve", other, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/execute", managedUser, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, orchestrator.CodeInvalidStatus, decode[orchestrator.ExecuteResult](t, rec).ErrorCode)

	approver := identity{user: "manager-1", org: "org-paid"}
	rec = s.do(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/approve", approver, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[orchestrator.TransitionResult](t, rec)
	require.True(t, approved.Success)
	assert.Equal(t, "manager-1", approved.Action.ApprovedBy)

	rec = s.do(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/approve", approver, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, orchestrator.CodeAlreadyProcessed, decode[orchestrator.TransitionResult](t, rec).ErrorCode)

	rec = s.do(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/execute", managedUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	executed := decode[orchestrator.ExecuteResult](t, rec)
	require.True(t, executed.Success)
	assert.Equal(t, "task", executed.Output.EntityType)
	assert.Equal(t, models.ActionStatusExecuted, executed.Action.Status)

	tasks := s.stores.Work.(*memory.ProjectStore).Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Write onboarding guide", tasks[0].Title)
	assert.Equal(t, created.ActionID, tasks[0].SourceActionID)
	assert.Equal(t, "proj-managed", tasks[0].ProjectID)
	assert.Equal(t, executed.Output.EntityID, tasks[0].ID)
}

func TestRejectAndAudit(t *testing.T) {
	s := newTestServer(t)

	var ids []string
	for range 2 {
		rec := s.do(t, http.MethodPost, "/v1/actions", trialUser, map[string]any{
			"actionType": models.ActionTypeGenerateReport,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decode[orchestrator.RequestResult](t, rec).ActionID)
	}

	rec := s.do(t, http.MethodPost, "/v1/actions/"+ids[0]+"/approve", trialUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/actions/"+ids[1]+"/reject", trialUser, map[string]string{"reason": "not needed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ActionStatusRejected, decode[orchestrator.TransitionResult](t, rec).Action.Status)

	rec = s.do(t, http.MethodPost, "/v1/actions/missing/reject", trialUser, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/audit?limit=10", trialUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Entries []*models.AuditLogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	require.Len(t, audit.Entries, 2)
	assert.Equal(t, models.UserDecisionRejected, audit.Entries[0].UserDecision)
	assert.Equal(t, "not needed", audit.Entries[0].UserFeedback)
	assert.Equal(t, models.UserDecisionApproved, audit.Entries[1].UserDecision)

	rec = s.do(t, http.MethodGet, "/v1/audit?limit=abc", trialUser, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAccess(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		org        string
		action     string
		wantStatus int
		wantCode   string
	}{
		{name: "trial ai call", org: "org-trial", action: "ai_call", wantStatus: http.StatusOK},
		{name: "demo write", org: "org-demo", action: "write", wantStatus: http.StatusForbidden, wantCode: quota.CodeDemoReadOnly},
		{name: "demo read", org: "org-demo", action: "read", wantStatus: http.StatusOK},
		{name: "missing org", org: "org-missing", action: "read", wantStatus: http.StatusNotFound, wantCode: quota.CodeOrgNotFound},
		{name: "unknown action", org: "org-trial", action: "teleport", wantStatus: http.StatusBadRequest, wantCode: CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/v1/org/access/"+tt.action, identity{user: "user-1", org: tt.org}, nil)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[errorBody](t, rec).ErrorCode)
		})
	}
}

func TestPolicySnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/org/policy-snapshot", identity{user: "user-1", org: "org-demo"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decode[quota.PolicySnapshot](t, rec)
	assert.Equal(t, "org-demo", snap.OrgID)
	assert.Equal(t, models.OrganizationTypeDemo, snap.OrganizationType)
	assert.Contains(t, snap.BlockedActions, quota.ActionWrite)
	assert.NotContains(t, snap.BlockedActions, quota.ActionAICall)

	rec = s.do(t, http.MethodGet, "/v1/org/policy-snapshot", identity{user: "user-1", org: "org-missing"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, quota.CodeOrgNotFound, decode[errorBody](t, rec).ErrorCode)
}

func TestSeats(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/org/seats", trialUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	seats := decode[quota.SeatAvailability](t, rec)
	assert.Equal(t, int64(4), seats.Limit)
	assert.Equal(t, int64(4), seats.Available)

	rec = s.do(t, http.MethodGet, "/v1/org/seats?count=2", trialUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[quota.AccessDecision](t, rec).Allowed)

	rec = s.do(t, http.MethodGet, "/v1/org/seats?count=5", trialUser, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, quota.CodeUserLimitReached, decode[quota.AccessDecision](t, rec).ErrorCode)

	rec = s.do(t, http.MethodGet, "/v1/org/seats?count=0", trialUser, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackTokens(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/org/usage/tokens", trialUser, map[string]int64{"tokens": 40_000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[trackTokensResponse](t, rec)
	assert.Equal(t, int64(40_000), first.Usage.TokensUsed)
	assert.Equal(t, int64(60_000), first.Usage.TokensRemaining)
	assert.True(t, first.Access.Allowed)

	rec = s.do(t, http.MethodPost, "/v1/org/usage/tokens", trialUser, map[string]int64{"tokens": 60_000})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[trackTokensResponse](t, rec)
	assert.Equal(t, int64(0), second.Usage.TokensRemaining)
	assert.False(t, second.Access.Allowed)
	assert.Equal(t, quota.CodeAITokenBudgetExceeded, second.Access.ErrorCode)

	daily, err := s.stores.Usage.GetDaily(context.Background(), "org-trial", models.CounterDate(testNow))
	require.NoError(t, err)
	assert.Equal(t, int64(2), daily.AICallsCount)

	rec = s.do(t, http.MethodGet, "/v1/org/access/ai_call", trialUser, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/org/usage/tokens", trialUser, map[string]int64{"tokens": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/org/usage/tokens", identity{user: "user-1", org: "org-missing"}, map[string]int64{"tokens": 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
