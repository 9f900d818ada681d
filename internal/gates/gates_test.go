package gates

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store/memory"
)

type staticLimits struct {
	roles []models.AIRole
	err   error
}

func (s staticLimits) GetOrganizationLimits(_ context.Context, orgID string) (*models.OrganizationLimits, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.OrganizationLimits{OrgID: orgID, AIRolesEnabled: s.roles}, nil
}

var allRoles = staticLimits{roles: []models.AIRole{models.AIRoleAdvisor, models.AIRoleManager, models.AIRoleOperator}}

func withRole(t *testing.T, role models.AIRole, regulatory bool) *memory.ProjectStore {
	t.Helper()
	ps := memory.NewProjectStore()
	require.NoError(t, ps.PutProjectSettings(context.Background(), &models.ProjectSettings{
		ProjectID:      "project-1",
		OrgID:          "org-1",
		AIRole:         role,
		RegulatoryMode: regulatory,
	}))
	return ps
}

func TestRoleGate_Advisor(t *testing.T) {
	ctx := context.Background()
	g := NewRoleGate(withRole(t, models.AIRoleAdvisor, false), allRoles)

	d, err := g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeExplainContext)
	require.NoError(t, err)
	require.False(t, d.Blocked)

	d, err = g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeCreateDraftTask)
	require.NoError(t, err)
	require.True(t, d.Blocked)
	require.Equal(t, ReasonRoleBlocked, d.Reason)
	require.Equal(t, models.AIRoleAdvisor, d.CurrentRole)
	require.Equal(t, models.AIRoleManager, d.RoleRequired)
	require.NotEmpty(t, d.Suggestion)
}

func TestRoleGate_Manager(t *testing.T) {
	ctx := context.Background()
	g := NewRoleGate(withRole(t, models.AIRoleManager, false), allRoles)

	d, err := g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeCreateDraftTask)
	require.NoError(t, err)
	require.False(t, d.Blocked)
	require.True(t, d.RequiresApproval)

	d, err = g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeGenerateReport)
	require.NoError(t, err)
	require.False(t, d.RequiresApproval)
}

func TestRoleGate_Operator(t *testing.T) {
	g := NewRoleGate(withRole(t, models.AIRoleOperator, false), allRoles)

	for _, at := range models.AllActionTypes {
		d, err := g.IsActionBlocked(context.Background(), "org-1", "project-1", at)
		require.NoError(t, err)
		require.False(t, d.Blocked, at)
		require.False(t, d.RequiresApproval, at)
	}
}

func TestRoleGate_DefaultsAndPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("no settings row is advisor", func(t *testing.T) {
		g := NewRoleGate(memory.NewProjectStore(), allRoles)
		d, err := g.IsActionBlocked(ctx, "org-1", "unknown", models.ActionTypeSuggestRoadmapChange)
		require.NoError(t, err)
		require.True(t, d.Blocked)
		require.Equal(t, models.AIRoleAdvisor, d.CurrentRole)
	})

	t.Run("role not on plan", func(t *testing.T) {
		g := NewRoleGate(withRole(t, models.AIRoleOperator, false), staticLimits{roles: []models.AIRole{models.AIRoleAdvisor}})
		d, err := g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeExplainContext)
		require.NoError(t, err)
		require.True(t, d.Blocked)
		require.Equal(t, ReasonRoleNotEnabled, d.Reason)
	})

	t.Run("limits failure propagates", func(t *testing.T) {
		g := NewRoleGate(withRole(t, models.AIRoleManager, false), staticLimits{err: errors.New("db down")})
		_, err := g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeExplainContext)
		require.Error(t, err)
	})
}

func TestComplianceLock(t *testing.T) {
	ctx := context.Background()

	locked := NewComplianceLock(withRole(t, models.AIRoleOperator, true))
	for _, at := range models.AllActionTypes {
		d, err := locked.EnforceRegulatoryMode(ctx, "org-1", "project-1", at)
		require.NoError(t, err)
		require.Equal(t, at.Mutating(), d.Blocked, at)
		if d.Blocked {
			require.Equal(t, ReasonRegulatoryMode, d.Reason)
		}
	}

	open := NewComplianceLock(withRole(t, models.AIRoleOperator, false))
	d, err := open.EnforceRegulatoryMode(ctx, "org-1", "project-1", models.ActionTypeCreateDraftTask)
	require.NoError(t, err)
	require.False(t, d.Blocked)

	none := NewComplianceLock(memory.NewProjectStore())
	d, err = none.EnforceRegulatoryMode(ctx, "org-1", "project-1", models.ActionTypeCreateDraftTask)
	require.NoError(t, err)
	require.False(t, d.Blocked)
}

type recordingLimits struct {
	staticLimits
	orgIDs []string
}

func (r *recordingLimits) GetOrganizationLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error) {
	r.orgIDs = append(r.orgIDs, orgID)
	return r.staticLimits.GetOrganizationLimits(ctx, orgID)
}

func TestGates_ForeignProject(t *testing.T) {
	ctx := context.Background()

	limits := &recordingLimits{staticLimits: allRoles}
	g := NewRoleGate(withRole(t, models.AIRoleOperator, false), limits)

	d, err := g.IsActionBlocked(ctx, "org-2", "project-1", models.ActionTypeExplainContext)
	require.NoError(t, err)
	require.True(t, d.Blocked)
	require.Equal(t, ReasonProjectNotInOrg, d.Reason)
	require.Empty(t, limits.orgIDs)

	// limits are resolved for the caller's organization
	d, err = g.IsActionBlocked(ctx, "org-1", "project-1", models.ActionTypeExplainContext)
	require.NoError(t, err)
	require.False(t, d.Blocked)
	require.Equal(t, []string{"org-1"}, limits.orgIDs)

	lock := NewComplianceLock(withRole(t, models.AIRoleOperator, false))
	cd, err := lock.EnforceRegulatoryMode(ctx, "org-2", "project-1", models.ActionTypeExplainContext)
	require.NoError(t, err)
	require.True(t, cd.Blocked)
	require.Equal(t, ReasonProjectNotInOrg, cd.Reason)
}
