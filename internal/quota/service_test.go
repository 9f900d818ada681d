package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/store/memory"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	orgs  *memory.OrganizationStore
	usage *memory.UsageStore
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orgs := memory.NewOrganizationStore()
	usage := memory.NewUsageStore()
	return &fixture{
		orgs:  orgs,
		usage: usage,
		svc:   NewService(orgs, orgs, usage, WithClock(func() time.Time { return now })),
	}
}

func (f *fixture) org(t *testing.T, id string, typ models.OrganizationType, mutate ...func(*models.Organization)) {
	t.Helper()
	org := &models.Organization{OrgID: id, Name: id, Type: typ, IsActive: true}
	switch typ {
	case models.OrganizationTypeTrial:
		exp := now.Add(10 * 24 * time.Hour)
		org.TrialExpiresAt = &exp
	case models.OrganizationTypeDemo:
		start := now.Add(-time.Hour)
		org.TrialStartedAt = &start
	}
	for _, m := range mutate {
		m(org)
	}
	require.NoError(t, f.orgs.Create(context.Background(), org))
}

func (f *fixture) bump(t *testing.T, id string, c models.CounterType, n int64) {
	t.Helper()
	require.NoError(t, f.usage.Increment(context.Background(), id, models.CounterDate(now), c, n))
}

func TestCheckAccess_Order(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d := f.svc.CheckAccess(ctx, "missing", ActionRead)
	require.False(t, d.Allowed)
	require.Equal(t, CodeOrgNotFound, d.ErrorCode)

	f.org(t, "inactive", models.OrganizationTypePaid, func(o *models.Organization) { o.IsActive = false })
	d = f.svc.CheckAccess(ctx, "inactive", ActionRead)
	require.Equal(t, CodeOrgInactive, d.ErrorCode)

	f.org(t, "expired", models.OrganizationTypeTrial, func(o *models.Organization) {
		exp := now.Add(-time.Minute)
		o.TrialExpiresAt = &exp
	})
	d = f.svc.CheckAccess(ctx, "expired", ActionRead)
	require.Equal(t, CodeTrialExpired, d.ErrorCode)

	// expiry ranks above the demo read-only rule
	f.org(t, "old-demo", models.OrganizationTypeDemo, func(o *models.Organization) {
		start := now.Add(-25 * time.Hour)
		o.TrialStartedAt = &start
	})
	d = f.svc.CheckAccess(ctx, "old-demo", ActionCreateProject)
	require.Equal(t, CodeTrialExpired, d.ErrorCode)
}

func TestCheckAccess_PaidAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.org(t, "paid", models.OrganizationTypePaid)

	f.bump(t, "paid", models.CounterProjects, 500)
	f.bump(t, "paid", models.CounterAICalls, 10_000)
	f.bump(t, "paid", models.CounterStorageMB, 1_000_000)
	require.NoError(t, f.orgs.AddTrialTokens(ctx, "paid", 50_000_000))

	for _, a := range append(GatedActions, ActionRead) {
		require.True(t, f.svc.CheckAccess(ctx, "paid", a).Allowed, a)
	}
}

func TestCheckAccess_DemoReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.org(t, "demo", models.OrganizationTypeDemo)

	d := f.svc.CheckAccess(ctx, "demo", ActionCreateProject)
	require.False(t, d.Allowed)
	require.Equal(t, CodeDemoReadOnly, d.ErrorCode)

	for _, a := range []Action{ActionCreateInitiative, ActionInviteUser, ActionUpload, ActionWrite} {
		require.Equal(t, CodeDemoReadOnly, f.svc.CheckAccess(ctx, "demo", a).ErrorCode, a)
	}

	require.True(t, f.svc.CheckAccess(ctx, "demo", ActionRead).Allowed)
	require.True(t, f.svc.CheckAccess(ctx, "demo", ActionAICall).Allowed)
}

func TestCheckAccess_TrialLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.org(t, "trial", models.OrganizationTypeTrial)

	require.True(t, f.svc.CheckAccess(ctx, "trial", ActionCreateProject).Allowed)

	f.bump(t, "trial", models.CounterProjects, 3)
	d := f.svc.CheckAccess(ctx, "trial", ActionCreateProject)
	require.Equal(t, CodeProjectLimitReached, d.ErrorCode)
	require.Equal(t, int64(3), d.Current)
	require.Equal(t, int64(3), d.Limit)

	f.bump(t, "trial", models.CounterInitiatives, 5)
	require.Equal(t, CodeInitiativeLimitReached, f.svc.CheckAccess(ctx, "trial", ActionCreateInitiative).ErrorCode)

	f.bump(t, "trial", models.CounterUsers, 4)
	require.Equal(t, CodeUserLimitReached, f.svc.CheckAccess(ctx, "trial", ActionInviteUser).ErrorCode)

	f.bump(t, "trial", models.CounterStorageMB, 100)
	require.Equal(t, CodeStorageLimitReached, f.svc.CheckAccess(ctx, "trial", ActionUpload).ErrorCode)
}

func TestCheckAccess_AICall(t *testing.T) {
	ctx := context.Background()

	t.Run("daily soft limit", func(t *testing.T) {
		f := newFixture(t)
		f.org(t, "trial", models.OrganizationTypeTrial)
		f.bump(t, "trial", models.CounterAICalls, 50)

		require.Equal(t, CodeAILimitReached, f.svc.CheckAccess(ctx, "trial", ActionAICall).ErrorCode)

		// yesterday's calls don't count toward today
		yesterday := newFixture(t)
		yesterday.org(t, "trial", models.OrganizationTypeTrial)
		require.NoError(t, yesterday.usage.Increment(ctx, "trial", models.CounterDate(now.Add(-24*time.Hour)), models.CounterAICalls, 50))
		require.True(t, yesterday.svc.CheckAccess(ctx, "trial", ActionAICall).Allowed)
	})

	t.Run("cumulative token budget", func(t *testing.T) {
		f := newFixture(t)
		f.org(t, "trial", models.OrganizationTypeTrial)
		require.NoError(t, f.svc.TrackTokenUsage(ctx, "trial", 100_000))

		require.Equal(t, CodeAITokenBudgetExceeded, f.svc.CheckAccess(ctx, "trial", ActionAICall).ErrorCode)
	})

	t.Run("stored limits override defaults", func(t *testing.T) {
		f := newFixture(t)
		f.org(t, "trial", models.OrganizationTypeTrial)
		limits := models.DefaultLimits("trial", models.OrganizationTypeTrial)
		limits.MaxAICallsPerDay = models.Unlimited
		require.NoError(t, f.orgs.PutLimits(ctx, limits))
		f.bump(t, "trial", models.CounterAICalls, 1000)

		require.True(t, f.svc.CheckAccess(ctx, "trial", ActionAICall).Allowed)
	})
}

type brokenUsage struct{ store.UsageStore }

func (brokenUsage) GetDaily(context.Context, string, string) (*models.UsageCounters, error) {
	return nil, errors.New("usage backend down")
}

func TestCheckAccess_FailOpen(t *testing.T) {
	ctx := context.Background()
	orgs := memory.NewOrganizationStore()
	require.NoError(t, orgs.Create(ctx, &models.Organization{OrgID: "demo", Type: models.OrganizationTypeDemo, IsActive: true}))

	svc := NewService(orgs, orgs, brokenUsage{memory.NewUsageStore()})

	d := svc.CheckAccess(ctx, "demo", ActionCreateProject)
	require.True(t, d.Allowed)
	require.Empty(t, d.ErrorCode)
}

func TestTrialStatus(t *testing.T) {
	days := func(d float64) *time.Time {
		ts := now.Add(time.Duration(d * float64(24*time.Hour)))
		return &ts
	}

	tests := []struct {
		name    string
		org     models.Organization
		expired bool
		days    int
		level   string
	}{
		{"paid never expires", models.Organization{Type: models.OrganizationTypePaid}, false, -1, WarningNone},
		{"trial plenty left", models.Organization{Type: models.OrganizationTypeTrial, TrialExpiresAt: days(10)}, false, 10, WarningNone},
		{"trial warning", models.Organization{Type: models.OrganizationTypeTrial, TrialExpiresAt: days(7)}, false, 7, WarningWarning},
		{"trial rounds up", models.Organization{Type: models.OrganizationTypeTrial, TrialExpiresAt: days(2.1)}, false, 3, WarningCritical},
		{"trial last hours", models.Organization{Type: models.OrganizationTypeTrial, TrialExpiresAt: days(0.1)}, false, 1, WarningCritical},
		{"trial expired", models.Organization{Type: models.OrganizationTypeTrial, TrialExpiresAt: days(-1)}, true, 0, WarningExpired},
		{"trial without expiry", models.Organization{Type: models.OrganizationTypeTrial}, false, -1, WarningNone},
		{"demo fresh", models.Organization{Type: models.OrganizationTypeDemo, TrialStartedAt: days(-0.5)}, false, -1, WarningNone},
		{"demo after 24h", models.Organization{Type: models.OrganizationTypeDemo, TrialStartedAt: days(-1)}, true, 0, WarningExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := trialStatus(&tt.org, now)
			require.Equal(t, tt.expired, ts.IsExpired)
			require.Equal(t, tt.days, ts.DaysRemaining)
			require.Equal(t, tt.level, ts.WarningLevel)
		})
	}
}

func TestGetOrganizationLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.org(t, "demo", models.OrganizationTypeDemo)

	l, err := f.svc.GetOrganizationLimits(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, int64(1), l.MaxProjects)
	require.Equal(t, int64(10), l.MaxAICallsPerDay)

	// unknown organizations fall back to trial defaults
	l, err = f.svc.GetOrganizationLimits(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, int64(3), l.MaxProjects)
	require.Equal(t, []models.AIRole{models.AIRoleAdvisor}, l.AIRolesEnabled)

	org, err := f.svc.GetOrganizationType(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, org)
}

func TestIncrementUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.org(t, "trial", models.OrganizationTypeTrial)

	require.NoError(t, f.svc.IncrementUsage(ctx, "trial", models.CounterAICalls, 0))
	require.NoError(t, f.svc.IncrementUsage(ctx, "trial", models.CounterAICalls, 4))

	u, err := f.svc.GetDailyUsage(ctx, "trial")
	require.NoError(t, err)
	require.Equal(t, int64(5), u.AICallsCount)
	require.Equal(t, "2026-03-10", u.CounterDate)

	err = f.svc.IncrementUsage(ctx, "trial", models.CounterAICalls, -3)
	require.ErrorIs(t, err, ErrNegativeIncrement)

	u, err = f.svc.GetDailyUsage(ctx, "trial")
	require.NoError(t, err)
	require.Equal(t, int64(5), u.AICallsCount)
}

func TestGetTrialUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.org(t, "trial", models.OrganizationTypeTrial)
	f.org(t, "paid", models.OrganizationTypePaid)

	require.NoError(t, f.svc.TrackTokenUsage(ctx, "trial", 1_500))
	require.NoError(t, f.svc.TrackTokenUsage(ctx, "trial", 0))

	tu, err := f.svc.GetTrialUsage(ctx, "trial")
	require.NoError(t, err)
	require.Equal(t, int64(1_500), tu.TokensUsed)
	require.Equal(t, int64(98_500), tu.TokensRemaining)

	tu, err = f.svc.GetTrialUsage(ctx, "paid")
	require.NoError(t, err)
	require.Equal(t, int64(models.Unlimited), tu.TokensRemaining)
}
