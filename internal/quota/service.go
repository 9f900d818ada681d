// Package quota resolves tenant tiers, trial expiry and usage limits.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
	"github.com/wolfeidau/governor/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Action is a tenant-level operation gated by CheckAccess.
type Action string

const (
	ActionCreateProject    Action = "create_project"
	ActionCreateInitiative Action = "create_initiative"
	ActionInviteUser       Action = "invite_user"
	ActionAICall           Action = "ai_call"
	ActionUpload           Action = "upload"
	ActionWrite            Action = "write"
	ActionRead             Action = "read"
)

// GatedActions lists every action with a limit or tier rule.
var GatedActions = []Action{
	ActionCreateProject,
	ActionCreateInitiative,
	ActionInviteUser,
	ActionAICall,
	ActionUpload,
	ActionWrite,
}

// demoReadOnly is the action set DEMO tenants may never perform.
var demoReadOnly = map[Action]bool{
	ActionCreateProject:    true,
	ActionCreateInitiative: true,
	ActionInviteUser:       true,
	ActionUpload:           true,
	ActionWrite:            true,
}

// Error codes carried by denied AccessDecisions.
const (
	CodeOrgNotFound            = "ORG_NOT_FOUND"
	CodeOrgInactive            = "ORG_INACTIVE"
	CodeTrialExpired           = "TRIAL_EXPIRED"
	CodeDemoReadOnly           = "DEMO_READ_ONLY"
	CodeProjectLimitReached    = "PROJECT_LIMIT_REACHED"
	CodeInitiativeLimitReached = "INITIATIVE_LIMIT_REACHED"
	CodeUserLimitReached       = "USER_LIMIT_REACHED"
	CodeAILimitReached         = "AI_LIMIT_REACHED"
	CodeAITokenBudgetExceeded  = "AI_TOKEN_BUDGET_EXCEEDED"
	CodeStorageLimitReached    = "STORAGE_LIMIT_REACHED"
)

const (
	// TrialDuration is the length of a TRIAL started by a tier change.
	TrialDuration = 14 * 24 * time.Hour
	// DemoDuration is how long a DEMO tenant stays usable after it starts.
	DemoDuration = 24 * time.Hour
)

// Warning levels reported by CheckTrialStatus.
const (
	WarningNone     = "none"
	WarningWarning  = "warning"
	WarningCritical = "critical"
	WarningExpired  = "expired"
)

// AccessDecision is the result of CheckAccess.
type AccessDecision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Current   int64  `json:"current,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
}

func allow() *AccessDecision { return &AccessDecision{Allowed: true} }

func deny(code, reason string) *AccessDecision {
	return &AccessDecision{ErrorCode: code, Reason: reason}
}

// TrialStatus describes how long a tenant has left.
type TrialStatus struct {
	OrganizationType models.OrganizationType `json:"organizationType"`
	IsExpired        bool                    `json:"isExpired"`
	DaysRemaining    int                     `json:"daysRemaining"`
	WarningLevel     string                  `json:"warningLevel"`
	ExpiresAt        *time.Time              `json:"expiresAt,omitempty"`
}

// TrialUsage reports cumulative token spend against the hard budget.
type TrialUsage struct {
	TokensUsed      int64 `json:"tokensUsed"`
	TokenLimit      int64 `json:"tokenLimit"`
	TokensRemaining int64 `json:"tokensRemaining"`
}

// Service is the tenant quota tracker.
type Service struct {
	orgs   store.OrganizationStore
	limits store.LimitsStore
	usage  store.UsageStore
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a quota service.
func NewService(orgs store.OrganizationStore, limits store.LimitsStore, usage store.UsageStore, opts ...Option) *Service {
	s := &Service{
		orgs:   orgs,
		limits: limits,
		usage:  usage,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrganizationType loads the tenant record. A missing organization returns nil, nil.
func (s *Service) GetOrganizationType(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %s: %w", orgID, err)
	}
	return org, nil
}

// GetOrganizationLimits returns the stored limits row or the tier defaults.
func (s *Service) GetOrganizationLimits(ctx context.Context, orgID string) (*models.OrganizationLimits, error) {
	org, err := s.GetOrganizationType(ctx, orgID)
	if err != nil {
		return nil, err
	}
	orgType := models.OrganizationTypeTrial
	if org != nil {
		orgType = org.Type
	}
	return s.limitsFor(ctx, orgID, orgType)
}

func (s *Service) limitsFor(ctx context.Context, orgID string, orgType models.OrganizationType) (*models.OrganizationLimits, error) {
	limits, err := s.limits.GetLimits(ctx, orgID)
	if errors.Is(err, store.ErrLimitsNotFound) {
		return models.DefaultLimits(orgID, orgType), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load limits for %s: %w", orgID, err)
	}
	return limits, nil
}

// CheckTrialStatus computes expiry for the tenant.
func (s *Service) CheckTrialStatus(ctx context.Context, orgID string) (*TrialStatus, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %s: %w", orgID, err)
	}
	return trialStatus(org, s.now()), nil
}

func trialStatus(org *models.Organization, now time.Time) *TrialStatus {
	ts := &TrialStatus{
		OrganizationType: org.Type,
		DaysRemaining:    -1,
		WarningLevel:     WarningNone,
	}

	switch org.Type {
	case models.OrganizationTypePaid:
		return ts

	case models.OrganizationTypeDemo:
		if org.TrialStartedAt == nil {
			return ts
		}
		exp := org.TrialStartedAt.Add(DemoDuration)
		ts.ExpiresAt = &exp
		if !now.Before(exp) {
			ts.IsExpired = true
			ts.DaysRemaining = 0
			ts.WarningLevel = WarningExpired
		}
		return ts

	default:
		if org.TrialExpiresAt == nil {
			return ts
		}
		exp := *org.TrialExpiresAt
		ts.ExpiresAt = &exp
		days := int(math.Ceil(exp.Sub(now).Hours() / 24))
		ts.DaysRemaining = max(days, 0)

		switch {
		case days <= 0:
			ts.IsExpired = true
			ts.WarningLevel = WarningExpired
		case days <= 3:
			ts.WarningLevel = WarningCritical
		case days <= 7:
			ts.WarningLevel = WarningWarning
		}
		return ts
	}
}

// GetDailyUsage returns today's counters (UTC calendar date).
func (s *Service) GetDailyUsage(ctx context.Context, orgID string) (*models.UsageCounters, error) {
	u, err := s.usage.GetDaily(ctx, orgID, models.CounterDate(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to load daily usage for %s: %w", orgID, err)
	}
	return u, nil
}

// ErrNegativeIncrement is returned when a usage increment would lower a counter.
var ErrNegativeIncrement = errors.New("usage increment must not be negative")

// IncrementUsage atomically adds amount to today's counter. Zero counts as one.
func (s *Service) IncrementUsage(ctx context.Context, orgID string, counter models.CounterType, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeIncrement, amount)
	}
	if amount == 0 {
		amount = 1
	}
	if err := s.usage.Increment(ctx, orgID, models.CounterDate(s.now()), counter, amount); err != nil {
		return fmt.Errorf("failed to increment %s for %s: %w", counter, orgID, err)
	}

	telemetry.GetMetrics().UsageIncrementsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("counter", string(counter))))

	return nil
}

// TrackTokenUsage adds to the cumulative token counter.
func (s *Service) TrackTokenUsage(ctx context.Context, orgID string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	if err := s.orgs.AddTrialTokens(ctx, orgID, tokens); err != nil {
		return fmt.Errorf("failed to track tokens for %s: %w", orgID, err)
	}

	telemetry.GetMetrics().TokensTrackedTotal.Add(ctx, tokens)

	return nil
}

// GetTrialUsage reports token spend against the hard budget.
func (s *Service) GetTrialUsage(ctx context.Context, orgID string) (*TrialUsage, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %s: %w", orgID, err)
	}
	limits, err := s.limitsFor(ctx, orgID, org.Type)
	if err != nil {
		return nil, err
	}

	tu := &TrialUsage{
		TokensUsed:      org.TrialTokensUsed,
		TokenLimit:      limits.MaxTotalTokens,
		TokensRemaining: models.Unlimited,
	}
	if limits.MaxTotalTokens != models.Unlimited {
		tu.TokensRemaining = max(limits.MaxTotalTokens-org.TrialTokensUsed, 0)
	}
	return tu, nil
}

// accessState is everything CheckAccess needs, loaded once.
type accessState struct {
	org    *models.Organization
	limits *models.OrganizationLimits
	daily  *models.UsageCounters
	totals *models.UsageCounters
	trial  *TrialStatus
}

func (s *Service) loadState(ctx context.Context, orgID string) (*accessState, error) {
	org, err := s.GetOrganizationType(ctx, orgID)
	if err != nil || org == nil {
		return &accessState{}, err
	}

	st := &accessState{org: org, trial: trialStatus(org, s.now())}

	if st.limits, err = s.limitsFor(ctx, orgID, org.Type); err != nil {
		return nil, err
	}
	if st.daily, err = s.GetDailyUsage(ctx, orgID); err != nil {
		return nil, err
	}
	if st.totals, err = s.usage.GetTotals(ctx, orgID); err != nil {
		return nil, fmt.Errorf("failed to load usage totals for %s: %w", orgID, err)
	}
	return st, nil
}

// CheckAccess is the master tenant gate. Internal errors are logged and
// converted into an allow decision so an infrastructure fault never locks
// tenants out.
func (s *Service) CheckAccess(ctx context.Context, orgID string, action Action) *AccessDecision {
	st, err := s.loadState(ctx, orgID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("org_id", orgID).
			Str("action", string(action)).
			Msg("access check failed, allowing")
		telemetry.GetMetrics().AccessFailOpenTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("action", string(action))))
		return allow()
	}

	d := decide(st, action)
	if !d.Allowed {
		telemetry.GetMetrics().AccessDeniedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("code", d.ErrorCode)))
		zerolog.Ctx(ctx).Debug().
			Str("org_id", orgID).
			Str("action", string(action)).
			Str("error_code", d.ErrorCode).
			Msg("access denied")
	}
	return d
}

func decide(st *accessState, action Action) *AccessDecision {
	if st.org == nil {
		return deny(CodeOrgNotFound, "Organization not found")
	}
	if !st.org.IsActive {
		return deny(CodeOrgInactive, "Organization is inactive")
	}

	if st.org.Type != models.OrganizationTypePaid && st.trial.IsExpired {
		if st.org.Type == models.OrganizationTypeDemo {
			return deny(CodeTrialExpired, "Demo period has ended. Start a trial to continue.")
		}
		return deny(CodeTrialExpired, "Trial has expired. Upgrade to continue.")
	}

	if st.org.Type == models.OrganizationTypeDemo && demoReadOnly[action] {
		return deny(CodeDemoReadOnly, "Demo organizations are read-only")
	}

	if st.org.Type == models.OrganizationTypePaid {
		return allow()
	}

	l := st.limits
	switch action {
	case ActionCreateProject:
		return checkLimit(st.totals.ProjectsCount, l.MaxProjects, CodeProjectLimitReached, "Project limit reached")
	case ActionCreateInitiative:
		return checkLimit(st.totals.InitiativesCount, l.MaxInitiatives, CodeInitiativeLimitReached, "Initiative limit reached")
	case ActionInviteUser:
		return checkLimit(st.totals.UsersCount, l.MaxUsers, CodeUserLimitReached, "User limit reached")
	case ActionAICall:
		if d := checkLimit(st.daily.AICallsCount, l.MaxAICallsPerDay, CodeAILimitReached, "Daily AI call limit reached"); !d.Allowed {
			return d
		}
		return checkLimit(st.org.TrialTokensUsed, l.MaxTotalTokens, CodeAITokenBudgetExceeded, "AI token budget exhausted")
	case ActionUpload:
		return checkLimit(st.totals.StorageUsedMB, l.MaxStorageMB, CodeStorageLimitReached, "Storage limit reached")
	}

	return allow()
}

func checkLimit(current, limit int64, code, reason string) *AccessDecision {
	if limit == models.Unlimited || current < limit {
		return allow()
	}
	d := deny(code, fmt.Sprintf("%s (%d/%d)", reason, current, limit))
	d.Current = current
	d.Limit = limit
	return d
}
