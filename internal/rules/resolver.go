package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// DefaultPolicyLevel applies to organizations with no policy row.
const DefaultPolicyLevel = models.PolicyLevelAssisted

// OriginUserRequest is the origin signal assumed when a payload names none.
const OriginUserRequest = "user_request"

// DefaultRules is the built-in auto-approval rule set.
func DefaultRules() []models.AutoApprovalRule {
	return []models.AutoApprovalRule{
		{
			Name: "low-risk-personal",
			Conditions: map[string]any{
				CondRiskLevelLTE: string(models.RiskLow),
				CondScopeEq:      string(models.ScopeUser),
				CondTimeWindow:   TimeWindowAnytime,
			},
		},
	}
}

var requiredLevels = map[models.ActionType]models.PolicyLevel{
	models.ActionTypeExplainContext:         models.PolicyLevelAdvisory,
	models.ActionTypeAnalyzeRisks:           models.PolicyLevelAdvisory,
	models.ActionTypeGenerateReport:         models.PolicyLevelAssisted,
	models.ActionTypePrepareDecisionSummary: models.PolicyLevelAssisted,
	models.ActionTypeCreateDraftTask:        models.PolicyLevelAssisted,
	models.ActionTypeCreateDraftInitiative:  models.PolicyLevelAssisted,
	models.ActionTypeSuggestRoadmapChange:   models.PolicyLevelProactive,
	models.ActionTypeScheduleMeeting:        models.PolicyLevelProactive,
}

// RequiredLevelFor returns the minimum policy level needed for t.
// Unknown types require AUTONOMOUS.
func RequiredLevelFor(t models.ActionType) models.PolicyLevel {
	if l, ok := requiredLevels[t]; ok {
		return l
	}
	return models.PolicyLevelAutonomous
}

var defaultRisk = map[models.ActionType]models.RiskLevel{
	models.ActionTypeExplainContext:         models.RiskLow,
	models.ActionTypeAnalyzeRisks:           models.RiskLow,
	models.ActionTypeGenerateReport:         models.RiskLow,
	models.ActionTypeCreateDraftTask:        models.RiskLow,
	models.ActionTypeCreateDraftInitiative:  models.RiskMedium,
	models.ActionTypePrepareDecisionSummary: models.RiskMedium,
	models.ActionTypeSuggestRoadmapChange:   models.RiskHigh,
	models.ActionTypeScheduleMeeting:        models.RiskHigh,
}

// ProposalFor derives the rule-facing descriptor of an action from its type
// and payload. Payload keys risk_level, scope and origin_signal override the
// per-type defaults when they hold valid values.
func ProposalFor(t models.ActionType, payload map[string]any) Proposal {
	p := Proposal{
		ActionType:   t,
		RiskLevel:    models.RiskHigh,
		Scope:        models.ScopeUser,
		OriginSignal: OriginUserRequest,
	}
	if r, ok := defaultRisk[t]; ok {
		p.RiskLevel = r
	}
	if t == models.ActionTypeCreateDraftInitiative || t == models.ActionTypeSuggestRoadmapChange {
		p.Scope = models.ScopeInitiative
	}

	if v, ok := payload["risk_level"].(string); ok && models.RiskLevel(v).Valid() {
		p.RiskLevel = models.RiskLevel(v)
	}
	if v, ok := payload["scope"].(string); ok && models.Scope(v).Valid() {
		p.Scope = models.Scope(v)
	}
	if v, ok := payload["origin_signal"].(string); ok && v != "" {
		p.OriginSignal = v
	}

	return p
}

// PolicyDecision is the outcome of CanPerformAction.
type PolicyDecision struct {
	Allowed          bool               `json:"allowed"`
	RequiresApproval bool               `json:"requiresApproval"`
	RequiresUpgrade  bool               `json:"requiresUpgrade"`
	RequiredLevel    models.PolicyLevel `json:"requiredPolicyLevel"`
	CurrentLevel     models.PolicyLevel `json:"currentPolicyLevel"`
	MatchedRule      string             `json:"matchedRule,omitempty"`
	Reason           string             `json:"reason,omitempty"`
}

// Resolver maps an organization's policy onto individual proposals.
type Resolver struct {
	policies     store.PolicyStore
	defaultLevel models.PolicyLevel
	defaultRules []models.AutoApprovalRule
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDefaultPolicy replaces the level and rules used when an organization has no policy row.
func WithDefaultPolicy(level models.PolicyLevel, rules []models.AutoApprovalRule) ResolverOption {
	return func(r *Resolver) {
		if level.Valid() {
			r.defaultLevel = level
		}
		if rules != nil {
			r.defaultRules = slices.Clone(rules)
		}
	}
}

// NewResolver creates a policy-level resolver.
func NewResolver(policies store.PolicyStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		policies:     policies,
		defaultLevel: DefaultPolicyLevel,
		defaultRules: DefaultRules(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PolicyFor returns the effective policy of an organization.
func (r *Resolver) PolicyFor(ctx context.Context, orgID string) (*models.OrgPolicy, error) {
	policy, err := r.policies.GetOrgPolicy(ctx, orgID)
	if errors.Is(err, store.ErrPolicyNotFound) {
		return &models.OrgPolicy{
			OrgID:       orgID,
			PolicyLevel: r.defaultLevel,
			Rules:       slices.Clone(r.defaultRules),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy for organization %s: %w", orgID, err)
	}
	return policy, nil
}

// CanPerformAction decides whether the organization's policy level permits p
// and whether it needs a human.
func (r *Resolver) CanPerformAction(ctx context.Context, orgID string, p Proposal) (*PolicyDecision, error) {
	policy, err := r.PolicyFor(ctx, orgID)
	if err != nil {
		return nil, err
	}

	decision := &PolicyDecision{
		RequiredLevel:    RequiredLevelFor(p.ActionType),
		CurrentLevel:     policy.PolicyLevel,
		RequiresApproval: true,
	}

	if !policy.PolicyLevel.AtLeast(decision.RequiredLevel) {
		decision.RequiresUpgrade = true
		decision.Reason = fmt.Sprintf("%s requires policy level %s, organization is at %s",
			p.ActionType, decision.RequiredLevel, policy.PolicyLevel)
		return decision, nil
	}
	decision.Allowed = true

	if policy.PolicyLevel.AtLeast(models.PolicyLevelProactive) {
		for _, rule := range policy.Rules {
			if EvaluateConditions(rule.Conditions, p, orgID) {
				decision.RequiresApproval = false
				decision.MatchedRule = rule.Name
				break
			}
		}
	}

	if ForcesApproval(p) {
		decision.RequiresApproval = true
		decision.MatchedRule = ""
	}

	zerolog.Ctx(ctx).Debug().
		Str("org_id", orgID).
		Str("action_type", string(p.ActionType)).
		Str("policy_level", string(policy.PolicyLevel)).
		Bool("requires_approval", decision.RequiresApproval).
		Str("matched_rule", decision.MatchedRule).
		Msg("policy evaluated")

	return decision, nil
}
