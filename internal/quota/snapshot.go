package quota

import (
	"context"
	"fmt"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// Message is banner or modal text for the UI.
type Message struct {
	Level string `json:"level"` // info, warning, critical, error
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SeatAvailability describes user seats. Unlimited seats report -1 for Limit and Available.
type SeatAvailability struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Available int64 `json:"available"`
	Unlimited bool  `json:"unlimited"`
}

// UsageSummary is the usage part of a PolicySnapshot.
type UsageSummary struct {
	Projects     int64 `json:"projects"`
	Users        int64 `json:"users"`
	Initiatives  int64 `json:"initiatives"`
	StorageMB    int64 `json:"storageMb"`
	AICallsToday int64 `json:"aiCallsToday"`
	TokensUsed   int64 `json:"tokensUsed"`
}

// PolicySnapshot is the consolidated gating read model for one tenant.
type PolicySnapshot struct {
	OrgID            string                     `json:"organizationId"`
	OrganizationType models.OrganizationType    `json:"organizationType"`
	IsActive         bool                       `json:"isActive"`
	Trial            *TrialStatus               `json:"trial"`
	Limits           *models.OrganizationLimits `json:"limits"`
	Usage            UsageSummary               `json:"usage"`
	Seats            *SeatAvailability          `json:"seats"`
	BlockedActions   []Action                   `json:"blockedActions"`
	BlockedFeatures  []string                   `json:"blockedFeatures"`
	Denials          map[Action]*AccessDecision `json:"denials,omitempty"`
	Banner           *Message                   `json:"banner,omitempty"`
	Modal            *Message                   `json:"modal,omitempty"`
}

var featureForAction = map[Action]string{
	ActionCreateProject:    "projects",
	ActionCreateInitiative: "initiatives",
	ActionInviteUser:       "team_invites",
	ActionAICall:           "ai_assistant",
	ActionUpload:           "file_uploads",
	ActionWrite:            "editing",
}

// BuildPolicySnapshot aggregates tier, trial, limits and usage into one
// object so the UI never re-implements gating.
func (s *Service) BuildPolicySnapshot(ctx context.Context, orgID string) (*PolicySnapshot, error) {
	st, err := s.loadState(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if st.org == nil {
		return nil, fmt.Errorf("building snapshot for %s: %w", orgID, store.ErrOrganizationNotFound)
	}

	snap := &PolicySnapshot{
		OrgID:            orgID,
		OrganizationType: st.org.Type,
		IsActive:         st.org.IsActive,
		Trial:            st.trial,
		Limits:           st.limits,
		Usage: UsageSummary{
			Projects:     st.totals.ProjectsCount,
			Users:        st.totals.UsersCount,
			Initiatives:  st.totals.InitiativesCount,
			StorageMB:    st.totals.StorageUsedMB,
			AICallsToday: st.daily.AICallsCount,
			TokensUsed:   st.org.TrialTokensUsed,
		},
		Seats:           seats(st),
		BlockedActions:  []Action{},
		BlockedFeatures: []string{},
		Denials:         map[Action]*AccessDecision{},
	}

	for _, a := range GatedActions {
		d := decide(st, a)
		if d.Allowed {
			continue
		}
		snap.BlockedActions = append(snap.BlockedActions, a)
		snap.BlockedFeatures = append(snap.BlockedFeatures, featureForAction[a])
		snap.Denials[a] = d
	}

	snap.Banner, snap.Modal = messages(st)

	return snap, nil
}

func messages(st *accessState) (banner, modal *Message) {
	switch {
	case !st.org.IsActive:
		modal = &Message{Level: "error", Title: "Organization suspended", Body: "This organization is inactive. Contact your administrator."}
		return modal, modal
	case st.org.Type == models.OrganizationTypePaid:
		return nil, nil
	case st.trial.IsExpired && st.org.Type == models.OrganizationTypeDemo:
		modal = &Message{Level: "error", Title: "Demo ended", Body: "Your demo has ended. Start a free trial to keep working."}
		return modal, modal
	case st.trial.IsExpired:
		modal = &Message{Level: "error", Title: "Trial expired", Body: "Your trial has expired. Upgrade to continue using the workspace."}
		return modal, modal
	case st.org.Type == models.OrganizationTypeDemo:
		return &Message{Level: "info", Title: "Demo mode", Body: "You are exploring a read-only demo."}, nil
	case st.trial.WarningLevel == WarningCritical:
		return &Message{Level: "critical", Title: "Trial ending", Body: fmt.Sprintf("Your trial ends in %d day(s).", st.trial.DaysRemaining)}, nil
	case st.trial.WarningLevel == WarningWarning:
		return &Message{Level: "warning", Title: "Trial ending soon", Body: fmt.Sprintf("Your trial ends in %d days.", st.trial.DaysRemaining)}, nil
	}
	return nil, nil
}

func seats(st *accessState) *SeatAvailability {
	if st.org.Type == models.OrganizationTypePaid || st.limits.MaxUsers == models.Unlimited {
		return &SeatAvailability{
			Used:      st.totals.UsersCount,
			Limit:     models.Unlimited,
			Available: models.Unlimited,
			Unlimited: true,
		}
	}
	return &SeatAvailability{
		Used:      st.totals.UsersCount,
		Limit:     st.limits.MaxUsers,
		Available: max(st.limits.MaxUsers-st.totals.UsersCount, 0),
	}
}

// GetSeatAvailability reports user seats for the invitation flow.
func (s *Service) GetSeatAvailability(ctx context.Context, orgID string) (*SeatAvailability, error) {
	st, err := s.loadState(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if st.org == nil {
		return nil, fmt.Errorf("seat availability for %s: %w", orgID, store.ErrOrganizationNotFound)
	}
	return seats(st), nil
}

// CanInviteUsers applies the invite_user gate and additionally refuses when
// count would overflow the remaining seats.
func (s *Service) CanInviteUsers(ctx context.Context, orgID string, count int64) *AccessDecision {
	d := s.CheckAccess(ctx, orgID, ActionInviteUser)
	if !d.Allowed || count <= 1 {
		return d
	}

	sa, err := s.GetSeatAvailability(ctx, orgID)
	if err != nil || sa.Unlimited {
		return allow()
	}
	if count > sa.Available {
		out := deny(CodeUserLimitReached, fmt.Sprintf("Only %d seat(s) available", sa.Available))
		out.Current = sa.Used
		out.Limit = sa.Limit
		return out
	}
	return d
}
