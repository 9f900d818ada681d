package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/models"
)

// ErrDowngradeNotAllowed is returned when a tier change would lower the tier.
var ErrDowngradeNotAllowed = errors.New("organization type can only be upgraded")

// CreateDefaultLimits writes the tier defaults as the organization's limits row.
func (s *Service) CreateDefaultLimits(ctx context.Context, orgID string, orgType models.OrganizationType) error {
	if err := s.limits.PutLimits(ctx, models.DefaultLimits(orgID, orgType)); err != nil {
		return fmt.Errorf("failed to create default limits for %s: %w", orgID, err)
	}
	return nil
}

// RemoveLimits deletes the organization's limits row.
func (s *Service) RemoveLimits(ctx context.Context, orgID string) error {
	if err := s.limits.DeleteLimits(ctx, orgID); err != nil {
		return fmt.Errorf("failed to remove limits for %s: %w", orgID, err)
	}
	return nil
}

// ChangeOrganizationType upgrades a tenant. Moving to TRIAL starts a fresh
// trial window and writes trial limits; moving to PAID drops the limits row.
func (s *Service) ChangeOrganizationType(ctx context.Context, orgID string, newType models.OrganizationType) (*models.Organization, error) {
	if !newType.Valid() {
		return nil, fmt.Errorf("invalid organization type %q", newType)
	}

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %s: %w", orgID, err)
	}

	if newType == org.Type {
		return org, nil
	}
	if newType.Rank() < org.Type.Rank() {
		return nil, fmt.Errorf("%s to %s: %w", org.Type, newType, ErrDowngradeNotAllowed)
	}

	from := org.Type
	org.Type = newType

	switch newType {
	case models.OrganizationTypeTrial:
		now := s.now()
		exp := now.Add(TrialDuration)
		org.TrialStartedAt = &now
		org.TrialExpiresAt = &exp
		if err := s.CreateDefaultLimits(ctx, orgID, newType); err != nil {
			return nil, err
		}
	case models.OrganizationTypePaid:
		if err := s.RemoveLimits(ctx, orgID); err != nil {
			return nil, err
		}
	}

	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to update organization %s: %w", orgID, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("org_id", orgID).
		Str("from", string(from)).
		Str("to", string(newType)).
		Msg("organization type changed")

	return org, nil
}
