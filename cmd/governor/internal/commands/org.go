package commands

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/quota"
)

type OrgCmd struct {
	Create   OrgCreateCmd   `cmd:"" help:"Create an organization with its tier defaults"`
	SetType  OrgSetTypeCmd  `cmd:"" name:"set-type" help:"Upgrade an organization to a higher tier"`
	Snapshot OrgSnapshotCmd `cmd:"" help:"Show the aggregated policy snapshot"`
	Check    OrgCheckCmd    `cmd:"" help:"Check whether an organization may perform an action"`
	Usage    OrgUsageCmd    `cmd:"" help:"Show token and daily usage"`
}

type OrgCreateCmd struct {
	ID   string `arg:"" help:"organization ID"`
	Name string `help:"display name"`
	Type string `help:"organization type (DEMO, TRIAL or PAID)" default:"TRIAL"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *OrgCreateCmd) Run(ctx context.Context, globals *Globals) error {
	orgType, err := models.ParseOrganizationType(c.Type)
	if err != nil {
		return err
	}

	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		now := time.Now().UTC()
		org := &models.Organization{
			OrgID:     c.ID,
			Name:      c.Name,
			Type:      orgType,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		switch orgType {
		case models.OrganizationTypeTrial:
			exp := now.Add(quota.TrialDuration)
			org.TrialStartedAt = &now
			org.TrialExpiresAt = &exp
		case models.OrganizationTypeDemo:
			org.TrialStartedAt = &now
		}

		if err := e.stores.Organizations.Create(ctx, org); err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}
		if orgType != models.OrganizationTypePaid {
			if err := e.quota.CreateDefaultLimits(ctx, org.OrgID, orgType); err != nil {
				return err
			}
		}

		if c.Output.isJSON() {
			return printJSON(os.Stdout, org)
		}
		fmt.Printf("%s created %s organization %s\n", styleGreen.Render("✓"), org.Type, org.OrgID)
		return nil
	})
}

type OrgSetTypeCmd struct {
	ID   string `arg:"" help:"organization ID"`
	Type string `arg:"" help:"new organization type (TRIAL or PAID)"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *OrgSetTypeCmd) Run(ctx context.Context, globals *Globals) error {
	orgType, err := models.ParseOrganizationType(c.Type)
	if err != nil {
		return err
	}

	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		org, err := e.quota.ChangeOrganizationType(ctx, c.ID, orgType)
		if err != nil {
			return err
		}

		if c.Output.isJSON() {
			return printJSON(os.Stdout, org)
		}
		fmt.Printf("%s %s is now %s\n", styleGreen.Render("✓"), org.OrgID, org.Type)
		return nil
	})
}

type OrgSnapshotCmd struct {
	ID string `arg:"" help:"organization ID"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *OrgSnapshotCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		snap, err := e.quota.BuildPolicySnapshot(ctx, c.ID)
		if err != nil {
			return err
		}

		if c.Output.isJSON() {
			return printJSON(os.Stdout, snap)
		}

		if snap.Banner != nil {
			fmt.Println(messageStyle(snap.Banner.Level).Render(snap.Banner.Title + ": " + snap.Banner.Body))
			fmt.Println()
		}

		l := snap.Limits
		if l == nil {
			l = models.DefaultLimits(snap.OrgID, snap.OrganizationType)
		}
		rows := [][]string{
			{"Type", string(snap.OrganizationType)},
			{"Active", fmt.Sprintf("%t", snap.IsActive)},
			{"Seats", seatText(snap.Seats)},
			{"Projects", fmt.Sprintf("%d / %s", snap.Usage.Projects, limitText(l.MaxProjects))},
			{"Users", fmt.Sprintf("%d / %s", snap.Usage.Users, limitText(l.MaxUsers))},
			{"Initiatives", fmt.Sprintf("%d / %s", snap.Usage.Initiatives, limitText(l.MaxInitiatives))},
			{"Storage MB", fmt.Sprintf("%d / %s", snap.Usage.StorageMB, limitText(l.MaxStorageMB))},
			{"AI calls today", fmt.Sprintf("%d / %s", snap.Usage.AICallsToday, limitText(l.MaxAICallsPerDay))},
			{"Tokens", fmt.Sprintf("%d / %s", snap.Usage.TokensUsed, limitText(l.MaxTotalTokens))},
		}
		if snap.Trial != nil && snap.Trial.ExpiresAt != nil {
			rows = append(rows, []string{"Expires", fmt.Sprintf("%s (%d days, %s)",
				snap.Trial.ExpiresAt.Local().Format(time.DateOnly), snap.Trial.DaysRemaining, snap.Trial.WarningLevel)})
		}
		if len(snap.BlockedFeatures) > 0 {
			rows = append(rows, []string{"Blocked", styleRed.Render(strings.Join(snap.BlockedFeatures, ", "))})
		}
		fmt.Print(renderTable([]string{"FIELD", "VALUE"}, rows))
		return nil
	})
}

type OrgCheckCmd struct {
	ID     string `arg:"" help:"organization ID"`
	Action string `arg:"" help:"action to check (create_project, create_initiative, invite_user, ai_call, upload, write, read)"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *OrgCheckCmd) Run(ctx context.Context, globals *Globals) error {
	action := quota.Action(c.Action)
	if action != quota.ActionRead && !slices.Contains(quota.GatedActions, action) {
		return fmt.Errorf("unknown action %q", c.Action)
	}

	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		d := e.quota.CheckAccess(ctx, c.ID, action)

		if c.Output.isJSON() {
			return printJSON(os.Stdout, d)
		}

		line := fmt.Sprintf("%s %s", action, allowedText(d.Allowed))
		if !d.Allowed {
			line += styleDim.Render(fmt.Sprintf(" (%s: %s)", d.ErrorCode, d.Reason))
		}
		fmt.Println(line)
		return nil
	})
}

type OrgUsageCmd struct {
	ID          string `arg:"" help:"organization ID"`
	TrackTokens int64  `help:"record one AI call that consumed this many tokens before reporting"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

type usageReport struct {
	Trial *quota.TrialUsage     `json:"trial"`
	Today *models.UsageCounters `json:"today"`
}

func (c *OrgUsageCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		if c.TrackTokens > 0 {
			if err := e.quota.TrackTokenUsage(ctx, c.ID, c.TrackTokens); err != nil {
				return err
			}
			if err := e.quota.IncrementUsage(ctx, c.ID, models.CounterAICalls, 1); err != nil {
				return err
			}
		}

		trial, err := e.quota.GetTrialUsage(ctx, c.ID)
		if err != nil {
			return err
		}
		today, err := e.quota.GetDailyUsage(ctx, c.ID)
		if err != nil {
			return err
		}

		if c.Output.isJSON() {
			return printJSON(os.Stdout, usageReport{Trial: trial, Today: today})
		}

		fmt.Print(renderTable([]string{"COUNTER", "VALUE"}, [][]string{
			{"Tokens used", fmt.Sprintf("%d", trial.TokensUsed)},
			{"Token budget", limitText(trial.TokenLimit)},
			{"Tokens remaining", limitText(trial.TokensRemaining)},
			{"AI calls today", fmt.Sprintf("%d", today.AICallsCount)},
			{"Projects today", fmt.Sprintf("%d", today.ProjectsCount)},
			{"Users today", fmt.Sprintf("%d", today.UsersCount)},
			{"Initiatives today", fmt.Sprintf("%d", today.InitiativesCount)},
			{"Storage MB today", fmt.Sprintf("%d", today.StorageUsedMB)},
		}))
		return nil
	})
}

func messageStyle(level string) lipgloss.Style {
	switch level {
	case "critical", "error":
		return styleRed
	case "warning":
		return styleYellow
	default:
		return styleDim
	}
}

func seatText(s *quota.SeatAvailability) string {
	if s == nil || s.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d of %d available", s.Available, s.Limit)
}
