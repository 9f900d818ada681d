package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/orchestrator"
	"github.com/wolfeidau/governor/internal/store"
)

type ActionsCmd struct {
	Pending ActionsPendingCmd `cmd:"" help:"List actions awaiting approval"`
	Approve ActionsApproveCmd `cmd:"" help:"Approve a pending action"`
	Reject  ActionsRejectCmd  `cmd:"" help:"Reject a pending action"`
	Execute ActionsExecuteCmd `cmd:"" help:"Execute an approved action"`
	Audit   ActionsAuditCmd   `cmd:"" help:"Show the decision audit log of an organization"`
}

type ActionsPendingCmd struct {
	Org     string `help:"filter by organization ID" env:"GOVERNOR_ORG_ID"`
	User    string `help:"filter by requesting user ID"`
	Project string `help:"filter by project ID"`
	Limit   int    `help:"maximum number of actions" default:"50"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *ActionsPendingCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		pending, err := e.orc.GetPendingActions(ctx, orchestrator.PendingFilter{
			OrgID:     c.Org,
			UserID:    c.User,
			ProjectID: c.Project,
			Limit:     c.Limit,
		})
		if err != nil {
			return err
		}

		if c.Output.isJSON() {
			return printJSON(os.Stdout, pending)
		}

		if len(pending) == 0 {
			fmt.Println(styleDim.Render("No pending actions"))
			return nil
		}

		rows := make([][]string, 0, len(pending))
		for _, p := range pending {
			rows = append(rows, []string{
				p.ID,
				string(p.Type),
				p.OrgID,
				p.ProjectID,
				p.UserID,
				string(p.RequiredPolicyLevel),
				p.CreatedAt.Local().Format(time.DateTime),
				summary(p),
			})
		}
		fmt.Print(renderTable(
			[]string{"ID", "TYPE", "ORG", "PROJECT", "USER", "LEVEL", "CREATED", "SUMMARY"},
			rows,
		))
		return nil
	})
}

type ActionsApproveCmd struct {
	ID   string `arg:"" help:"action ID"`
	User string `help:"ID of the approving user" required:"" env:"GOVERNOR_USER_ID"`
	Yes  bool   `help:"skip the confirmation prompt" short:"y"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *ActionsApproveCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		if !c.Yes {
			ok, err := confirmAction(ctx, e, c.ID, "Approve action")
			if err != nil || !ok {
				return err
			}
		}

		res, err := e.orc.ApproveAction(ctx, c.ID, c.User)
		if err != nil {
			return err
		}
		return printTransition(c.Output, res.Success, res.ErrorCode, res.Error, res)
	})
}

type ActionsRejectCmd struct {
	ID     string `arg:"" help:"action ID"`
	User   string `help:"ID of the rejecting user" required:"" env:"GOVERNOR_USER_ID"`
	Reason string `help:"feedback recorded in the audit log"`
	Yes    bool   `help:"skip the confirmation prompt" short:"y"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *ActionsRejectCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		if !c.Yes {
			ok, err := confirmAction(ctx, e, c.ID, "Reject action")
			if err != nil || !ok {
				return err
			}
			if c.Reason == "" {
				if c.Reason, err = promptReason(); err != nil {
					return err
				}
			}
		}

		res, err := e.orc.RejectAction(ctx, c.ID, c.User, c.Reason)
		if err != nil {
			return err
		}
		return printTransition(c.Output, res.Success, res.ErrorCode, res.Error, res)
	})
}

type ActionsExecuteCmd struct {
	ID   string `arg:"" help:"action ID"`
	User string `help:"ID of the executing user" required:"" env:"GOVERNOR_USER_ID"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *ActionsExecuteCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		res, err := e.orc.ExecuteAction(ctx, c.ID, c.User)
		if err != nil {
			return err
		}

		if c.Output.isJSON() {
			if err := printJSON(os.Stdout, res); err != nil {
				return err
			}
		} else if res.Success {
			fmt.Printf("%s %s\n", styleGreen.Render("✓"), res.Output.Message)
			if res.Output.EntityID != "" {
				fmt.Printf("  %s %s\n", styleDim.Render(res.Output.EntityType), res.Output.EntityID)
			}
		}

		if !res.Success {
			return fmt.Errorf("%s: %s", res.ErrorCode, res.Error)
		}
		return nil
	})
}

type ActionsAuditCmd struct {
	Org   string `help:"organization ID" required:"" env:"GOVERNOR_ORG_ID"`
	Limit int    `help:"maximum number of entries" default:"50"`

	Store  StoreFlags  `embed:""`
	Output OutputFlags `embed:""`
}

func (c *ActionsAuditCmd) Run(ctx context.Context, globals *Globals) error {
	return withEngine(ctx, globals, &c.Store, "", func(ctx context.Context, e *engine) error {
		entries, err := e.orc.ListAuditLog(ctx, c.Org, c.Limit)
		if err != nil {
			return err
		}

		if c.Output.isJSON() {
			return printJSON(os.Stdout, entries)
		}

		rows := make([][]string, 0, len(entries))
		for _, en := range entries {
			decision := styleGreen.Render(string(en.UserDecision))
			if en.UserDecision == models.UserDecisionRejected {
				decision = styleRed.Render(string(en.UserDecision))
			}
			rows = append(rows, []string{
				en.CreatedAt.Local().Format(time.DateTime),
				decision,
				en.UserID,
				en.ActionID,
				en.ActionDescription,
				en.UserFeedback,
			})
		}
		fmt.Print(renderTable([]string{"WHEN", "DECISION", "USER", "ACTION", "DESCRIPTION", "FEEDBACK"}, rows))
		return nil
	})
}

// confirmAction shows the action and asks before resolving it.
func confirmAction(ctx context.Context, e *engine, id, title string) (bool, error) {
	action, err := e.orc.GetAction(ctx, id)
	if errors.Is(err, store.ErrActionNotFound) {
		return false, fmt.Errorf("action %s not found", id)
	}
	if err != nil {
		return false, err
	}

	desc := fmt.Sprintf("%s requested by %s in %s (status %s)",
		action.Type, action.UserID, action.OrgID, statusStyle(action.Status).Render(string(action.Status)))
	return confirm(title, desc)
}

func printTransition(out OutputFlags, success bool, code, msg string, res any) error {
	if out.isJSON() {
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
	} else if success {
		fmt.Println(styleGreen.Render("✓ done"))
	}

	if !success {
		return fmt.Errorf("%s: %s", code, msg)
	}
	return nil
}

// summary renders the draft title or name when the action carries one.
func summary(p *orchestrator.PendingAction) string {
	switch d := p.Draft.(type) {
	case models.TaskDraft:
		return d.Title
	case models.InitiativeDraft:
		return d.Name
	}
	if title, ok := p.Payload["title"].(string); ok {
		return title
	}
	return ""
}
