package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/governor/cmd/governor/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" help:"Start the governance API server"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Actions commands.ActionsCmd `cmd:"" help:"Review and resolve AI actions"`
		Org     commands.OrgCmd     `cmd:"" help:"Inspect organization tiers, limits and usage"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("governor"),
		kong.Description("AI governance and policy enforcement engine"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
