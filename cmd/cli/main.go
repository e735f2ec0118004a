package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/fieldsense/waterline/cmd/cli/internal/commands"
	"github.com/fieldsense/waterline/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd   `cmd:"" help:"Log in to the registry"`
		Logout  commands.LogoutCmd  `cmd:"" help:"Log out and clear stored credentials"`
		Signup  commands.SignupCmd  `cmd:"" help:"Register a new account"`
		Confirm commands.ConfirmCmd `cmd:"" help:"Confirm a registration with the emailed code"`
		Whoami  commands.WhoamiCmd  `cmd:"" help:"Show the current user"`
		Devices commands.DevicesCmd `cmd:"" help:"Browse, claim and monitor devices"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
