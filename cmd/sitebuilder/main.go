package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/cmd/sitebuilder/commands"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("sitebuilder"),
		kong.Description("Build, validate and preview the static marketing site."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String(), "config_path": commands.DefaultConfigPath},
	)

	err := parser.Run(&commands.Global{}, cli)
	errors.NewCLIErrorAdapter(cli.Verbose, nil).HandleError(err)
}
