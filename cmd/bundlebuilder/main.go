package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/gaoking123/AssetBundles-BuildPipeline/cmd/bundlebuilder/commands"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{}
	ctx := kong.Parse(&cli,
		kong.Name("bundlebuilder"),
		kong.Description("Build asset bundles from a project catalog."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	if err := ctx.Run(global, &cli); err != nil {
		dberrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
