package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/gravitational/trace"

	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/lib/logger"
)

const (
	appName        = "market-cli"
	appDescription = "Command line client for the campus marketplace"
)

var (
	Version = "0.1.0"
	Gitref  string
)

var cli CLI

func main() {
	logger.Init()

	ctx := kong.Parse(
		&cli,
		kong.UsageOnError(),
		kong.Configuration(KongTOMLResolver),
		kong.Name(appName),
		kong.Description(appDescription),
	)

	cli.Globals.stdout = os.Stdout
	cli.Globals.stderr = os.Stderr

	// See respective commands Run() methods
	err := ctx.Run(&cli.Globals)
	if cli.Debug && err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", trace.DebugReport(err))
	}
	if err != nil {
		lib.Bail(err)
	}
}
