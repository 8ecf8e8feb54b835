// workshopdl resolves workshop item names into direct-download URLs through
// a cascade of third-party sites and downloads them concurrently.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/workshopdl/workshopdl/internal/batch"
	"github.com/workshopdl/workshopdl/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp()
	if err := app.RunContext(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(err)
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	batchFlags := []cli.Flag{
		&cli.StringFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "single search keyword"},
		&cli.StringFlag{Name: "list-file", Usage: "keyword list file, one keyword per line"},
		&cli.StringFlag{Name: "game", Aliases: []string{"g"}, Usage: "game name or slug"},
		&cli.IntFlag{Name: "appid", Usage: "numeric app id"},
		&cli.BoolFlag{Name: "global", Usage: "search across all games"},
		&cli.StringFlag{Name: "out-dir", Aliases: []string{"o"}, Usage: "output directory"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "concurrent download workers"},
		&cli.IntFlag{Name: "timeout", Usage: "request timeout in seconds"},
		&cli.IntFlag{Name: "retries", Usage: "retry count for network failures"},
		&cli.IntFlag{Name: "limit", Usage: "cap the keyword count"},
		&cli.BoolFlag{Name: "refresh-games", Usage: "refresh the games cache before resolving"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
	}

	return &cli.App{
		Name:  "workshopdl",
		Usage: "resolve and download workshop items via third-party mirrors",
		Commands: []*cli.Command{
			{
				Name:   "fetch",
				Usage:  "resolve keywords and download the files",
				Flags:  batchFlags,
				Action: batch.FetchAction,
			},
			{
				Name:   "resolve",
				Usage:  "resolve keywords to direct links without downloading",
				Flags:  batchFlags,
				Action: batch.ResolveAction,
			},
			{
				Name:  "games",
				Usage: "manage the supported-games cache",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list supported games",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "filter games by keyword"},
							&cli.BoolFlag{Name: "refresh-games", Usage: "refresh the cache first"},
							&cli.BoolFlag{Name: "no-name-fill", Usage: "skip localized name lookups"},
							&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
						},
						Action: commands.ListAction,
					},
					{
						Name:  "refresh",
						Usage: "re-scrape the supported-games list",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
						},
						Action: commands.RefreshAction,
					},
				},
			},
			{
				Name:  "names",
				Usage: "manage localized display names",
				Subcommands: []*cli.Command{
					{
						Name:  "prefill",
						Usage: "resolve localized names for all supported games",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "prefill-workers", Value: 8, Usage: "workers for the prefill"},
							&cli.BoolFlag{Name: "refresh-games", Usage: "refresh the games cache first"},
							&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
						},
						Action: commands.PrefillAction,
					},
				},
			},
		},
	}
}
