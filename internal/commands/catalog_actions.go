package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/workshopdl/workshopdl/internal/catalog"
	"github.com/workshopdl/workshopdl/internal/common"
	"github.com/workshopdl/workshopdl/internal/names"
	"github.com/workshopdl/workshopdl/pkg/db"
	"github.com/workshopdl/workshopdl/pkg/extract"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

// ListAction prints the supported-games table, optionally filtered, with
// best-effort localized names.
func ListAction(c *cli.Context) error {
	logger := common.NewLogger(c.Bool("quiet"))
	dataDir, cfg, err := common.Setup()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	store, err := db.Open(dataDir)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer store.Close()

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	session := transport.NewSession(timeout, cfg.Retries)
	service := catalog.NewService(store, session, cfg.Sites, logger)

	games, err := service.Load(c.Context, c.Bool("refresh-games") || cfg.RefreshGamesCache)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if search := c.String("search"); search != "" {
		games = catalog.Filter(games, search)
	}
	sort.Slice(games, func(i, j int) bool {
		if games[i].Name != games[j].Name {
			return games[i].Name < games[j].Name
		}
		return games[i].AppID < games[j].AppID
	})

	fillNames := !c.Bool("no-name-fill")
	var nameService *names.Service
	if fillNames {
		nameService = names.NewService(store, logger, timeout, cfg.Retries)
	}

	fmt.Printf("%-8s %-45s %s\n", "AppId", "Game", "Localized")
	fmt.Printf("%s %s %s\n", strings.Repeat("-", 8), strings.Repeat("-", 45), strings.Repeat("-", 20))
	for _, g := range games {
		english, localized := extract.SplitNames(g.Name, g.Aliases)
		if localized == "" && fillNames {
			if resolved, err := nameService.Resolve(c.Context, session, english); err == nil {
				localized = resolved
			}
		}
		fmt.Printf("%-8d %-45s %s\n", g.AppID, english, localized)
	}
	return nil
}

// RefreshAction re-scrapes the supported-games list.
func RefreshAction(c *cli.Context) error {
	logger := common.NewLogger(c.Bool("quiet"))
	dataDir, cfg, err := common.Setup()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	store, err := db.Open(dataDir)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer store.Close()

	session := transport.NewSession(time.Duration(cfg.TimeoutSeconds)*time.Second, cfg.Retries)
	games, err := catalog.NewService(store, session, cfg.Sites, logger).Refresh(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	fmt.Printf("Refreshed games cache: %d games\n", len(games))
	return nil
}
