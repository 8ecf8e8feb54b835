package commands

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/workshopdl/workshopdl/internal/catalog"
	"github.com/workshopdl/workshopdl/internal/common"
	"github.com/workshopdl/workshopdl/internal/names"
	"github.com/workshopdl/workshopdl/pkg/db"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

// PrefillAction resolves localized names for every supported game up front,
// so later listings render instantly.
func PrefillAction(c *cli.Context) error {
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
	games, err := catalog.NewService(store, session, cfg.Sites, logger).Load(c.Context, c.Bool("refresh-games"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	service := names.NewService(store, logger, timeout, cfg.Retries)
	if err := service.Prefill(c.Context, games, c.Int("prefill-workers")); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("Prefilled localized names for %d games\n", len(games))
	return nil
}
