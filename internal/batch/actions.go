package batch

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/workshopdl/workshopdl/internal/catalog"
	"github.com/workshopdl/workshopdl/internal/common"
	"github.com/workshopdl/workshopdl/models"
	"github.com/workshopdl/workshopdl/pkg/db"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

// FetchAction resolves and downloads every keyword in the batch.
func FetchAction(c *cli.Context) error {
	return runBatchAction(c, false)
}

// ResolveAction resolves direct links only, downloading nothing.
func ResolveAction(c *cli.Context) error {
	return runBatchAction(c, true)
}

func runBatchAction(c *cli.Context, linkOnly bool) error {
	logger := common.NewLogger(c.Bool("quiet"))
	dataDir, cfg, err := common.Setup()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	applyOverrides(c, cfg)

	keywords, err := Keywords(c.String("keyword"), c.String("list-file"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if limit := c.Int("limit"); limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	if len(keywords) == 0 {
		return cli.Exit("provide --keyword or --list-file", 1)
	}

	var scope *models.GameRecord
	if !c.Bool("global") {
		if c.String("game") != "" || c.Int("appid") > 0 {
			store, err := db.Open(dataDir)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer store.Close()

			session := transport.NewSession(time.Duration(cfg.TimeoutSeconds)*time.Second, cfg.Retries)
			service := catalog.NewService(store, session, cfg.Sites, logger)
			games, err := service.Load(c.Context, c.Bool("refresh-games") || cfg.RefreshGamesCache)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			scope, err = catalog.Resolve(games, c.String("game"), c.Int("appid"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
		} else {
			logger.Info("no game specified, searching globally")
		}
	}

	results, err := New(logger).Run(c.Context, scope, keywords, Options{
		LinkOnly: linkOnly,
		OutDir:   cfg.DownloadDir,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retries:  cfg.Retries,
		Workers:  cfg.Workers,
		Sites:    cfg.Sites,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if linkOnly {
		for _, r := range results {
			if r.OK {
				fmt.Printf("%s\t%s\n", r.Keyword, r.DirectURL)
			}
		}
	}
	return nil
}

// applyOverrides folds per-run CLI flags into the loaded config.
func applyOverrides(c *cli.Context, cfg *models.Config) {
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.TimeoutSeconds = c.Int("timeout")
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	if c.IsSet("out-dir") {
		cfg.DownloadDir = c.String("out-dir")
	}
	cfg.Clamp()
}
