package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
	"github.com/Tharunreddy-N/JnP-Automation/internal/queue"
	"github.com/Tharunreddy-N/JnP-Automation/internal/registry"
	"github.com/Tharunreddy-N/JnP-Automation/internal/runner"
)

func (a *app) watchCommand() *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Poll the shared test queue and run queued tests under the execution lock",
		Action: a.runWatch,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Value: 5 * time.Second,
				Usage: "queue poll interval",
			},
			&cli.DurationFlag{
				Name:  "test-timeout",
				Value: 30 * time.Minute,
				Usage: "per-test execution timeout",
			},
		},
	}
}

func (a *app) runWatch(cliCtx *cli.Context) error {
	cfg, err := a.loadConfig(cliCtx)
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.DataDir, cfg.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	reg, err := registry.New(cfg, a.logger)
	if err != nil {
		return err
	}
	coord := locks.NewFileCoordinator(cfg.LockDir, a.logger)
	if reclaimed, err := coord.ReclaimStale(); err != nil {
		a.logger.Warn().Err(err).Msg("stale lock reclaim failed")
	} else if len(reclaimed) > 0 {
		a.logger.Info().Strs("locks", reclaimed).Msg("stale locks reclaimed")
	}

	q := queue.NewFile(cfg.QueueFile, coord, a.logger)
	w := queue.NewWatcher(q, coord, reg, runner.New(cfg.TestCommand), a.logger)
	w.Interval = cliCtx.Duration("interval")
	w.TestTimeout = cliCtx.Duration("test-timeout")

	// Nudge the API after a drain so the new results show up without
	// waiting for the next scheduled update.
	client := &http.Client{Timeout: 10 * time.Second}
	w.OnDrained = func(modules []string) {
		for _, id := range modules {
			url := fmt.Sprintf("http://%s/api/modules/%s/update", cfg.Listen, id)
			resp, err := client.Post(url, "application/json", nil)
			if err != nil {
				a.logger.Debug().Err(err).Str("module", id).Msg("api update nudge failed")
				continue
			}
			resp.Body.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info().Msg("queue watcher stopped")
		return nil
	}
	return err
}
