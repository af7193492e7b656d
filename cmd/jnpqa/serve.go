package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/history"
	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
	"github.com/Tharunreddy-N/JnP-Automation/internal/logwatch"
	"github.com/Tharunreddy-N/JnP-Automation/internal/queue"
	"github.com/Tharunreddy-N/JnP-Automation/internal/realtime"
	"github.com/Tharunreddy-N/JnP-Automation/internal/registry"
	"github.com/Tharunreddy-N/JnP-Automation/internal/scheduler"
	"github.com/Tharunreddy-N/JnP-Automation/internal/store"
	"github.com/Tharunreddy-N/JnP-Automation/internal/supervise"
	"github.com/Tharunreddy-N/JnP-Automation/internal/web"
	"github.com/Tharunreddy-N/JnP-Automation/internal/web/api"
)

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the aggregation HTTP API with scheduled history updates",
		Action: a.runServe,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "with-worker",
				Usage: "also supervise the QA worker process in this daemon",
			},
		},
	}
}

func (a *app) runServe(cliCtx *cli.Context) error {
	cfg, err := a.loadConfig(cliCtx)
	if err != nil {
		return err
	}
	listen := cfg.Listen
	if v := cliCtx.String("listen"); v != "" {
		listen = v
	}

	for _, dir := range []string{cfg.DataDir, cfg.HistoryDir, cfg.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	reg, err := registry.New(cfg, a.logger)
	if err != nil {
		return err
	}
	hist := history.NewStore(cfg.HistoryDir, config.ParseDuration(cfg.MergeTimeout, 10*time.Second), a.logger)

	archive, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "archive.db"))
	if err != nil {
		return err
	}
	defer archive.Close()
	a.logger.Info().Str("path", filepath.Join(cfg.DataDir, "archive.db")).Msg("execution archive opened")

	broker := realtime.NewBroker()
	u := &updater{cfg: cfg, reg: reg, history: hist, archive: archive, events: broker, log: a.logger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background refresh shared by the scheduler and the log watcher.
	refresh := func(moduleID string) {
		updCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := u.update(updCtx, moduleID); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error().Err(err).Str("module", moduleID).Msg("scheduled update failed")
		}
	}

	sched := scheduler.NewScheduler(func(moduleID string) { go refresh(moduleID) })
	schedule, err := scheduler.ParseSchedule(cfg.UpdateSchedule)
	if err != nil {
		return err
	}
	for _, m := range cfg.Modules {
		sched.Add(m.ID, schedule)
	}
	sched.Start()
	defer sched.Stop()
	a.logger.Info().Str("schedule", cfg.UpdateSchedule).Int("modules", len(cfg.Modules)).
		Msg("update scheduler started")

	watcher := logwatch.New(cfg.Modules, refresh, a.logger)

	apiHandler := &api.API{
		Registry:     reg,
		History:      hist,
		Archive:      archive,
		Events:       broker,
		Update:       u.update,
		LogTailBytes: cfg.MaxLogTailMB << 20,
		Log:          a.logger,
	}

	var worker *supervise.Supervisor
	if cliCtx.Bool("with-worker") {
		if cfg.Supervisor.WorkerCommand == "" {
			return errors.New("supervisor.worker_command is not configured")
		}
		coord := locks.NewFileCoordinator(cfg.LockDir, a.logger)
		worker = supervise.New(superviseConfig(cfg), &supervise.ExecLauncher{Command: cfg.Supervisor.WorkerCommand},
			supervise.HTTPProber(cfg.Supervisor.HealthURL), coord, a.logger)
		worker.ResetQueue = queue.NewFile(cfg.QueueFile, coord, a.logger).Reset
		apiHandler.WorkerStatus = func() *supervise.Status {
			st := worker.Status()
			return &st
		}
	}

	srv := web.NewServer(listen, apiHandler, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	if worker != nil {
		g.Go(func() error {
			err := worker.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := watcher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
