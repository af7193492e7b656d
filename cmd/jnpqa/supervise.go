package main

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
	"github.com/Tharunreddy-N/JnP-Automation/internal/queue"
	"github.com/Tharunreddy-N/JnP-Automation/internal/supervise"
)

func (a *app) superviseCommand() *cli.Command {
	return &cli.Command{
		Name:   "supervise",
		Usage:  "Keep the QA worker process alive, restarting it within the configured budget",
		Action: a.runSupervise,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "port-probe",
				Usage: "probe the TCP port instead of the health URL",
			},
		},
	}
}

// superviseConfig resolves the YAML duration strings into the
// supervisor's runtime config.
func superviseConfig(cfg *config.Config) supervise.Config {
	sup := cfg.Supervisor
	return supervise.Config{
		PIDFile:       sup.PIDFile,
		CheckInterval: config.ParseDuration(sup.CheckInterval, 5*time.Second),
		StartGrace:    config.ParseDuration(sup.StartGrace, 30*time.Second),
		RestartDelay:  config.ParseDuration(sup.RestartDelay, 5*time.Second),
		MaxRestarts:   sup.MaxRestarts,
		RestartWindow: config.ParseDuration(sup.RestartWindow, time.Hour),
	}
}

func (a *app) runSupervise(cliCtx *cli.Context) error {
	cfg, err := a.loadConfig(cliCtx)
	if err != nil {
		return err
	}
	sup := cfg.Supervisor
	if sup.WorkerCommand == "" {
		return errors.New("supervisor.worker_command is not configured")
	}

	for _, dir := range []string{cfg.DataDir, cfg.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var probe supervise.Prober
	if cliCtx.Bool("port-probe") {
		host := "127.0.0.1"
		if u, err := url.Parse(sup.HealthURL); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
		probe = supervise.PortProber(host, sup.Port)
		a.logger.Info().Str("host", host).Int("port", sup.Port).Msg("probing worker port")
	} else {
		probe = supervise.HTTPProber(sup.HealthURL)
		a.logger.Info().Str("url", sup.HealthURL).Msg("probing worker health endpoint")
	}

	coord := locks.NewFileCoordinator(cfg.LockDir, a.logger)

	s := supervise.New(superviseConfig(cfg), &supervise.ExecLauncher{Command: sup.WorkerCommand}, probe, coord, a.logger)
	s.ResetQueue = queue.NewFile(cfg.QueueFile, coord, a.logger).Reset

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info().Msg("supervisor stopped")
		return nil
	}
	return err
}
