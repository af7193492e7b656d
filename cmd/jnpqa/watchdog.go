package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// watchdogCommand is a one-shot health probe meant to be called from
// the operator's crontab as a backstop for the long-running
// supervisor.
func (a *app) watchdogCommand() *cli.Command {
	return &cli.Command{
		Name:   "watchdog",
		Usage:  "Probe the API health endpoint once; optionally run a restart command on failure",
		Action: a.runWatchdog,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "api",
				Usage: "API base URL (defaults to the configured listen address)",
			},
			&cli.StringFlag{
				Name:  "restart-cmd",
				Usage: "command to run if unhealthy",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "health check timeout",
			},
		},
	}
}

func (a *app) runWatchdog(ctx *cli.Context) error {
	base := ctx.String("api")
	if base == "" {
		cfg, err := a.loadConfig(ctx)
		if err != nil {
			return err
		}
		base = "http://" + cfg.Listen
	}
	url := strings.TrimRight(base, "/") + "/api/health"

	client := &http.Client{Timeout: ctx.Duration("timeout")}
	resp, err := client.Get(url)
	if err != nil {
		a.logger.Error().Err(err).Str("url", url).Msg("health check failed")
		return a.handleUnhealthy(ctx.String("restart-cmd"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Error().Int("status", resp.StatusCode).Str("url", url).Msg("health check unhealthy")
		return a.handleUnhealthy(ctx.String("restart-cmd"))
	}

	a.logger.Info().Str("url", url).Msg("healthy")
	return nil
}

func (a *app) handleUnhealthy(restartCmd string) error {
	if restartCmd == "" {
		return cli.Exit("unhealthy", 1)
	}

	a.logger.Warn().Str("cmd", restartCmd).Msg("attempting restart")
	cmd := exec.Command("sh", "-c", restartCmd)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("restart command failed: %v", err), 1)
	}
	return nil
}
