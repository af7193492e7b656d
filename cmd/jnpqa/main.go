package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
)

const appName = "jnpqa"

type app struct {
	logger zerolog.Logger
	cli    *cli.App
}

func newApp() *app {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	a := &app{logger: logger}
	a.cli = &cli.App{
		Name:  appName,
		Usage: "QA automation operational layer: log history, worker supervision, test queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "jnpqa.yaml",
				Usage:   "path to configuration file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose (debug) logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			a.serveCommand(),
			a.superviseCommand(),
			a.watchCommand(),
			a.updateCommand(),
			a.locksCommand(),
			a.watchdogCommand(),
		},
	}
	return a
}

// loadConfig reads the configured YAML and applies the log level it
// carries unless --verbose already forced debug.
func (a *app) loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !ctx.Bool("verbose") && cfg.LogLevel != "" {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
		}
		zerolog.SetGlobalLevel(level)
	}
	return cfg, nil
}

func main() {
	a := newApp()
	if err := a.cli.Run(os.Args); err != nil {
		a.logger.Fatal().Err(err).Msg("command failed")
	}
}
