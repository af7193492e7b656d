package main

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
)

func (a *app) locksCommand() *cli.Command {
	return &cli.Command{
		Name:  "locks",
		Usage: "Inspect and repair the shared coordination locks",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Show each lock and its holder",
				Action: a.runLocksList,
			},
			{
				Name:   "reset",
				Usage:  "Remove stale locks (all locks with --force)",
				Action: a.runLocksReset,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "release locks even when the holder is alive",
					},
				},
			},
		},
	}
}

func (a *app) locksCoordinator(ctx *cli.Context) (*locks.FileCoordinator, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return locks.NewFileCoordinator(cfg.LockDir, a.logger), nil
}

func (a *app) runLocksList(ctx *cli.Context) error {
	coord, err := a.locksCoordinator(ctx)
	if err != nil {
		return err
	}

	type lockView struct {
		Holder *locks.Info `json:"holder"`
		Alive  bool        `json:"alive,omitempty"`
	}
	out := make(map[string]lockView)
	for _, name := range coord.Names() {
		holder, err := coord.Holder(name)
		if err != nil {
			return err
		}
		view := lockView{Holder: holder}
		if holder != nil {
			view.Alive = locks.PIDAlive(holder.PID)
		}
		out[name] = view
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (a *app) runLocksReset(ctx *cli.Context) error {
	coord, err := a.locksCoordinator(ctx)
	if err != nil {
		return err
	}

	if ctx.Bool("force") {
		for _, name := range coord.Names() {
			if err := coord.Release(name); err != nil {
				return err
			}
		}
		a.logger.Info().Msg("all locks released")
		return nil
	}

	reclaimed, err := coord.ReclaimStale()
	if err != nil {
		return err
	}
	a.logger.Info().Strs("locks", reclaimed).Msg("stale locks reclaimed")
	return nil
}
