package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/history"
	"github.com/Tharunreddy-N/JnP-Automation/internal/logparse"
	"github.com/Tharunreddy-N/JnP-Automation/internal/realtime"
	"github.com/Tharunreddy-N/JnP-Automation/internal/registry"
	"github.com/Tharunreddy-N/JnP-Automation/internal/store"
)

// updater refreshes one module: read the log tail, parse it, merge
// into the seven-day window, archive, and publish an event.
type updater struct {
	cfg     *config.Config
	reg     *registry.Registry
	history *history.Store
	archive store.ExecutionStore
	events  *realtime.Broker
	log     zerolog.Logger
}

func (u *updater) update(ctx context.Context, moduleID string) (history.MergeResult, error) {
	module, ok := u.reg.Module(moduleID)
	if !ok {
		return history.MergeResult{}, fmt.Errorf("unknown module %q", moduleID)
	}

	parser := logparse.New(logparse.WithResolver(func(name string) (string, bool) {
		return u.reg.Resolve(moduleID, name)
	}))
	parsed, err := parser.ParseFile(module.LogFile, u.cfg.MaxLogTailMB<<20)
	if errors.Is(err, os.ErrNotExist) {
		u.log.Debug().Str("module", moduleID).Msg("log file absent, nothing to merge")
		return history.MergeResult{}, nil
	}
	if err != nil {
		return history.MergeResult{}, fmt.Errorf("parse %s: %w", module.LogFile, err)
	}
	if parsed.LinesSkipped > 0 {
		u.log.Debug().Str("module", moduleID).Int("skipped", parsed.LinesSkipped).
			Msg("unparseable log lines skipped")
	}

	res, err := u.history.Merge(ctx, moduleID, parsed.Records)
	if err != nil {
		return history.MergeResult{}, err
	}

	if u.archive != nil && len(parsed.Records) > 0 {
		execs := make([]store.Execution, 0, len(parsed.Records))
		for _, rec := range parsed.Records {
			execs = append(execs, store.Execution{
				Module:      moduleID,
				TestName:    rec.TestName,
				Status:      string(rec.Status),
				StartedAt:   rec.Timestamp,
				RunningTime: rec.RunningTime,
			})
		}
		if _, err := u.archive.RecordExecutions(ctx, execs); err != nil {
			// The archive is best effort; the JSON window is the
			// source of truth for the API.
			u.log.Warn().Err(err).Str("module", moduleID).Msg("archive write failed")
		}
	}

	if u.events != nil && (res.Added > 0 || res.Updated > 0) {
		u.events.Publish(realtime.Event{
			Type:    realtime.TypeHistoryUpdated,
			Module:  moduleID,
			Added:   res.Added,
			Updated: res.Updated,
		})
	}
	return res, nil
}

func (a *app) updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Parse module logs and merge new results into the history (one-shot)",
		ArgsUsage: "[module-id ...]",
		Action:    a.runUpdate,
	}
}

func (a *app) runUpdate(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg, a.logger)
	if err != nil {
		return err
	}
	hist := history.NewStore(cfg.HistoryDir, config.ParseDuration(cfg.MergeTimeout, 10*time.Second), a.logger)

	u := &updater{cfg: cfg, reg: reg, history: hist, log: a.logger}

	ids := ctx.Args().Slice()
	if len(ids) == 0 {
		for _, m := range cfg.Modules {
			ids = append(ids, m.ID)
		}
	}

	results := make(map[string]history.MergeResult, len(ids))
	for _, id := range ids {
		res, err := u.update(ctx.Context, id)
		if err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		results[id] = res
		a.logger.Info().Str("module", id).Int("added", res.Added).
			Int("updated", res.Updated).Int("pruned", res.Pruned).Msg("module updated")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
