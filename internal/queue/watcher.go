package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
	"github.com/Tharunreddy-N/JnP-Automation/internal/logfile"
	"github.com/Tharunreddy-N/JnP-Automation/internal/runner"
)

// Resolver maps queued test names onto modules.
type Resolver interface {
	FindModuleForTest(name string) (config.Module, string, bool)
}

// TestRunner executes a single test.
type TestRunner interface {
	RunTest(ctx context.Context, tc runner.TestContext, timeout time.Duration, opts *runner.RunOptions) *runner.Result
}

// Watcher polls the queue file and, while it can hold the execution
// lock, drains queued tests one at a time. Each test's output is
// appended to its module's log so the next history update picks the
// result up through the normal parse path.
type Watcher struct {
	queue    *File
	coord    locks.Coordinator
	resolver Resolver
	runner   TestRunner
	log      zerolog.Logger

	Interval    time.Duration
	TestTimeout time.Duration

	// OnDrained is called after a drain pass that ran at least one
	// test, with the modules whose logs changed.
	OnDrained func(modules []string)
}

func NewWatcher(queue *File, coord locks.Coordinator, resolver Resolver, run TestRunner, log zerolog.Logger) *Watcher {
	return &Watcher{
		queue:       queue,
		coord:       coord,
		resolver:    resolver,
		runner:      run,
		log:         log.With().Str("component", "queue-watcher").Logger(),
		Interval:    5 * time.Second,
		TestTimeout: 30 * time.Minute,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().Str("queue", w.queue.Path()).Dur("interval", w.Interval).Msg("queue watcher started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("queue watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil && !errors.Is(err, locks.ErrHeld) {
				w.log.Error().Err(err).Msg("drain failed")
			}
		}
	}
}

// Drain runs every currently queued test. It returns locks.ErrHeld
// without touching the queue when another process is executing tests.
func (w *Watcher) Drain(ctx context.Context) error {
	n, err := w.queue.Len()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	if _, err := w.coord.Acquire(locks.Execution); err != nil {
		if errors.Is(err, locks.ErrHeld) {
			w.log.Debug().Msg("execution lock held, skipping drain")
		}
		return err
	}
	defer w.coord.Release(locks.Execution)

	touched := make(map[string]bool)
	for ctx.Err() == nil {
		name, err := w.queue.Pop()
		if errors.Is(err, ErrEmpty) {
			break
		}
		if err != nil {
			return err
		}
		if module := w.runOne(ctx, name); module != "" {
			touched[module] = true
		}
	}

	if len(touched) > 0 && w.OnDrained != nil {
		modules := make([]string, 0, len(touched))
		for m := range touched {
			modules = append(modules, m)
		}
		w.OnDrained(modules)
	}
	return ctx.Err()
}

// runOne executes a single queued test and returns the module whose
// log received the output, or "" when the test could not be placed.
func (w *Watcher) runOne(ctx context.Context, name string) string {
	module, fullName, ok := w.resolver.FindModuleForTest(name)
	if !ok {
		w.log.Warn().Str("test", name).Msg("queued test matches no module, dropping")
		return ""
	}

	w.log.Info().Str("test", fullName).Str("module", module.ID).Msg("running queued test")
	res := w.runner.RunTest(ctx, runner.TestContext{
		Module:     module.ID,
		TestName:   fullName,
		Collection: module.Collection,
		Trigger:    "queue",
	}, w.TestTimeout, nil)

	header := fmt.Sprintf("Start: %s", time.Now().Format("20060102 15:04:05"))
	body := header + "\n" + res.Stdout
	if res.Stderr != "" {
		body += "\n" + res.Stderr
	}
	// A normal failing run reports FAIL in its own output; only
	// record ERROR when the command never ran to completion.
	if res.Error == "timeout" || res.ExitCode < 0 {
		body += fmt.Sprintf("\nTEST %s: ERROR\n", fullName)
	}
	if err := logfile.Append(module.LogFile, body); err != nil {
		w.log.Error().Err(err).Str("module", module.ID).Msg("log append failed")
		return ""
	}

	w.log.Info().Str("test", fullName).Int("exit_code", res.ExitCode).
		Int64("duration_ms", res.DurationMs).Msg("queued test finished")
	return module.ID
}
