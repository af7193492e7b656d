// Package supervise keeps the QA worker process alive: it starts the
// worker, probes its health endpoint, restarts it when it dies or
// stops answering, and gives up once restarts exceed the configured
// budget.
package supervise

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
)

// Config is the supervisor's resolved runtime configuration.
type Config struct {
	PIDFile       string
	CheckInterval time.Duration
	StartGrace    time.Duration
	RestartDelay  time.Duration
	MaxRestarts   int
	RestartWindow time.Duration
}

// Process is a handle on a running worker.
type Process interface {
	PID() int
	// Stop asks the process to exit, escalating after grace.
	Stop(grace time.Duration) error
}

// Launcher starts worker processes. The returned channel receives the
// process's exit error (nil for clean exit) exactly once.
type Launcher interface {
	Launch(ctx context.Context) (Process, <-chan error, error)
}

// Prober reports whether the worker currently looks healthy.
type Prober func(ctx context.Context) bool

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State        State      `json:"state"`
	PID          int        `json:"pid,omitempty"`
	Restarts     int        `json:"restarts"`
	Adopted      bool       `json:"adopted,omitempty"`
	Since        time.Time  `json:"since"`
	LastExitTime *time.Time `json:"last_exit_time,omitempty"`
	LastExitErr  string     `json:"last_exit_error,omitempty"`
}

// Supervisor drives one worker through its lifecycle.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	probe    Prober
	coord    locks.Coordinator
	log      zerolog.Logger
	alive    func(int) bool
	now      func() time.Time

	// OnState is called after every state transition.
	OnState func(Status)

	// ResetQueue, when set, empties the persisted test queue during
	// startup reclamation. A crash mid-run must not leave stale queue
	// entries behind a fresh worker.
	ResetQueue func() error

	mu       sync.Mutex
	state    State
	proc     Process
	exitCh   <-chan error
	adopted  int // pid of an adopted, externally started worker
	since    time.Time
	restarts []time.Time
	lastExit *time.Time
	lastErr  string
	startAt  time.Time // when the current Starting phase began
}

func New(cfg Config, launcher Launcher, probe Prober, coord locks.Coordinator, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		probe:    probe,
		coord:    coord,
		log:      log.With().Str("component", "supervisor").Logger(),
		alive:    locks.PIDAlive,
		now:      time.Now,
		state:    Stopped,
		since:    time.Now(),
	}
}

// Status returns the current snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Supervisor) statusLocked() Status {
	st := Status{
		State:        s.state,
		Restarts:     len(s.restarts),
		Since:        s.since,
		LastExitTime: s.lastExit,
		LastExitErr:  s.lastErr,
	}
	if s.proc != nil {
		st.PID = s.proc.PID()
	} else if s.adopted != 0 {
		st.PID = s.adopted
		st.Adopted = true
	}
	return st
}

func (s *Supervisor) setState(state State) {
	s.state = state
	s.since = s.now()
	status := s.statusLocked()
	s.log.Info().Str("state", state.String()).Int("pid", status.PID).Msg("worker state")
	if s.OnState != nil {
		s.OnState(status)
	}
}

// Run supervises until ctx is cancelled. Starting twice against an
// already healthy worker adopts it instead of spawning a second one.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.coord != nil {
		if reclaimed, err := s.coord.ReclaimStale(); err != nil {
			s.log.Warn().Err(err).Msg("stale lock reclaim failed")
		} else if len(reclaimed) > 0 {
			s.log.Info().Strs("locks", reclaimed).Msg("stale locks reclaimed")
		}
	}
	if s.ResetQueue != nil {
		if err := s.ResetQueue(); err != nil {
			s.log.Warn().Err(err).Msg("queue reset failed")
		}
	}

	if err := s.start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	var restartTimer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case err := <-s.exitChan():
			restartTimer = s.onExit(err)
		case <-restartTimer:
			restartTimer = nil
			if err := s.start(ctx); err != nil {
				restartTimer = s.onExit(err)
			}
		case <-ticker.C:
			if t := s.tick(ctx); t != nil {
				restartTimer = t
			}
		}
	}
}

// exitChan returns the current process's exit channel, or a channel
// that never fires when there is no launched process.
func (s *Supervisor) exitChan() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCh != nil {
		return s.exitCh
	}
	return make(chan error)
}

// start brings the worker up, adopting an existing healthy one if the
// pid file points at a live process that answers the health probe.
func (s *Supervisor) start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Failed {
		s.mu.Unlock()
		return nil
	}
	s.setState(Starting)
	s.startAt = s.now()
	s.mu.Unlock()

	if pid, err := CleanStalePIDFile(s.cfg.PIDFile, s.alive); err != nil {
		s.log.Warn().Err(err).Msg("pid file cleanup failed")
	} else if pid != 0 {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckInterval)
		healthy := s.probe(probeCtx)
		cancel()
		if healthy {
			s.log.Info().Int("pid", pid).Msg("adopting healthy worker")
			s.mu.Lock()
			s.adopted = pid
			s.proc = nil
			s.exitCh = nil
			s.setState(Running)
			s.mu.Unlock()
			return nil
		}
		// Live but unhealthy: take it down before starting fresh.
		s.log.Warn().Int("pid", pid).Msg("existing worker unhealthy, stopping it")
		_ = (&externalProcess{pid: pid}).Stop(s.cfg.RestartDelay)
		_ = RemovePIDFile(s.cfg.PIDFile)
	}

	proc, exitCh, err := s.launcher.Launch(ctx)
	if err != nil {
		return err
	}
	if err := WritePIDFile(s.cfg.PIDFile, proc.PID()); err != nil {
		s.log.Warn().Err(err).Msg("pid file write failed")
	}

	s.mu.Lock()
	s.proc = proc
	s.exitCh = exitCh
	s.adopted = 0
	s.mu.Unlock()
	s.log.Info().Int("pid", proc.PID()).Msg("worker started")
	return nil
}

// tick probes a worker believed to be up. Returns a restart timer
// when the worker needs restarting.
func (s *Supervisor) tick(ctx context.Context) <-chan time.Time {
	s.mu.Lock()
	state := s.state
	adopted := s.adopted
	startAt := s.startAt
	s.mu.Unlock()

	switch state {
	case Starting:
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckInterval)
		healthy := s.probe(probeCtx)
		cancel()
		if healthy {
			s.mu.Lock()
			s.setState(Running)
			s.mu.Unlock()
			return nil
		}
		if s.now().Sub(startAt) > s.cfg.StartGrace {
			s.log.Warn().Dur("grace", s.cfg.StartGrace).Msg("worker never became healthy")
			return s.restartAfterFailure("startup health check failed")
		}
		return nil
	case Running:
		// An adopted worker has no exit channel; liveness comes from
		// the pid instead.
		if adopted != 0 && !s.alive(adopted) {
			return s.recordExit("adopted worker exited")
		}
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckInterval)
		healthy := s.probe(probeCtx)
		cancel()
		if !healthy {
			return s.restartAfterFailure("health check failed")
		}
		return nil
	default:
		return nil
	}
}

// restartAfterFailure stops a live-but-unhealthy worker and schedules
// its replacement.
func (s *Supervisor) restartAfterFailure(reason string) <-chan time.Time {
	s.mu.Lock()
	proc := s.proc
	adopted := s.adopted
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Stop(s.cfg.RestartDelay)
		// The exit channel will fire, but the restart is already
		// decided here; drop the handle so onExit does not double
		// schedule.
		s.mu.Lock()
		s.proc = nil
		s.exitCh = nil
		s.mu.Unlock()
	} else if adopted != 0 {
		_ = (&externalProcess{pid: adopted}).Stop(s.cfg.RestartDelay)
	}
	return s.recordExit(reason)
}

// onExit handles a launched worker exiting on its own.
func (s *Supervisor) onExit(err error) <-chan time.Time {
	reason := "worker exited"
	if err != nil {
		reason = err.Error()
	}
	s.mu.Lock()
	s.proc = nil
	s.exitCh = nil
	s.mu.Unlock()
	return s.recordExit(reason)
}

// recordExit records the crash and either schedules a restart or
// gives up when the budget is exhausted.
func (s *Supervisor) recordExit(reason string) <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.lastExit = &now
	s.lastErr = reason
	s.adopted = 0
	s.setState(Crashed)
	_ = RemovePIDFile(s.cfg.PIDFile)

	// Slide the window before counting this restart.
	cutoff := now.Add(-s.cfg.RestartWindow)
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = kept

	if len(s.restarts) >= s.cfg.MaxRestarts {
		s.log.Error().Int("restarts", len(s.restarts)).Dur("window", s.cfg.RestartWindow).
			Str("reason", reason).Msg("restart budget exhausted, giving up")
		s.setState(Failed)
		return nil
	}

	s.restarts = append(s.restarts, now)
	s.setState(Restarting)
	s.log.Warn().Str("reason", reason).Dur("delay", s.cfg.RestartDelay).
		Int("attempt", len(s.restarts)).Msg("scheduling worker restart")
	return time.After(s.cfg.RestartDelay)
}

// shutdown stops the worker and clears the pid file.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	proc := s.proc
	adopted := s.adopted
	s.proc = nil
	s.exitCh = nil
	s.adopted = 0
	s.mu.Unlock()

	if proc != nil {
		if err := proc.Stop(s.cfg.RestartDelay); err != nil {
			s.log.Warn().Err(err).Msg("worker stop failed")
		}
		_ = RemovePIDFile(s.cfg.PIDFile)
	} else if adopted != 0 {
		// Adopted workers were not started by us; leave them running.
		s.log.Info().Int("pid", adopted).Msg("leaving adopted worker running")
	}

	s.mu.Lock()
	s.setState(Stopped)
	s.mu.Unlock()
}
