// Package locks coordinates exclusive access to shared resources
// (test execution, the queue file, the browser session) between this
// daemon and the other tools that share the workspace. Locks are
// plain JSON files so every participant can inspect them.
package locks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Well-known lock names.
const (
	Execution = "execution"
	Queue     = "queue"
	Browser   = "browser"
)

// ErrHeld is returned when a lock is already held by a live process.
var ErrHeld = errors.New("locks: held by another process")

// Info is the on-disk content of one lock file.
type Info struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Coordinator grants and releases named locks.
type Coordinator interface {
	Acquire(name string) (*Info, error)
	Release(name string) error
	Holder(name string) (*Info, error)
	ReclaimStale() ([]string, error)
	Names() []string
}

// FileCoordinator implements Coordinator with dot-prefixed lock files
// in a directory. A lock whose holder process is no longer alive is
// stale and reclaimed on the next acquire.
type FileCoordinator struct {
	dir   string
	pid   int
	alive func(pid int) bool
	log   zerolog.Logger
}

func NewFileCoordinator(dir string, log zerolog.Logger) *FileCoordinator {
	return &FileCoordinator{
		dir:   dir,
		pid:   os.Getpid(),
		alive: PIDAlive,
		log:   log.With().Str("component", "locks").Logger(),
	}
}

func (c *FileCoordinator) path(name string) string {
	return filepath.Join(c.dir, "."+name+".lock")
}

// Names lists the well-known lock names.
func (c *FileCoordinator) Names() []string {
	return []string{Execution, Queue, Browser}
}

// Holder reads the lock file for name. Returns nil when nobody holds
// the lock.
func (c *FileCoordinator) Holder(name string) (*Info, error) {
	data, err := os.ReadFile(c.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		// An unreadable lock file is treated as stale.
		c.log.Warn().Str("lock", name).Err(err).Msg("lock file corrupt")
		return &Info{}, nil
	}
	return &info, nil
}

// Acquire takes the named lock for this process. A lock held by a
// dead process is reclaimed; one held by a live process yields
// ErrHeld.
func (c *FileCoordinator) Acquire(name string) (*Info, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, err
	}

	holder, err := c.Holder(name)
	if err != nil {
		return nil, err
	}
	if holder != nil {
		if holder.PID != 0 && holder.PID != c.pid && c.alive(holder.PID) {
			return nil, fmt.Errorf("%w: %s (pid %d)", ErrHeld, name, holder.PID)
		}
		c.log.Info().Str("lock", name).Int("stale_pid", holder.PID).Msg("reclaiming stale lock")
		if err := os.Remove(c.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	info := &Info{PID: c.pid, AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	// O_EXCL so two processes racing for the lock cannot both win.
	f, err := os.OpenFile(c.path(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, name)
		}
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(c.path(name))
		return nil, err
	}
	c.log.Debug().Str("lock", name).Msg("lock acquired")
	return info, nil
}

// Release removes the named lock. Releasing an unheld lock is a
// no-op.
func (c *FileCoordinator) Release(name string) error {
	err := os.Remove(c.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil {
		c.log.Debug().Str("lock", name).Msg("lock released")
	}
	return err
}

// ReclaimStale removes every well-known lock whose holder is dead and
// returns the names reclaimed.
func (c *FileCoordinator) ReclaimStale() ([]string, error) {
	var reclaimed []string
	for _, name := range c.Names() {
		holder, err := c.Holder(name)
		if err != nil {
			return reclaimed, err
		}
		if holder == nil {
			continue
		}
		if holder.PID != 0 && c.alive(holder.PID) {
			continue
		}
		if err := os.Remove(c.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return reclaimed, err
		}
		c.log.Info().Str("lock", name).Int("stale_pid", holder.PID).Msg("stale lock removed")
		reclaimed = append(reclaimed, name)
	}
	return reclaimed, nil
}
