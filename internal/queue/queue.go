// Package queue implements the shared on-demand test queue. The
// queue lives in a single JSON file that other tools in the workspace
// also read and write, so every mutation re-reads the file and writes
// it back atomically under the queue lock.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
)

// ErrEmpty is returned by Pop when the queue has no items.
var ErrEmpty = errors.New("queue: empty")

// State is the on-disk shape of the queue file.
type State struct {
	Queue       []string  `json:"queue"`
	LastUpdated time.Time `json:"last_updated"`
}

// File manages the queue file. All operations take the queue lock.
type File struct {
	path  string
	coord locks.Coordinator
	log   zerolog.Logger
	now   func() time.Time
}

func NewFile(path string, coord locks.Coordinator, log zerolog.Logger) *File {
	return &File{
		path:  path,
		coord: coord,
		log:   log.With().Str("component", "queue").Logger(),
		now:   time.Now,
	}
}

// Path returns the queue file's location.
func (f *File) Path() string {
	return f.path
}

// Add appends a test name unless it is already queued. Reports
// whether the queue changed.
func (f *File) Add(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("queue: empty test name")
	}
	var added bool
	err := f.mutate(func(st *State) bool {
		for _, q := range st.Queue {
			if q == name {
				return false
			}
		}
		st.Queue = append(st.Queue, name)
		added = true
		return true
	})
	return added, err
}

// Pop removes and returns the oldest queued test name.
func (f *File) Pop() (string, error) {
	var name string
	err := f.mutate(func(st *State) bool {
		if len(st.Queue) == 0 {
			return false
		}
		name = st.Queue[0]
		st.Queue = st.Queue[1:]
		return true
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrEmpty
	}
	return name, nil
}

// Reset empties the queue.
func (f *File) Reset() error {
	return f.mutate(func(st *State) bool {
		if len(st.Queue) == 0 {
			return false
		}
		st.Queue = nil
		return true
	})
}

// Snapshot returns the current queue contents without mutating.
func (f *File) Snapshot() (*State, error) {
	if _, err := f.coord.Acquire(locks.Queue); err != nil {
		return nil, err
	}
	defer f.coord.Release(locks.Queue)
	return f.load()
}

// Len returns the number of queued items.
func (f *File) Len() (int, error) {
	st, err := f.Snapshot()
	if err != nil {
		return 0, err
	}
	return len(st.Queue), nil
}

// mutate loads the state, applies fn, and persists when fn reports a
// change, all under the queue lock.
func (f *File) mutate(fn func(*State) bool) error {
	if _, err := f.coord.Acquire(locks.Queue); err != nil {
		return err
	}
	defer f.coord.Release(locks.Queue)

	st, err := f.load()
	if err != nil {
		return err
	}
	if !fn(st) {
		return nil
	}
	st.LastUpdated = f.now().UTC()
	return f.save(st)
}

// load reads the queue file. Missing or corrupt files yield an empty
// state, matching how the other workspace tools recover.
func (f *File) load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("queue file corrupt, resetting")
		return &State{}, nil
	}
	return &st, nil
}

func (f *File) save(st *State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".queue.*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}
