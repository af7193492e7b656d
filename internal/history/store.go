package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/logparse"
)

// ErrBusy is returned when another merge holds a module's lock for
// longer than the configured timeout. Callers should retry later.
var ErrBusy = errors.New("history: module busy")

// Store persists per-module history documents under a directory. All
// mutation goes through Merge, which serializes per module.
type Store struct {
	dir          string
	mergeTimeout time.Duration
	log          zerolog.Logger
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewStore(dir string, mergeTimeout time.Duration, log zerolog.Logger) *Store {
	return &Store{
		dir:          dir,
		mergeTimeout: mergeTimeout,
		log:          log.With().Str("component", "history").Logger(),
		now:          time.Now,
		locks:        make(map[string]chan struct{}),
	}
}

// Ping verifies the store's directory is reachable, creating it when
// it does not exist yet.
func (s *Store) Ping() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("history dir: %w", err)
	}
	return nil
}

func (s *Store) path(module string) string {
	return filepath.Join(s.dir, module+".json")
}

func (s *Store) backupPath(module string) string {
	return filepath.Join(s.dir, module+".json.backup")
}

// acquire takes the per-module merge lock, waiting at most the merge
// timeout. The returned func releases it.
func (s *Store) acquire(ctx context.Context, module string) (func(), error) {
	s.mu.Lock()
	ch, ok := s.locks[module]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[module] = ch
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.mergeTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrBusy, module)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Merge folds records into the module's document and persists it.
// Records with duplicate (test name, timestamp) keys are applied once.
// Merging the same records twice is a no-op.
func (s *Store) Merge(ctx context.Context, module string, records []logparse.Record) (MergeResult, error) {
	release, err := s.acquire(ctx, module)
	if err != nil {
		return MergeResult{}, err
	}
	defer release()

	doc := s.load(module)
	res := merge(doc, records, s.now())
	if res.Added == 0 && res.Updated == 0 && res.Pruned == 0 {
		return res, nil
	}
	if err := s.save(module, doc); err != nil {
		// One retry on persistence failure, then surface it.
		s.log.Warn().Err(err).Str("module", module).Msg("history save failed, retrying")
		if err := s.save(module, doc); err != nil {
			return MergeResult{}, err
		}
	}
	s.log.Debug().Str("module", module).
		Int("added", res.Added).Int("updated", res.Updated).Int("pruned", res.Pruned).
		Msg("history merged")
	return res, nil
}

// History returns the module's current document. A module with no
// document yet yields an empty one rather than an error.
func (s *Store) History(module string) *Document {
	doc, _ := s.loadChecked(module)
	return doc
}

// HistoryChecked is History plus a human-readable warning when the
// document on disk could not be read and an empty (or backup) view is
// being served instead.
func (s *Store) HistoryChecked(module string) (*Document, string) {
	return s.loadChecked(module)
}

// TestNames returns the distinct test names present in the module's
// window, sorted by first appearance.
func (s *Store) TestNames(module string) []string {
	doc := s.load(module)
	seen := make(map[string]bool)
	var names []string
	for _, e := range doc.Entries {
		if !seen[e.TestName] {
			seen[e.TestName] = true
			names = append(names, e.TestName)
		}
	}
	return names
}

// LastStatus returns the most recent status per test in the module's
// window.
func (s *Store) LastStatus(module string) map[string]logparse.Status {
	doc := s.load(module)
	out := make(map[string]logparse.Status, len(doc.Entries))
	for _, e := range doc.Entries {
		// Entries are sorted oldest first, so later wins.
		out[e.TestName] = e.Status
	}
	return out
}

// loadChecked reads the module's document, falling back to the backup
// copy and finally to an empty document. A corrupt file is logged and
// treated as empty, never surfaced as an error; the returned warning
// describes any degradation.
func (s *Store) loadChecked(module string) (*Document, string) {
	warning := ""
	for i, path := range []string{s.path(module), s.backupPath(module)} {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("history read failed")
			warning = "history document unreadable"
			continue
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("history document corrupt")
			warning = "history document corrupt"
			continue
		}
		doc.Module = module
		if i > 0 && warning != "" {
			warning += ", serving backup copy"
		}
		return &doc, warning
	}
	if warning != "" {
		warning += ", serving empty history"
	}
	return &Document{Module: module}, warning
}

func (s *Store) load(module string) *Document {
	doc, _ := s.loadChecked(module)
	return doc
}

// save writes the document atomically: temp file, rename, with the
// previous version kept as a backup for load to fall back on.
func (s *Store) save(module string, doc *Document) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	path := s.path(module)
	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(s.backupPath(module), prev, 0o644); err != nil {
			s.log.Warn().Err(err).Str("module", module).Msg("backup write failed")
		}
	}

	tmp, err := os.CreateTemp(s.dir, module+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
