// Package registry maintains the mapping between modules and the
// tests defined in their suite files. Test names are discovered by
// scanning the configured test files with a configurable pattern and
// cached until the file changes on disk.
package registry

import (
	"bufio"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
)

// Registry resolves modules and their tests. Safe for concurrent use.
type Registry struct {
	modules []config.Module
	byID    map[string]config.Module
	pattern *regexp.Regexp
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[string]*fileScan
}

type fileScan struct {
	mtime time.Time
	names []string
}

func New(cfg *config.Config, log zerolog.Logger) (*Registry, error) {
	pattern, err := regexp.Compile(cfg.TestNamePattern)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]config.Module, len(cfg.Modules))
	for _, m := range cfg.Modules {
		byID[m.ID] = m
	}
	return &Registry{
		modules: cfg.Modules,
		byID:    byID,
		pattern: pattern,
		log:     log.With().Str("component", "registry").Logger(),
		cache:   make(map[string]*fileScan),
	}, nil
}

// Modules returns the configured modules in config order.
func (r *Registry) Modules() []config.Module {
	return r.modules
}

// Module looks up one module by id.
func (r *Registry) Module(id string) (config.Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Tests returns the sorted test names discovered in the module's test
// files. Missing files are logged and skipped.
func (r *Registry) Tests(moduleID string) []string {
	m, ok := r.byID[moduleID]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, path := range m.TestFiles {
		for _, name := range r.scan(path) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Resolve maps a possibly shortened test name to its canonical name
// within a module. A name missing its conventional prefix is retried
// with the prefix applied.
func (r *Registry) Resolve(moduleID, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, t := range r.Tests(moduleID) {
		if t == name {
			return t, true
		}
	}
	if !strings.HasPrefix(name, "test_") {
		return r.Resolve(moduleID, "test_"+name)
	}
	return "", false
}

// FindModuleForTest returns the first module that defines the test.
func (r *Registry) FindModuleForTest(name string) (config.Module, string, bool) {
	for _, m := range r.modules {
		if full, ok := r.Resolve(m.ID, name); ok {
			return m, full, true
		}
	}
	return config.Module{}, "", false
}

// scan reads one test file and extracts test names, reusing the
// cached result while the file's mtime is unchanged.
func (r *Registry) scan(path string) []string {
	fi, err := os.Stat(path)
	if err != nil {
		r.log.Debug().Err(err).Str("path", path).Msg("test file unavailable")
		return nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[path]; ok && cached.mtime.Equal(fi.ModTime()) {
		names := cached.names
		r.mu.Unlock()
		return names
	}
	r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("test file open failed")
		return nil
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if m := r.pattern.FindStringSubmatch(sc.Text()); m != nil && len(m) > 1 {
			names = append(names, m[1])
		}
	}
	if err := sc.Err(); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("test file scan failed")
	}

	r.mu.Lock()
	r.cache[path] = &fileScan{mtime: fi.ModTime(), names: names}
	r.mu.Unlock()
	return names
}
