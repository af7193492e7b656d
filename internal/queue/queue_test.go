package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
	"github.com/Tharunreddy-N/JnP-Automation/internal/runner"
)

// memCoordinator is an in-process Coordinator for tests.
type memCoordinator struct {
	held map[string]bool
	deny map[string]bool
}

func newMemCoordinator() *memCoordinator {
	return &memCoordinator{held: make(map[string]bool), deny: make(map[string]bool)}
}

func (c *memCoordinator) Acquire(name string) (*locks.Info, error) {
	if c.deny[name] {
		return nil, locks.ErrHeld
	}
	c.held[name] = true
	return &locks.Info{PID: os.Getpid(), AcquiredAt: time.Now()}, nil
}

func (c *memCoordinator) Release(name string) error {
	delete(c.held, name)
	return nil
}

func (c *memCoordinator) Holder(name string) (*locks.Info, error) {
	if c.held[name] {
		return &locks.Info{PID: os.Getpid()}, nil
	}
	return nil, nil
}

func (c *memCoordinator) ReclaimStale() ([]string, error) { return nil, nil }
func (c *memCoordinator) Names() []string {
	return []string{locks.Execution, locks.Queue, locks.Browser}
}

func newTestFile(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".test_queue.json")
	return NewFile(path, newMemCoordinator(), zerolog.Nop())
}

func TestAddDedupes(t *testing.T) {
	q := newTestFile(t)

	added, err := q.Add("test_a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Add("test_a")
	require.NoError(t, err)
	assert.False(t, added)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAddRejectsEmptyName(t *testing.T) {
	q := newTestFile(t)
	_, err := q.Add("   ")
	assert.Error(t, err)
}

func TestPopFIFO(t *testing.T) {
	q := newTestFile(t)
	for _, name := range []string{"test_a", "test_b", "test_c"} {
		_, err := q.Add(name)
		require.NoError(t, err)
	}

	first, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "test_a", first)

	second, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "test_b", second)
}

func TestPopEmpty(t *testing.T) {
	q := newTestFile(t)
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestResetAndLastUpdated(t *testing.T) {
	q := newTestFile(t)
	_, err := q.Add("test_a")
	require.NoError(t, err)

	require.NoError(t, q.Reset())
	st, err := q.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, st.Queue)
	assert.False(t, st.LastUpdated.IsZero())
}

func TestCorruptQueueFileResets(t *testing.T) {
	q := newTestFile(t)
	require.NoError(t, os.WriteFile(q.path, []byte("not json"), 0o644))

	added, err := q.Add("test_a")
	require.NoError(t, err)
	assert.True(t, added)

	data, err := os.ReadFile(q.path)
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, []string{"test_a"}, st.Queue)
}

// fakeResolver places every test_ prefixed name in one module.
type fakeResolver struct {
	module config.Module
}

func (r fakeResolver) FindModuleForTest(name string) (config.Module, string, bool) {
	if name == "orphan" {
		return config.Module{}, "", false
	}
	return r.module, name, true
}

// fakeRunner records invocations without executing anything.
type fakeRunner struct {
	ran []string
}

func (r *fakeRunner) RunTest(_ context.Context, tc runner.TestContext, _ time.Duration, _ *runner.RunOptions) *runner.Result {
	r.ran = append(r.ran, tc.TestName)
	return &runner.Result{Stdout: "TEST " + tc.TestName + ": PASS", ExitCode: 0}
}

func newTestWatcher(t *testing.T) (*Watcher, *File, *fakeRunner, *memCoordinator, string) {
	t.Helper()
	dir := t.TempDir()
	coord := newMemCoordinator()
	q := NewFile(filepath.Join(dir, ".test_queue.json"), coord, zerolog.Nop())
	logPath := filepath.Join(dir, "t1.log")
	run := &fakeRunner{}
	w := NewWatcher(q, coord, fakeResolver{module: config.Module{ID: "t1", LogFile: logPath}}, run, zerolog.Nop())
	return w, q, run, coord, logPath
}

func TestDrainRunsQueuedTests(t *testing.T) {
	w, q, run, _, logPath := newTestWatcher(t)
	var drained []string
	w.OnDrained = func(modules []string) { drained = append(drained, modules...) }

	for _, name := range []string{"test_a", "test_b"} {
		_, err := q.Add(name)
		require.NoError(t, err)
	}

	require.NoError(t, w.Drain(context.Background()))
	assert.Equal(t, []string{"test_a", "test_b"}, run.ran)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sort.Strings(drained)
	assert.Equal(t, []string{"t1"}, drained)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TEST test_a: PASS")
	assert.Contains(t, string(data), "TEST test_b: PASS")
}

func TestDrainSkipsWhenExecutionLockHeld(t *testing.T) {
	w, q, run, coord, _ := newTestWatcher(t)
	coord.deny[locks.Execution] = true

	_, err := q.Add("test_a")
	require.NoError(t, err)

	err = w.Drain(context.Background())
	assert.ErrorIs(t, err, locks.ErrHeld)
	assert.Empty(t, run.ran)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrainDropsOrphanTests(t *testing.T) {
	w, q, run, _, _ := newTestWatcher(t)
	_, err := q.Add("orphan")
	require.NoError(t, err)

	require.NoError(t, w.Drain(context.Background()))
	assert.Empty(t, run.ran)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrainEmptyQueueNoLock(t *testing.T) {
	w, _, _, coord, _ := newTestWatcher(t)
	coord.deny[locks.Execution] = true

	// An empty queue never contends for the execution lock.
	assert.NoError(t, w.Drain(context.Background()))
}
