package locks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *FileCoordinator {
	t.Helper()
	return NewFileCoordinator(t.TempDir(), zerolog.Nop())
}

func TestAcquireRelease(t *testing.T) {
	c := newTestCoordinator(t)

	info, err := c.Acquire(Execution)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.FileExists(t, filepath.Join(c.dir, ".execution.lock"))

	holder, err := c.Holder(Execution)
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)

	require.NoError(t, c.Release(Execution))
	holder, err = c.Holder(Execution)
	require.NoError(t, err)
	assert.Nil(t, holder)
}

func TestAcquireHeldByLiveProcess(t *testing.T) {
	c := newTestCoordinator(t)
	c.alive = func(pid int) bool { return true }

	// Simulate another live process holding the lock.
	other := *c
	other.pid = 99999
	_, err := other.Acquire(Queue)
	require.NoError(t, err)

	_, err = c.Acquire(Queue)
	assert.ErrorIs(t, err, ErrHeld)
}

func TestAcquireReclaimsDeadHolder(t *testing.T) {
	c := newTestCoordinator(t)
	c.alive = func(pid int) bool { return false }

	other := *c
	other.pid = 99999
	_, err := other.Acquire(Execution)
	require.NoError(t, err)

	info, err := c.Acquire(Execution)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
}

func TestAcquireReentrant(t *testing.T) {
	c := newTestCoordinator(t)
	c.alive = func(pid int) bool { return true }

	_, err := c.Acquire(Browser)
	require.NoError(t, err)

	// The same process may refresh its own lock.
	_, err = c.Acquire(Browser)
	assert.NoError(t, err)
}

func TestCorruptLockFileTreatedAsStale(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, os.MkdirAll(c.dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, ".execution.lock"), []byte("{bad"), 0o644))

	_, err := c.Acquire(Execution)
	assert.NoError(t, err)
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	c := newTestCoordinator(t)
	assert.NoError(t, c.Release(Execution))
}

func TestReclaimStale(t *testing.T) {
	c := newTestCoordinator(t)
	c.alive = func(pid int) bool { return pid == os.Getpid() }

	_, err := c.Acquire(Execution)
	require.NoError(t, err)

	other := *c
	other.pid = 99999
	_, err = other.Acquire(Queue)
	require.NoError(t, err)

	reclaimed, err := c.ReclaimStale()
	require.NoError(t, err)
	assert.Equal(t, []string{Queue}, reclaimed)

	holder, err := c.Holder(Execution)
	require.NoError(t, err)
	assert.NotNil(t, holder)
}
