package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tharunreddy-N/JnP-Automation/internal/logparse"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), 100*time.Millisecond, zerolog.Nop())
	// Pin the clock so the fixed timestamps below sit inside the
	// retention window.
	s.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func rec(name string, status logparse.Status, ts time.Time) logparse.Record {
	return logparse.Record{TestName: name, Status: status, Timestamp: ts}
}

func TestMergeAddsAndPersists(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	res, err := s.Merge(context.Background(), "t1", []logparse.Record{
		rec("test_a", logparse.StatusPass, ts),
		rec("test_b", logparse.StatusFail, ts),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 0, res.Updated)

	doc := s.History("t1")
	require.Len(t, doc.Entries, 2)
	assert.FileExists(t, filepath.Join(s.dir, "t1.json"))
}

func TestMergeIdempotent(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	records := []logparse.Record{rec("test_a", logparse.StatusPass, ts)}

	_, err := s.Merge(context.Background(), "t1", records)
	require.NoError(t, err)

	res, err := s.Merge(context.Background(), "t1", records)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Len(t, s.History("t1").Entries, 1)
}

func TestMergeUpdatesChangedStatus(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := s.Merge(context.Background(), "t1", []logparse.Record{rec("test_a", logparse.StatusNotRun, ts)})
	require.NoError(t, err)

	res, err := s.Merge(context.Background(), "t1", []logparse.Record{rec("test_a", logparse.StatusPass, ts)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, logparse.StatusPass, s.History("t1").Entries[0].Status)
}

func TestMergePrunesOldEntries(t *testing.T) {
	s := newTestStore(t)
	clock := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.Merge(context.Background(), "t1", []logparse.Record{
		rec("test_a", logparse.StatusPass, clock.Add(-time.Hour)),
	})
	require.NoError(t, err)

	// Five minutes later a merge brings one record older than the
	// window relative to this merge's clock; it must not survive.
	clock = clock.Add(5 * time.Minute)
	res, err := s.Merge(context.Background(), "t1", []logparse.Record{
		rec("test_b", logparse.StatusPass, clock.Add(-8*24*time.Hour)),
		rec("test_b", logparse.StatusPass, clock),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)

	doc := s.History("t1")
	require.Len(t, doc.Entries, 2)
	for _, e := range doc.Entries {
		assert.False(t, e.Timestamp.Before(clock.Add(-RetentionWindow)))
	}
}

func TestMergePrunesRelativeToCallTime(t *testing.T) {
	// A record already outside the window when merged never becomes
	// visible, even as the only entry of a fresh module.
	s := newTestStore(t)
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	res, err := s.Merge(context.Background(), "t1", []logparse.Record{
		rec("test_a", logparse.StatusPass, now.Add(-10*24*time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)
	assert.Empty(t, s.History("t1").Entries)
}

func TestLoadCorruptDocumentTreatedAsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "t1.json"), []byte("{not json"), 0o644))

	doc := s.History("t1")
	assert.Empty(t, doc.Entries)

	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	res, err := s.Merge(context.Background(), "t1", []logparse.Record{rec("test_a", logparse.StatusPass, ts)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestLoadFallsBackToBackup(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := s.Merge(context.Background(), "t1", []logparse.Record{rec("test_a", logparse.StatusPass, ts)})
	require.NoError(t, err)
	_, err = s.Merge(context.Background(), "t1", []logparse.Record{rec("test_b", logparse.StatusPass, ts)})
	require.NoError(t, err)

	// Corrupt the primary; the backup still has the first merge.
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "t1.json"), []byte("xx"), 0o644))
	doc := s.History("t1")
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "test_a", doc.Entries[0].TestName)
}

func TestMergeBusyTimesOut(t *testing.T) {
	s := newTestStore(t)

	release, err := s.acquire(context.Background(), "t1")
	require.NoError(t, err)
	defer release()

	_, err = s.Merge(context.Background(), "t1", nil)
	assert.ErrorIs(t, err, ErrBusy)

	// Other modules are unaffected.
	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	_, err = s.Merge(context.Background(), "t2", []logparse.Record{rec("test_a", logparse.StatusPass, ts)})
	assert.NoError(t, err)
}

func TestLastStatus(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := s.Merge(context.Background(), "t1", []logparse.Record{
		rec("test_a", logparse.StatusFail, ts),
		rec("test_a", logparse.StatusPass, ts.Add(time.Hour)),
		rec("test_b", logparse.StatusNotRun, ts),
	})
	require.NoError(t, err)

	last := s.LastStatus("t1")
	assert.Equal(t, logparse.StatusPass, last["test_a"])
	assert.Equal(t, logparse.StatusNotRun, last["test_b"])
}
