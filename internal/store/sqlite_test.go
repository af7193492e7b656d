package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordExecutionsDedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	execs := []Execution{
		{Module: "t1", TestName: "test_a", Status: "PASS", StartedAt: started},
		{Module: "t1", TestName: "test_b", Status: "FAIL", StartedAt: started},
	}
	n, err := s.RecordExecutions(ctx, execs)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	// Recording the same executions again inserts nothing.
	n, err = s.RecordExecutions(ctx, execs)
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if n != 0 {
		t.Errorf("re-insert = %d, want 0", n)
	}
}

func TestListExecutionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := s.RecordExecutions(ctx, []Execution{
		{Module: "t1", TestName: "test_a", Status: "PASS", StartedAt: base},
		{Module: "t1", TestName: "test_a", Status: "FAIL", StartedAt: base.Add(time.Hour)},
		{Module: "t2", TestName: "test_b", Status: "PASS", StartedAt: base},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.ListExecutions(ctx, ListOpts{Module: "t1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if !got[0].StartedAt.After(got[1].StartedAt) {
		t.Errorf("not sorted newest first: %v, %v", got[0].StartedAt, got[1].StartedAt)
	}

	got, err = s.ListExecutions(ctx, ListOpts{TestName: "test_b"})
	if err != nil {
		t.Fatalf("list by test: %v", err)
	}
	if len(got) != 1 || got[0].Module != "t2" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestGetModuleStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := s.RecordExecutions(ctx, []Execution{
		{Module: "t1", TestName: "test_a", Status: "PASS", StartedAt: base},
		{Module: "t1", TestName: "test_b", Status: "FAIL", StartedAt: base.Add(time.Hour)},
		{Module: "t1", TestName: "test_c", Status: "NOT_RUN", StartedAt: base.Add(2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	stats, err := s.GetModuleStats(ctx, "t1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalExecutions != 3 || stats.Passes != 1 || stats.Failures != 1 || stats.NotRun != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.FirstSeen == nil || !stats.FirstSeen.Equal(base) {
		t.Errorf("first seen = %v", stats.FirstSeen)
	}
	if stats.LastSeen == nil || !stats.LastSeen.Equal(base.Add(2*time.Hour)) {
		t.Errorf("last seen = %v", stats.LastSeen)
	}

	empty, err := s.GetModuleStats(ctx, "nope")
	if err != nil {
		t.Fatalf("stats empty: %v", err)
	}
	if empty.TotalExecutions != 0 || empty.FirstSeen != nil {
		t.Errorf("empty stats = %+v", empty)
	}
}
