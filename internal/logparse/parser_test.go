package logparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseSingleRun(t *testing.T) {
	log := strings.Join([]string{
		"===============================",
		"Start: 20250110 09:00:00",
		"running test_t1_01",
		"Elapsed 00:01:20",
		"TEST test_t1_01: PASS",
	}, "\n")

	res, err := New().Parse(strings.NewReader(log))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.TestName != "test_t1_01" {
		t.Errorf("test name = %q", rec.TestName)
	}
	if rec.Status != StatusPass {
		t.Errorf("status = %q", rec.Status)
	}
	want := time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)
	if !rec.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, want)
	}
	if rec.RunningTime != "00:01:20" {
		t.Errorf("running time = %q", rec.RunningTime)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	cases := []struct {
		line string
		want time.Time
	}{
		{"Start: 20250110 09:00:00", time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)},
		{"Start: 2025-01-10 09:00:00", time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)},
		{"Start: 2025-01-10T09:00:00", time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)},
	}
	for _, c := range cases {
		got, ok := matchTimestamp(c.line)
		if !ok {
			t.Errorf("%q: no match", c.line)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("%q: got %v, want %v", c.line, got, c.want)
		}
	}
}

func TestParseStatusTokens(t *testing.T) {
	log := strings.Join([]string{
		"Start: 20250110 09:00:00",
		"TEST test_a: PASS",
		"TEST test_b: FAIL",
		"TEST test_c: ERROR",
		"TEST test_d: SKIP",
		"TEST test_e: pass",
	}, "\n")

	res, err := New().Parse(strings.NewReader(log))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]Status{
		"test_a": StatusPass,
		"test_b": StatusFail,
		"test_c": StatusError,
		"test_d": StatusNotRun,
		"test_e": StatusPass,
	}
	if len(res.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.Status != want[rec.TestName] {
			t.Errorf("%s: status = %q, want %q", rec.TestName, rec.Status, want[rec.TestName])
		}
	}
}

func TestParseElapsedFormats(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"Start / End / Elapsed: 20250110 09:00:00 / 20250110 09:01:20 / 00:01:20", "00:01:20"},
		{"Elapsed 00:02:05", "00:02:05"},
		{"Elapsed: 01:00:00", "01:00:00"},
		{"Runtime for test_x: 12.3 seconds", "12.3 seconds"},
	}
	for _, c := range cases {
		got, ok := matchElapsed(c.line)
		if !ok {
			t.Errorf("%q: no match", c.line)
			continue
		}
		if got != c.want {
			t.Errorf("%q: got %q, want %q", c.line, got, c.want)
		}
	}
}

func TestParseResultWithInlineElapsed(t *testing.T) {
	log := strings.Join([]string{
		"Start: 20250110 09:00:00",
		"TEST test_a: PASS | Start / End / Elapsed: 20250110 09:00:00 / 20250110 09:01:20 / 00:01:20",
	}, "\n")

	res, err := New().Parse(strings.NewReader(log))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	r := res.Records[0]
	if r.TestName != "test_a" || r.Status != StatusPass {
		t.Errorf("record = %+v", r)
	}
	if r.RunningTime != "00:01:20" {
		t.Errorf("running time = %q, want 00:01:20", r.RunningTime)
	}
}

func TestParseMalformedLinesSkipped(t *testing.T) {
	log := strings.Join([]string{
		"Start: not-a-date",
		"TEST : PASS",
		"TEST test_ok: garbage",
		"random noise line",
		"Start: 20250110 09:00:00",
		"TEST test_ok: PASS",
	}, "\n")

	res, err := New().Parse(strings.NewReader(log))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.LinesSkipped != 3 {
		t.Errorf("skipped = %d, want 3", res.LinesSkipped)
	}
}

func TestParseElapsedConsumedOnce(t *testing.T) {
	log := strings.Join([]string{
		"Start: 20250110 09:00:00",
		"Elapsed 00:01:00",
		"TEST test_a: PASS",
		"TEST test_b: PASS",
	}, "\n")

	res, err := New().Parse(strings.NewReader(log))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := res.Records[0].RunningTime; got != "00:01:00" {
		t.Errorf("first running time = %q", got)
	}
	if got := res.Records[1].RunningTime; got != "" {
		t.Errorf("second running time = %q, want empty", got)
	}
}

func TestParseResolver(t *testing.T) {
	resolve := func(name string) (string, bool) {
		if name == "t1_01" {
			return "test_t1_01", true
		}
		return "", false
	}
	log := "Start: 20250110 09:00:00\nTEST t1_01: PASS\nTEST unknown_short: FAIL\n"

	res, err := New(WithResolver(resolve)).Parse(strings.NewReader(log))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Records[0].TestName != "test_t1_01" {
		t.Errorf("resolved name = %q", res.Records[0].TestName)
	}
	if res.Records[1].TestName != "unknown_short" {
		t.Errorf("unresolved name = %q", res.Records[1].TestName)
	}
}

func TestParseFileFallbackTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t1.log")
	if err := os.WriteFile(path, []byte("TEST test_a: PASS\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2025, 1, 12, 8, 30, 0, 0, time.Local)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	res, err := New().ParseFile(path, 0)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if !res.Records[0].Timestamp.Equal(mtime) {
		t.Errorf("timestamp = %v, want mtime %v", res.Records[0].Timestamp, mtime)
	}
}

func TestParseFileTailCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t1.log")

	var b strings.Builder
	b.WriteString("Start: 20250101 00:00:00\nTEST test_old: PASS\n")
	for i := 0; i < 200; i++ {
		b.WriteString("filler line of no particular interest\n")
	}
	b.WriteString("Start: 20250110 09:00:00\nTEST test_new: PASS\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New().ParseFile(path, 512)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	for _, rec := range res.Records {
		if rec.TestName == "test_old" {
			t.Fatal("tail cap did not exclude old records")
		}
	}
	if len(res.Records) != 1 || res.Records[0].TestName != "test_new" {
		t.Fatalf("records = %+v", res.Records)
	}
}
