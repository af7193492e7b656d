package logfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadTailWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.log")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTail(path, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "line one\nline two\n" {
		t.Errorf("got %q", got)
	}
}

func TestReadTailCapAlignsToLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.log")
	content := "old old old old\nmiddle line here\nlast line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTail(path, 20)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(got, "middle") {
		t.Errorf("partial line not dropped: %q", got)
	}
	if got != "last line\n" {
		t.Errorf("got %q", got)
	}
}

func TestAppendCreatesAndTerminates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "t1.log")
	if err := Append(path, "first"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := Append(path, "second\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("got %q", data)
	}
}

func TestDownloadName(t *testing.T) {
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	if got := DownloadName("t1", at); got != "t1_20250110.log" {
		t.Errorf("got %q", got)
	}
	if got := DownloadName("a/b c", at); got != "a_b_c_20250110.log" {
		t.Errorf("sanitized: %q", got)
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := map[string]string{
		"t1":        "t1",
		"a/b":       "a_b",
		"..":        "unknown",
		"":          "unknown",
		"ok-name_1": "ok-name_1",
	}
	for in, want := range cases {
		if got := SanitizeSegment(in); got != want {
			t.Errorf("SanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
