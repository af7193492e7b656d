package logparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The suite's log files mix several generations of formatting. Each
// known shape gets its own matcher; matchers are tried in order and a
// line that resembles a test or timestamp line without satisfying any
// matcher counts as skipped.

// timestampMatcher recognizes one "Start:" timestamp format.
type timestampMatcher struct {
	re    *regexp.Regexp
	parse func(m []string) (time.Time, bool)
}

var timestampMatchers = []timestampMatcher{
	{
		// Start: 20250110 09:00:00 (optionally with .millis)
		re: regexp.MustCompile(`(?i)Start:\s*(\d{8})\s+(\d{2}):(\d{2}):(\d{2})`),
		parse: func(m []string) (time.Time, bool) {
			return buildTime(m[1][:4], m[1][4:6], m[1][6:8], m[2], m[3], m[4])
		},
	},
	{
		// Start: 2025-01-10 09:00:00 or Start: 2025-01-10T09:00:00
		re: regexp.MustCompile(`(?i)Start:\s*(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2}):(\d{2})`),
		parse: func(m []string) (time.Time, bool) {
			return buildTime(m[1], m[2], m[3], m[4], m[5], m[6])
		},
	},
}

func buildTime(year, month, day, hour, minute, second string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	mo, err := strconv.Atoi(month)
	if err != nil || mo < 1 || mo > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	h, _ := strconv.Atoi(hour)
	mi, _ := strconv.Atoi(minute)
	s, _ := strconv.Atoi(second)
	return time.Date(y, time.Month(mo), d, h, mi, s, 0, time.Local), true
}

// matchTimestamp tries all timestamp matchers in order.
func matchTimestamp(line string) (time.Time, bool) {
	for _, tm := range timestampMatchers {
		if m := tm.re.FindStringSubmatch(line); m != nil {
			if t, ok := tm.parse(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// resultRe recognizes "TEST <name>: PASS|FAIL|ERROR|SKIP" lines.
var resultRe = regexp.MustCompile(`(?i)TEST\s+([^:]+):\s*(PASS|FAIL|ERROR|SKIP)\b`)

// matchResult extracts a test name and status from a result line.
func matchResult(line string) (name string, status Status, ok bool) {
	m := resultRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	name = strings.TrimSpace(m[1])
	if name == "" {
		return "", "", false
	}
	switch strings.ToUpper(m[2]) {
	case "PASS":
		status = StatusPass
	case "FAIL":
		status = StatusFail
	case "ERROR":
		status = StatusError
	case "SKIP":
		// The log writer emits SKIP for tests that never ran.
		status = StatusNotRun
	default:
		return "", "", false
	}
	return name, status, true
}

// elapsedMatchers recognize running-time annotations, most specific first.
var elapsedMatchers = []*regexp.Regexp{
	// Start / End / Elapsed: 20250110 09:00:00 / 20250110 09:01:20 / 00:01:20
	regexp.MustCompile(`(?i)Start\s*/\s*End\s*/\s*Elapsed:\s*[^/]+/\s*[^/]+/\s*([0-9:.]+)`),
	// Elapsed 00:01:20 or Elapsed: 00:01:20
	regexp.MustCompile(`(?i)Elapsed:?\s+([0-9]+:[0-9:.]+)`),
	// Runtime for test_x: 12.3 seconds
	regexp.MustCompile(`(?i)Runtime for .*?:\s*([0-9.]+)\s+seconds`),
}

// matchElapsed extracts a running-time string from a line.
func matchElapsed(line string) (string, bool) {
	for i, re := range elapsedMatchers {
		if m := re.FindStringSubmatch(line); m != nil {
			v := strings.TrimSpace(m[1])
			if v == "" {
				continue
			}
			if i == len(elapsedMatchers)-1 {
				v += " seconds"
			}
			return v, true
		}
	}
	return "", false
}

// looksRelevant reports whether a line was meant to carry parseable
// data. Used to count malformed lines without failing the parse.
func looksRelevant(line string) bool {
	upper := strings.ToUpper(line)
	return strings.Contains(upper, "TEST ") || strings.Contains(upper, "START:")
}
