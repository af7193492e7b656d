package logparse

import "time"

// Status is the outcome of one test execution as recorded in a log.
type Status string

const (
	StatusPass   Status = "PASS"
	StatusFail   Status = "FAIL"
	StatusError  Status = "ERROR"
	StatusNotRun Status = "NOT_RUN"
)

// Record is one observed run of one test case, extracted from log text.
// Records are immutable once created; the history store only supersedes
// them by pruning.
type Record struct {
	TestName    string
	Status      Status
	Timestamp   time.Time
	RunningTime string // elapsed wall-clock, "" when the run was aborted
}

// Key identifies a record for deduplication: the same test at the same
// start time is the same run, however many times a log is re-ingested.
func (r Record) Key() string {
	return r.TestName + "@" + r.Timestamp.UTC().Format(time.RFC3339)
}
