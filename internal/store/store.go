package store

import (
	"context"
	"time"
)

// Execution is one archived test result. Unlike the seven-day history
// window, archived executions are kept indefinitely and feed the
// aggregate statistics endpoints.
type Execution struct {
	ID          string
	Module      string
	TestName    string
	Status      string
	StartedAt   time.Time
	RunningTime string
	CreatedAt   time.Time
}

// ModuleStats holds all-time aggregates for one module.
type ModuleStats struct {
	TotalExecutions int
	Passes          int
	Failures        int
	Errors          int
	NotRun          int
	FirstSeen       *time.Time
	LastSeen        *time.Time
}

// ExecutionStore is the interface for archiving and querying
// executions.
type ExecutionStore interface {
	RecordExecutions(ctx context.Context, execs []Execution) (int, error)
	ListExecutions(ctx context.Context, opts ListOpts) ([]Execution, error)
	GetModuleStats(ctx context.Context, module string) (*ModuleStats, error)
}

// ListOpts controls filtering and pagination for execution queries.
type ListOpts struct {
	Module   string
	TestName string
	Limit    int
	Offset   int
}
