// Package trace records scheduler runs and their lifecycle events for later
// inspection. It persists observability data only; scheduler state is never
// stored or restored.
package trace

import (
	"context"
	"time"
)

// Run states.
const (
	RunStateRunning   = "RUNNING"
	RunStateCompleted = "COMPLETED"
	RunStateFailed    = "FAILED"
)

// Run is one execution of a pipeline.
type Run struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	State      string     `json:"state"`
	Workers    int        `json:"workers"`
	Tasks      int        `json:"tasks"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Event is one recorded scheduler event. Seq orders events within a run.
type Event struct {
	ID     int64     `json:"-"`
	RunID  string    `json:"-"`
	Seq    int64     `json:"seq"`
	Kind   string    `json:"kind"`
	TaskID int       `json:"task_id"`
	Task   string    `json:"task,omitempty"`
	Worker int       `json:"worker"`
	Stream int64     `json:"stream,omitempty"`
	At     time.Time `json:"at"`
}

// Store defines the persistence layer for runs and events.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id, state, errMsg string, finishedAt time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	AppendEvents(ctx context.Context, events []*Event) error
	ListEvents(ctx context.Context, runID string) ([]*Event, error)

	Close() error
	Migrate(ctx context.Context) error
}
