package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/weft/internal/sched"
)

// Recorder implements sched.Sink, buffering events in memory during a run
// and flushing them to the store when the run ends. Record is called from
// worker and body goroutines; it must stay cheap, so nothing
// touches the database until End.
type Recorder struct {
	store  Store
	logger *slog.Logger

	runID string
	seq   int64

	mu  sync.Mutex
	buf []*Event
}

// NewRecorder creates a Recorder over st.
func NewRecorder(st Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  st,
		logger: logger.With("component", "recorder"),
	}
}

// RunID returns the current run's identifier. Valid after Begin.
func (r *Recorder) RunID() string { return r.runID }

// Begin registers a new run and starts buffering events for it.
func (r *Recorder) Begin(ctx context.Context, pipeline string, workers, tasks int) error {
	r.runID = "run_" + uuid.New().String()[:8]
	run := &Run{
		ID:        r.runID,
		Pipeline:  pipeline,
		State:     RunStateRunning,
		Workers:   workers,
		Tasks:     tasks,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	r.logger.Debug("run started", "run_id", r.runID, "pipeline", pipeline)
	return nil
}

// Record buffers one scheduler event.
func (r *Recorder) Record(ev sched.Event) {
	r.mu.Lock()
	r.seq++
	r.buf = append(r.buf, &Event{
		RunID:  r.runID,
		Seq:    r.seq,
		Kind:   string(ev.Kind),
		TaskID: ev.TaskID,
		Task:   ev.Task,
		Worker: ev.Worker,
		Stream: ev.Stream,
		At:     ev.At,
	})
	r.mu.Unlock()
}

// End flushes buffered events and records the run's terminal state.
func (r *Recorder) End(ctx context.Context, runErr error) error {
	r.mu.Lock()
	buf := r.buf
	r.buf = nil
	r.mu.Unlock()

	if err := r.store.AppendEvents(ctx, buf); err != nil {
		return fmt.Errorf("flush %d events: %w", len(buf), err)
	}

	state, errMsg := RunStateCompleted, ""
	if runErr != nil {
		state, errMsg = RunStateFailed, runErr.Error()
	}
	if err := r.store.FinishRun(ctx, r.runID, state, errMsg, time.Now().UTC()); err != nil {
		return err
	}
	r.logger.Debug("run finished", "run_id", r.runID, "state", state, "events", len(buf))
	return nil
}
