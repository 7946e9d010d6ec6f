package trace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/weft/internal/sched"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunLifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	run := &Run{
		ID:        "run_test1",
		Pipeline:  "demo",
		State:     RunStateRunning,
		Workers:   4,
		Tasks:     7,
		StartedAt: time.Now().UTC(),
	}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run_test1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil || got.Pipeline != "demo" || got.State != RunStateRunning {
		t.Fatalf("GetRun = %+v, want running demo", got)
	}
	if got.FinishedAt != nil {
		t.Error("FinishedAt set on a running run")
	}

	if err := st.FinishRun(ctx, "run_test1", RunStateFailed, "kernel rejected", time.Now().UTC()); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err = st.GetRun(ctx, "run_test1")
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if got.State != RunStateFailed || got.Error != "kernel rejected" {
		t.Errorf("finished run = %+v, want FAILED with error", got)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt missing after finish")
	}
}

func TestGetRun_Missing(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_nope")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}

func TestFinishRun_Missing(t *testing.T) {
	st := testStore(t)
	err := st.FinishRun(context.Background(), "run_nope", RunStateCompleted, "", time.Now())
	if err == nil {
		t.Error("FinishRun on missing run succeeded")
	}
}

func TestListRuns_Order(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		run := &Run{
			ID:        []string{"run_a", "run_b", "run_c"}[i],
			Pipeline:  "demo",
			State:     RunStateCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := st.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns = %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run_c" || runs[1].ID != "run_b" {
		t.Errorf("order = %s, %s; want run_c, run_b", runs[0].ID, runs[1].ID)
	}
}

func TestEvents_AppendAndList(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	run := &Run{ID: "run_ev", Pipeline: "demo", State: RunStateRunning, StartedAt: time.Now().UTC()}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	events := []*Event{
		{RunID: "run_ev", Seq: 1, Kind: "resumed", TaskID: 0, Task: "blur", Worker: 2, At: time.Now().UTC()},
		{RunID: "run_ev", Seq: 2, Kind: "device_suspended", TaskID: 0, Task: "blur", Worker: 2, Stream: 1, At: time.Now().UTC()},
		{RunID: "run_ev", Seq: 3, Kind: "finished", TaskID: 0, Task: "blur", Worker: 1, At: time.Now().UTC()},
	}
	if err := st.AppendEvents(ctx, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, err := st.ListEvents(ctx, "run_ev")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListEvents = %d events, want 3", len(got))
	}
	if got[1].Kind != "device_suspended" || got[1].Stream != 1 {
		t.Errorf("event 2 = %+v, want device_suspended on stream 1", got[1])
	}
}

func TestRecorder_EndToEnd(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := NewRecorder(st, logger)
	if err := rec.Begin(ctx, "demo", 4, 3); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	rec.Record(sched.Event{Kind: sched.EventResumed, TaskID: 1, Task: "a", Worker: 0, At: time.Now()})
	rec.Record(sched.Event{Kind: sched.EventFinished, TaskID: 1, Task: "a", Worker: 0, At: time.Now()})

	if err := rec.End(ctx, errors.New("boom")); err != nil {
		t.Fatalf("End: %v", err)
	}

	run, err := st.GetRun(ctx, rec.RunID())
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.State != RunStateFailed || run.Error != "boom" {
		t.Errorf("run = %+v, want FAILED boom", run)
	}

	events, err := st.ListEvents(ctx, rec.RunID())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 1 || events[1].Kind != "finished" {
		t.Errorf("events = %+v, want 2 ordered events", events)
	}
}
