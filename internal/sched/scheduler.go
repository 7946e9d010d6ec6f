// Package sched implements a work-stealing task-DAG scheduler for
// heterogeneous CPU/GPU workloads. GPU-bound computations are expressed as
// suspendable tasks: a task yields while a kernel is in flight, the worker
// moves on to other work, and the device's host callback re-queues the task
// for resumption by whichever worker picks it up.
package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/me/weft/internal/device"
)

// ErrGraphCycle is returned by Schedule when the task graph has a cycle.
var ErrGraphCycle = errors.New("sched: task graph contains a cycle")

// ErrNotScheduled is returned by Wait when Schedule was never called.
var ErrNotScheduled = errors.New("sched: wait called before schedule")

// Config holds scheduler construction parameters.
type Config struct {
	// Workers is the number of worker goroutines. Defaults to
	// runtime.NumCPU().
	Workers int

	// Streams is advisory and ignored: streams are created lazily, one
	// whenever a device suspend finds every pool empty. The parameter is
	// kept for API compatibility.
	Streams int

	// Device is the device runtime. Defaults to a CPU simulator.
	Device device.Runtime

	// Logger receives scheduler logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Sink, when non-nil, receives lifecycle events.
	Sink Sink
}

// Scheduler owns the task graph and the worker pool. Build the graph with
// Emplace/EmplaceSuspendable and Precede, then call Schedule once and Wait
// for completion. Close destroys device streams.
type Scheduler struct {
	logger *slog.Logger
	device device.Runtime
	sink   Sink

	tasks   []*Task
	workers []*worker
	wg      sync.WaitGroup

	// global is the shared overflow deque. Pushes come from Schedule and
	// from host-callback goroutines, so they are serialised by qmu; steals
	// are lock-free. Contention here is rare.
	global *Deque[*Task]
	qmu    sync.Mutex

	notifier  *Notifier
	maxSteals int

	stop     atomic.Bool
	finished atomic.Int64
	cbCount  atomic.Int64

	// unwind is closed on fatal error to release parked suspendable bodies.
	unwind     chan struct{}
	unwindOnce sync.Once

	errMu sync.Mutex
	err   error

	streamMu   sync.Mutex
	allStreams []*device.Stream

	scheduled bool
	closed    bool
}

// New creates a scheduler and starts its workers. Workers idle until
// Schedule seeds the graph.
func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Device == nil {
		cfg.Device = device.NewSim(cfg.Logger)
	}

	s := &Scheduler{
		logger:    cfg.Logger.With("component", "sched"),
		device:    cfg.Device,
		sink:      cfg.Sink,
		global:    NewDeque[*Task](),
		notifier:  NewNotifier(cfg.Workers),
		maxSteals: (cfg.Workers + 1) * 2,
		unwind:    make(chan struct{}),
	}

	s.workers = make([]*worker, cfg.Workers)
	for i := range s.workers {
		s.workers[i] = &worker{
			id:      i,
			vtm:     i,
			que:     NewDeque[*Task](),
			streams: NewDeque[*device.Stream](),
			rng:     rand.New(rand.NewPCG(uint64(i), rand.Uint64())),
			waiter:  s.notifier.Waiter(i),
		}
	}

	s.wg.Add(cfg.Workers)
	for _, w := range s.workers {
		go s.runWorker(w)
	}

	s.logger.Debug("scheduler started", "workers", cfg.Workers)
	return s
}

// Emplace adds a static CPU task and returns its handle.
func (s *Scheduler) Emplace(work func() error) TaskHandle {
	t := &Task{
		id:   len(s.tasks),
		kind: taskStatic,
		work: work,
	}
	t.name = defaultTaskName(t.id)
	s.tasks = append(s.tasks, t)
	return TaskHandle{t: t}
}

// EmplaceSuspendable adds a suspendable task whose body may yield through
// the Yielder, and returns its handle.
func (s *Scheduler) EmplaceSuspendable(body func(*Yielder) error) TaskHandle {
	t := &Task{
		id:   len(s.tasks),
		kind: taskSuspendable,
	}
	t.name = defaultTaskName(t.id)
	t.coro = newCoro(s, t, body)
	s.tasks = append(s.tasks, t)
	return TaskHandle{t: t}
}

// Schedule seeds every zero-join task into the global deque and wakes
// workers. It refuses cyclic graphs.
func (s *Scheduler) Schedule() error {
	if !s.IsDAG() {
		return ErrGraphCycle
	}
	s.scheduled = true

	if len(s.tasks) == 0 {
		s.stop.Store(true)
		s.notifier.Notify(true)
		return nil
	}

	var srcs []*Task
	for _, t := range s.tasks {
		if t.join.Load() == 0 {
			srcs = append(srcs, t)
		}
	}

	s.qmu.Lock()
	for _, t := range srcs {
		s.global.Push(t)
	}
	s.qmu.Unlock()

	s.logger.Debug("scheduled", "tasks", len(s.tasks), "sources", len(srcs))
	for range srcs {
		s.notifier.Notify(false)
	}
	return nil
}

// Wait joins all workers, then spins until the outstanding-callback counter
// reaches zero: a callback goroutine may still be inside the shim when the
// last task finishes, and scheduler state must outlive it. Returns the
// first fatal error, if any.
func (s *Scheduler) Wait() error {
	if !s.scheduled {
		return ErrNotScheduled
	}
	s.wg.Wait()

	for s.cbCount.Load() != 0 {
		runtime.Gosched()
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops the workers and destroys every stream the scheduler created.
// Call after Wait, or in place of Schedule/Wait when the graph was refused.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.stop.Store(true)
	s.notifier.Notify(true)
	s.wg.Wait()

	s.streamMu.Lock()
	streams := s.allStreams
	s.allStreams = nil
	s.streamMu.Unlock()

	var first error
	for _, st := range streams {
		if err := s.device.StreamDestroy(st); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// process dispatches a task by body variant. It returns the tail-chained
// next task for the current worker, or nil.
func (s *Scheduler) process(w *worker, t *Task) *Task {
	switch t.kind {
	case taskStatic:
		return s.invokeStatic(w, t)
	case taskSuspendable:
		return s.invokeCoro(w, t)
	default:
		t.inner(w)
		return nil
	}
}

func (s *Scheduler) invokeStatic(w *worker, t *Task) *Task {
	if err := runStatic(t); err != nil {
		s.fatal(err)
	}
	return s.complete(w, t)
}

func runStatic(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("static task %s panicked: %v", t.name, r)
		}
	}()
	return t.work()
}

// invokeCoro resumes a suspendable task under its resumption lock and reads
// the final flag before releasing it. If the body yielded, its re-enqueue
// already happened inside the yield point (plain suspend) or will happen
// through the inner-task trampoline (device suspend).
func (s *Scheduler) invokeCoro(w *worker, t *Task) *Task {
	c := t.coro

	c.mu.Lock()
	s.record(EventResumed, t, w.id, 0)
	resumed := c.doResume(w)
	final := c.final
	c.mu.Unlock()

	if !resumed || !final {
		return nil
	}
	return s.complete(w, t)
}

// complete runs the successor-completion protocol for a task that reached
// its final state: decrement each successor's join counter, hold the first
// ready successor back as the tail-chained next task, push the rest onto
// the current worker's deque with one notify per enqueue, and bump the
// finished counter, signalling stop when every task is done.
func (s *Scheduler) complete(w *worker, t *Task) *Task {
	s.record(EventFinished, t, w.id, 0)
	s.logger.Debug("task finished", "task", t.name, "kind", t.kindString(), "worker", w.id)

	var next *Task
	for _, succ := range t.succs {
		if succ.join.Add(-1) == 0 {
			if next == nil {
				next = succ
				continue
			}
			w.que.Push(succ)
			s.notifier.Notify(false)
		}
	}

	if s.finished.Add(1) == int64(len(s.tasks)) {
		s.stop.Store(true)
		s.notifier.Notify(true)
	}
	return next
}

// newInnerTask builds the trampoline that bridges a host callback back into
// the task population. It runs on a worker: the stream is returned to that
// worker's pool, and the suspendable task is re-enqueued under its
// resumption lock, so the trampoline cannot complete until the suspending
// resume has unwound.
func (s *Scheduler) newInnerTask(cb *callbackRecord) *Task {
	return &Task{
		id:   cb.taskID,
		name: s.tasks[cb.taskID].name + "/inner",
		kind: taskInner,
		inner: func(w *worker) {
			w.streams.Push(cb.stream)
			t := s.tasks[cb.taskID]

			c := t.coro
			c.mu.Lock()
			w.que.Push(t)
			s.notifier.Notify(false)
			c.mu.Unlock()
		},
	}
}

// enqueueGlobal pushes a task onto the shared overflow deque. Safe from any
// goroutine; used by Schedule seeding and host callbacks.
func (s *Scheduler) enqueueGlobal(t *Task) {
	s.qmu.Lock()
	s.global.Push(t)
	s.qmu.Unlock()
}

// acquireStream pops a stream from the worker's own pool, falls back to
// stealing across peers, and only if all of that fails creates a fresh
// stream.
func (s *Scheduler) acquireStream(w *worker) (*device.Stream, error) {
	if st, ok := w.streams.Pop(); ok {
		return st, nil
	}

	numSteals := 0
	numYields := 0
	for len(s.workers) > 1 && !s.stop.Load() {
		vtm := w.rng.IntN(len(s.workers))
		if vtm == w.id {
			continue
		}
		if st, ok := s.workers[vtm].streams.Steal(); ok {
			return st, nil
		}
		numSteals++
		if numSteals > s.maxSteals {
			runtime.Gosched()
			numYields++
			if numYields > 10 {
				break
			}
		}
	}

	st, err := s.device.StreamCreate()
	if err != nil {
		return nil, err
	}
	s.streamMu.Lock()
	s.allStreams = append(s.allStreams, st)
	s.streamMu.Unlock()
	s.record(EventStreamCreated, nil, w.id, st.ID())
	return st, nil
}

// fatal records the first fatal error, sets stop, releases parked bodies,
// and wakes every worker.
func (s *Scheduler) fatal(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
		s.logger.Error("fatal scheduler error", "error", err)
	}
	s.errMu.Unlock()

	s.stop.Store(true)
	s.unwindOnce.Do(func() { close(s.unwind) })
	s.notifier.Notify(true)
}
