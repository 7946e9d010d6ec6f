package sched

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/me/weft/internal/device"
)

// errUnwind is panicked at a parked yield point when the scheduler is
// tearing down after a fatal error, so the body goroutine can exit.
var errUnwind = errors.New("sched: unwind suspended body")

// coro is a suspendable computation backed by a dedicated goroutine. The
// body runs on that goroutine; Resume hands control to it and blocks the
// calling worker until the body reaches a yield point or completes. The
// goroutine is started lazily on the first resume, so a freshly created
// coro is suspended at the top of its body.
//
// The mutex is the resumption lock: it is held by the scheduler for the
// entire duration of every resume, and acquired by the inner trampoline
// task before re-enqueueing. If the device runtime finishes a kernel fast
// enough that the host callback fires before the suspending resume has
// unwound, the worker that picks up the inner task blocks here until it
// has. The final flag must only be read under the lock.
type coro struct {
	mu sync.Mutex

	body  func(*Yielder) error
	task  *Task
	sched *Scheduler

	resumeCh chan struct{}
	yieldCh  chan struct{}

	started bool
	final   bool

	// worker currently resuming this coro; only valid between the start of
	// a resume and the next yield.
	worker *worker

	inFlight atomic.Int32 // at-most-one-resume invariant check
}

func newCoro(s *Scheduler, t *Task, body func(*Yielder) error) *coro {
	return &coro{
		body:     body,
		task:     t,
		sched:    s,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
	}
}

// doResume advances the body until its next yield point or completion. The
// caller must hold c.mu. Returns false if the resume was abandoned because
// the scheduler is unwinding.
func (c *coro) doResume(w *worker) bool {
	if c.inFlight.Add(1) != 1 {
		panic("sched: concurrent resume of suspendable task " + c.task.name)
	}
	defer c.inFlight.Add(-1)

	c.worker = w
	if !c.started {
		c.started = true
		go c.run()
	} else {
		select {
		case c.resumeCh <- struct{}{}:
		case <-c.sched.unwind:
			return false
		}
	}
	<-c.yieldCh
	return true
}

// run executes the body to completion on the coro's own goroutine. final is
// written before the last yield signal, so the resuming worker observes it
// under the resumption lock.
func (c *coro) run() {
	signal := true
	defer func() {
		if r := recover(); r != nil {
			if r == errUnwind {
				signal = false
			} else {
				c.sched.fatal(fmt.Errorf("suspendable task %s panicked: %v", c.task.name, r))
			}
		}
		c.final = true
		if signal {
			c.yieldCh <- struct{}{}
		}
	}()

	if err := c.body(&Yielder{c: c}); err != nil {
		c.sched.fatal(fmt.Errorf("suspendable task %s: %w", c.task.name, err))
	}
}

// park returns control to the resuming worker and blocks until the next
// resume. Called from the body goroutine at yield points, after the yield's
// side effects (enqueue or callback registration) are in place.
func (c *coro) park() {
	c.yieldCh <- struct{}{}
	select {
	case <-c.resumeCh:
	case <-c.sched.unwind:
		panic(errUnwind)
	}
}

// Yielder is handed to suspendable bodies and exposes the yield points.
// Bodies run on a coro goroutine while the resuming worker is blocked, so
// pushes to the worker's own deque and stream pool keep their owner-only
// contract.
type Yielder struct {
	c *coro
}

// Suspend yields control to the scheduler and re-enqueues the task on the
// current worker's deque. The task will be picked up and resumed by some
// worker, not necessarily the same one.
func (y *Yielder) Suspend() {
	c := y.c
	w := c.worker
	w.que.Push(c.task)
	c.sched.notifier.Notify(false)
	c.sched.record(EventSuspended, c.task, w.id, 0)
	c.park()
}

// DeviceSuspend submits kernel to a stream and yields until the stream
// drains. The stream comes from the current worker's pool, a peer's pool,
// or is created fresh. Completion is bridged back through the host-callback
// shim and the inner trampoline task; the task resumes on whichever worker
// picks it up. A submission failure is fatal to the scheduler and is also
// returned so the body can stop.
func (y *Yielder) DeviceSuspend(kernel device.Kernel) error {
	c := y.c
	s := c.sched
	w := c.worker

	st, err := s.acquireStream(w)
	if err != nil {
		s.fatal(fmt.Errorf("task %s: acquire stream: %w", c.task.name, err))
		return err
	}

	if err := s.device.Launch(st, kernel); err != nil {
		w.streams.Push(st)
		err = fmt.Errorf("task %s: launch kernel: %w", c.task.name, err)
		s.fatal(err)
		return err
	}

	cb := &callbackRecord{sched: s, taskID: c.task.id, stream: st}
	cb.inner = s.newInnerTask(cb)

	// Incremented before the callback is registered and decremented as the
	// callback's final action; Wait spins on this after joining workers so
	// scheduler state outlives every callback.
	s.cbCount.Add(1)
	if err := s.device.LaunchHostFunc(st, cb.fire); err != nil {
		s.cbCount.Add(-1)
		w.streams.Push(st)
		err = fmt.Errorf("task %s: register callback: %w", c.task.name, err)
		s.fatal(err)
		return err
	}

	s.record(EventDeviceSuspended, c.task, w.id, st.ID())
	c.park()
	return nil
}

// callbackRecord is the per-suspension state handed to the host callback:
// everything the callback and the inner task need to bridge completion back
// into the scheduler.
type callbackRecord struct {
	sched  *Scheduler
	taskID int
	stream *device.Stream
	inner  *Task
}

// fire runs on a device-runtime-owned goroutine once the stream drains. It
// must not touch scheduler state after the counter decrement: that is the
// signal Wait spins on before the scheduler may be torn down.
func (cb *callbackRecord) fire() {
	s := cb.sched
	s.enqueueGlobal(cb.inner)
	s.notifier.Notify(false)
	s.cbCount.Add(-1)
}
