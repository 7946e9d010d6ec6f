package sched

import (
	"math/rand/v2"
	"runtime"

	"github.com/me/weft/internal/device"
)

// exploreYieldBudget bounds how many yield-backoff cycles explore runs
// before giving up and entering the idle protocol.
const exploreYieldBudget = 100

// worker owns a task deque, a stream pool, a randomised victim index, and a
// waiter slot in the idle notifier.
type worker struct {
	id      int
	vtm     int
	que     *Deque[*Task]
	streams *Deque[*device.Stream]
	rng     *rand.Rand
	waiter  *Waiter
}

func (s *Scheduler) runWorker(w *worker) {
	defer s.wg.Done()
	for {
		s.exploit(w)
		if !s.waitForTask(w) {
			return
		}
	}
}

// exploit drains the worker's own deque, processing each task as it is
// popped. Tail-chained successors are processed before the next pop.
func (s *Scheduler) exploit(w *worker) {
	for {
		t, ok := w.que.Pop()
		if !ok {
			return
		}
		for t != nil {
			t = s.process(w, t)
		}
	}
}

// explore makes bounded steal attempts against randomly chosen victims,
// treating the global overflow deque as the victim when the index lands on
// the worker itself. Returns true if a task was stolen and processed.
func (s *Scheduler) explore(w *worker) bool {
	numSteals := 0
	numYields := 0

	for !s.stop.Load() {
		var t *Task
		var ok bool
		if w.vtm == w.id {
			t, ok = s.global.Steal()
		} else {
			t, ok = s.workers[w.vtm].que.Steal()
		}

		if ok {
			for t != nil {
				t = s.process(w, t)
			}
			return true
		}

		numSteals++
		if numSteals > s.maxSteals {
			runtime.Gosched()
			numYields++
			if numYields > exploreYieldBudget {
				break
			}
		}
		w.vtm = w.rng.IntN(len(s.workers))
	}
	return false
}

// waitForTask runs explore until it finds work or gives up, then enters the
// two-phase-commit idle dance: prepare, check the stop flag, recheck the
// global deque and every worker deque in index order, and only then commit to
// sleep. The index-order scan is required: a randomised probe can miss a
// single non-empty queue indefinitely, and committing to sleep on that miss
// would strand the work. Returns false when the worker should exit.
func (s *Scheduler) waitForTask(w *worker) bool {
	for {
		if s.explore(w) {
			// Compensate the victim for its lost work.
			s.notifier.Notify(false)
			return true
		}

		s.notifier.PrepareWait(w.waiter)

		// Stop is checked before the queue rechecks: a fatal stop abandons
		// queued work, and explore refuses it once the flag is up.
		if s.stop.Load() {
			s.notifier.CancelWait(w.waiter)
			s.notifier.Notify(true)
			return false
		}

		if !s.global.Empty() {
			s.notifier.CancelWait(w.waiter)
			w.vtm = w.id
			continue
		}

		vtm := -1
		for i := range s.workers {
			if !s.workers[i].que.Empty() {
				vtm = i
				break
			}
		}
		if vtm >= 0 {
			s.notifier.CancelWait(w.waiter)
			w.vtm = vtm
			continue
		}

		s.notifier.CommitWait(w.waiter)
	}
}
