package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifier_NotifyBetweenPrepareAndCommit(t *testing.T) {
	n := NewNotifier(1)
	w := n.Waiter(0)

	n.PrepareWait(w)
	n.Notify(false)

	done := make(chan struct{})
	go func() {
		n.CommitWait(w)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CommitWait blocked despite a notify after PrepareWait")
	}
}

func TestNotifier_CancelClearsIntent(t *testing.T) {
	n := NewNotifier(2)
	w0, w1 := n.Waiter(0), n.Waiter(1)

	n.PrepareWait(w0)
	n.CancelWait(w0)
	n.PrepareWait(w1)

	// The single notify must land on the still-prepared waiter.
	n.Notify(false)

	done := make(chan struct{})
	go func() {
		n.CommitWait(w1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify was consumed by a cancelled waiter")
	}
}

func TestNotifier_NotifyAllWakesCommitted(t *testing.T) {
	const waiters = 4
	n := NewNotifier(waiters)

	var wg sync.WaitGroup
	var committed sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		committed.Add(1)
		go func(i int) {
			defer wg.Done()
			w := n.Waiter(i)
			n.PrepareWait(w)
			committed.Done()
			n.CommitWait(w)
		}(i)
	}

	committed.Wait()
	// Waiters may still be between prepare and commit; notify-all reaches
	// both cases.
	n.Notify(true)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify(true) did not wake all committed waiters")
	}
}

// TestNotifier_NoLostWakeup runs a produce/consume loop through the full
// 2PC protocol and fails by timeout if a wakeup is ever lost.
func TestNotifier_NoLostWakeup(t *testing.T) {
	n := NewNotifier(1)
	w := n.Waiter(0)

	var queue atomic.Int64
	const rounds = 5000

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumed := 0
		for consumed < rounds {
			if queue.Load() > 0 {
				queue.Add(-1)
				consumed++
				continue
			}
			n.PrepareWait(w)
			if queue.Load() > 0 {
				n.CancelWait(w)
				continue
			}
			n.CommitWait(w)
		}
	}()

	for i := 0; i < rounds; i++ {
		queue.Add(1)
		n.Notify(false)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer stalled: lost wakeup")
	}
}
