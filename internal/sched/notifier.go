package sched

import "sync"

// Notifier is a two-phase-commit waiter registry. A worker that finds no
// work marks its intent to sleep with PrepareWait, rechecks every queue, and
// then either CancelWait (work appeared) or CommitWait (block until
// notified). A producer publishes work first and calls Notify second; a
// notification that lands between PrepareWait and CommitWait makes the
// CommitWait return immediately, which closes the lost-wakeup window.
type Notifier struct {
	mu      sync.Mutex
	waiters []*Waiter
}

// Waiter is one worker's slot in the registry.
type Waiter struct {
	prepared  bool
	committed bool
	notified  bool
	wake      chan struct{}
}

// NewNotifier creates a registry with n waiter slots.
func NewNotifier(n int) *Notifier {
	nt := &Notifier{waiters: make([]*Waiter, n)}
	for i := range nt.waiters {
		nt.waiters[i] = &Waiter{wake: make(chan struct{}, 1)}
	}
	return nt
}

// Waiter returns slot i.
func (n *Notifier) Waiter(i int) *Waiter { return n.waiters[i] }

// PrepareWait marks w as intending to sleep. The caller must recheck its
// work sources before committing.
func (n *Notifier) PrepareWait(w *Waiter) {
	n.mu.Lock()
	w.prepared = true
	w.notified = false
	n.mu.Unlock()
}

// CancelWait withdraws the intent to sleep.
func (n *Notifier) CancelWait(w *Waiter) {
	n.mu.Lock()
	w.prepared = false
	w.notified = false
	n.mu.Unlock()
}

// CommitWait blocks until a notification arrives. If one arrived since
// PrepareWait it returns immediately.
func (n *Notifier) CommitWait(w *Waiter) {
	n.mu.Lock()
	if w.notified {
		w.prepared = false
		w.notified = false
		n.mu.Unlock()
		return
	}
	w.committed = true
	n.mu.Unlock()

	<-w.wake

	n.mu.Lock()
	w.prepared = false
	w.committed = false
	w.notified = false
	n.mu.Unlock()
}

// Notify wakes one prepared waiter, or all of them when all is true. It is
// cheap and has no effect on slots that are not preparing or committed.
func (n *Notifier) Notify(all bool) {
	n.mu.Lock()
	for _, w := range n.waiters {
		if !w.prepared || w.notified {
			continue
		}
		w.notified = true
		if w.committed {
			w.wake <- struct{}{}
		}
		if !all {
			break
		}
	}
	n.mu.Unlock()
}
