package device

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stream is an ordered command queue owned by a Runtime. Each stream drains
// its work FIFO on a dedicated dispatcher goroutine; host functions run on
// that same runtime-owned goroutine, never on a scheduler worker.
type Stream struct {
	id int64

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closing bool

	done chan struct{}
}

// ID returns the stream's runtime-assigned identifier.
func (st *Stream) ID() int64 { return st.id }

// Sim is a CPU simulation of a CUDA-like runtime. Streams are dispatcher
// goroutines; submitted kernels execute in submission order per stream and
// concurrently across streams.
type Sim struct {
	logger  *slog.Logger
	nextID  atomic.Int64
	created atomic.Int64
}

// NewSim creates a simulated device runtime.
func NewSim(logger *slog.Logger) *Sim {
	return &Sim{logger: logger.With("component", "device")}
}

// Created returns the number of streams created so far.
func (s *Sim) Created() int64 { return s.created.Load() }

// StreamCreate creates a stream and starts its dispatcher.
func (s *Sim) StreamCreate() (*Stream, error) {
	st := &Stream{
		id:   s.nextID.Add(1),
		done: make(chan struct{}),
	}
	st.cond = sync.NewCond(&st.mu)
	s.created.Add(1)
	s.logger.Debug("stream created", "stream", st.id)
	go st.dispatch()
	return st, nil
}

// StreamDestroy stops the stream's dispatcher after pending work drains.
func (s *Sim) StreamDestroy(st *Stream) error {
	st.mu.Lock()
	if st.closing {
		st.mu.Unlock()
		return fmt.Errorf("destroy stream %d: %w", st.id, ErrStreamDestroyed)
	}
	st.closing = true
	st.cond.Signal()
	st.mu.Unlock()

	<-st.done
	s.logger.Debug("stream destroyed", "stream", st.id)
	return nil
}

// Launch submits a kernel to the stream's FIFO.
func (s *Sim) Launch(st *Stream, k Kernel) error {
	return st.submit(func() { k() })
}

// LaunchHostFunc schedules fn to run on the stream's dispatcher goroutine
// once all previously submitted work has completed.
func (s *Sim) LaunchHostFunc(st *Stream, fn func()) error {
	return st.submit(fn)
}

func (st *Stream) submit(fn func()) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closing {
		return fmt.Errorf("submit to stream %d: %w", st.id, ErrStreamDestroyed)
	}
	st.pending = append(st.pending, fn)
	st.cond.Signal()
	return nil
}

// dispatch drains the FIFO until the stream is destroyed. Remaining work is
// completed before exit, matching stream-destroy-waits-for-work semantics.
func (st *Stream) dispatch() {
	defer close(st.done)
	for {
		st.mu.Lock()
		for len(st.pending) == 0 && !st.closing {
			st.cond.Wait()
		}
		if len(st.pending) == 0 && st.closing {
			st.mu.Unlock()
			return
		}
		fn := st.pending[0]
		st.pending = st.pending[1:]
		st.mu.Unlock()

		fn()
	}
}
