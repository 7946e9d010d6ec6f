package device

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testSim() *Sim {
	return NewSim(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSim_StreamFIFO(t *testing.T) {
	sim := testSim()
	st, err := sim.StreamCreate()
	if err != nil {
		t.Fatalf("StreamCreate: %v", err)
	}
	defer sim.StreamDestroy(st)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		if err := sim.Launch(st, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Launch %d: %v", i, err)
		}
	}

	done := make(chan struct{})
	if err := sim.LaunchHostFunc(st, func() { close(done) }); err != nil {
		t.Fatalf("LaunchHostFunc: %v", err)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 100 {
		t.Fatalf("ran %d kernels, want 100", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("kernel %d ran at position %d: stream order violated", got, i)
		}
	}
}

func TestSim_HostFuncAfterPriorWork(t *testing.T) {
	sim := testSim()
	st, err := sim.StreamCreate()
	if err != nil {
		t.Fatalf("StreamCreate: %v", err)
	}
	defer sim.StreamDestroy(st)

	var mu sync.Mutex
	kernelDone := false
	sim.Launch(st, func() {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		kernelDone = true
		mu.Unlock()
	})

	sawKernel := make(chan bool, 1)
	sim.LaunchHostFunc(st, func() {
		mu.Lock()
		sawKernel <- kernelDone
		mu.Unlock()
	})

	if !<-sawKernel {
		t.Error("host func ran before prior stream work completed")
	}
}

func TestSim_DestroyedStreamRejectsWork(t *testing.T) {
	sim := testSim()
	st, err := sim.StreamCreate()
	if err != nil {
		t.Fatalf("StreamCreate: %v", err)
	}
	if err := sim.StreamDestroy(st); err != nil {
		t.Fatalf("StreamDestroy: %v", err)
	}

	if err := sim.Launch(st, func() {}); !errors.Is(err, ErrStreamDestroyed) {
		t.Errorf("Launch error = %v, want ErrStreamDestroyed", err)
	}
	if err := sim.StreamDestroy(st); !errors.Is(err, ErrStreamDestroyed) {
		t.Errorf("second StreamDestroy error = %v, want ErrStreamDestroyed", err)
	}
}

func TestSim_DestroyDrainsPendingWork(t *testing.T) {
	sim := testSim()
	st, err := sim.StreamCreate()
	if err != nil {
		t.Fatalf("StreamCreate: %v", err)
	}

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 50; i++ {
		sim.Launch(st, func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	if err := sim.StreamDestroy(st); err != nil {
		t.Fatalf("StreamDestroy: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if ran != 50 {
		t.Errorf("destroy drained %d of 50 kernels", ran)
	}
}

func TestSim_StreamsRunConcurrently(t *testing.T) {
	sim := testSim()
	a, _ := sim.StreamCreate()
	b, _ := sim.StreamCreate()
	defer sim.StreamDestroy(a)
	defer sim.StreamDestroy(b)

	if got := sim.Created(); got != 2 {
		t.Errorf("Created = %d, want 2", got)
	}

	gate := make(chan struct{})
	sim.Launch(a, func() { <-gate })

	done := make(chan struct{})
	sim.LaunchHostFunc(b, func() { close(done) })

	// Stream b must drain even while a is blocked.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream b blocked behind stream a")
	}
	close(gate)
}
