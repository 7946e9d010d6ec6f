// Package device abstracts the GPU runtime consumed by the scheduler.
//
// The surface is deliberately minimal: create and destroy streams, submit a
// kernel to a stream, and register a host function that runs on a
// runtime-owned goroutine once all prior work on the stream has drained.
// Kernel compilation, memory transfers, and device management are outside
// this facade.
package device

import "errors"

// Kernel is a unit of device work. Submission is non-blocking; the kernel
// runs asynchronously in stream order.
type Kernel func()

// ErrStreamDestroyed is reported when work is submitted to a stream that
// has been destroyed.
var ErrStreamDestroyed = errors.New("device: stream destroyed")

// Runtime is the device runtime consumed by the scheduler core.
type Runtime interface {
	// StreamCreate creates a new stream.
	StreamCreate() (*Stream, error)

	// StreamDestroy destroys a stream after its pending work drains.
	StreamDestroy(st *Stream) error

	// Launch submits a kernel to a stream. It returns without waiting for
	// the kernel to run.
	Launch(st *Stream, k Kernel) error

	// LaunchHostFunc arranges for fn to be called on a runtime-owned
	// goroutine after all work previously submitted to st has completed.
	LaunchHostFunc(st *Stream, fn func()) error
}
