package device

import "time"

// The kernel catalog used by the pipeline front-end. The
// kernels simulate device work on the stream dispatcher goroutine.

// Noop returns a kernel that completes immediately.
func Noop() Kernel {
	return func() {}
}

// Sleep returns a kernel that occupies the stream for d.
func Sleep(d time.Duration) Kernel {
	return func() { time.Sleep(d) }
}

// Saxpy returns a kernel computing y = a*x + y over n elements.
func Saxpy(n int) Kernel {
	return func() {
		const a = float32(2.5)
		x := make([]float32, n)
		y := make([]float32, n)
		for i := range x {
			x[i] = float32(i)
			y[i] = float32(n - i)
		}
		for i := range y {
			y[i] = a*x[i] + y[i]
		}
	}
}
