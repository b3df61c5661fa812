// Package counter provides the process-wide request counter served by the root endpoint.
package counter

import "sync"

// Counter is a monotonically increasing request counter.
// The zero value is ready to use and starts at 0.
type Counter struct {
	mu    sync.Mutex
	value uint64
}

// New returns a counter starting at 0.
func New() *Counter {
	return &Counter{}
}

// Increment adds one and returns the new value. The read-modify-write
// happens under the lock, so concurrent callers never observe the same value.
func (c *Counter) Increment() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value++

	return c.value
}

// Value returns the current value without changing it.
func (c *Counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.value
}
