package counters

import (
	"sync/atomic"
)

// StrictMonotonousCounter is a helper struct which implements a strict
// monotonous counter. It is implemented using atomic operations and doesn't
// allow to set a value which is lower or equal to the already stored one.
// The counter is implemented solely with non-blocking atomic operations for
// concurrency safety.
type StrictMonotonousCounter struct {
	atomicCounter uint64
}

// NewMonotonousCounter creates a new counter with the initial value.
func NewMonotonousCounter(initialValue uint64) StrictMonotonousCounter {
	return StrictMonotonousCounter{
		atomicCounter: initialValue,
	}
}

// Set updates the value of the counter if and only if it's strictly larger
// than the value which is already stored. Returns true if the update was
// applied.
func (c *StrictMonotonousCounter) Set(newValue uint64) bool {
	for {
		oldValue := c.Value()
		if newValue <= oldValue {
			return false
		}
		if atomic.CompareAndSwapUint64(&c.atomicCounter, oldValue, newValue) {
			return true
		}
	}
}

// Value returns the value which is stored in the counter.
func (c *StrictMonotonousCounter) Value() uint64 {
	return atomic.LoadUint64(&c.atomicCounter)
}
