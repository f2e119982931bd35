package asset

import (
	"sync/atomic"
)

// Cell is a single-assignment slot shared between a loader goroutine and
// the render thread. Exactly one of Publish or Fail takes effect.
type Cell[T any] struct {
	settled atomic.Bool
	value   atomic.Pointer[T]
	err     atomic.Pointer[error]
	done    chan struct{}
}

func NewCell[T any]() *Cell[T] {
	return &Cell[T]{done: make(chan struct{})}
}

// Publish stores v. It returns false if the cell was already settled.
func (c *Cell[T]) Publish(v *T) bool {
	if v == nil || !c.settled.CompareAndSwap(false, true) {
		return false
	}
	c.value.Store(v)
	close(c.done)
	return true
}

// Fail records a terminal error. The cell never receives a value after.
func (c *Cell[T]) Fail(err error) bool {
	if !c.settled.CompareAndSwap(false, true) {
		return false
	}
	c.err.Store(&err)
	close(c.done)
	return true
}

// Get never blocks.
func (c *Cell[T]) Get() (*T, bool) {
	v := c.value.Load()
	return v, v != nil
}

func (c *Cell[T]) Err() error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Done is closed once the cell is settled either way.
func (c *Cell[T]) Done() <-chan struct{} {
	return c.done
}
