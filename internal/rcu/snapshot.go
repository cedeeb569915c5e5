package rcu

import (
	"sync/atomic"
)

// Snapshot is a lock-free read-copy-update container. Readers take no lock
// and always observe a consistent, immutable value; writers publish a freshly
// allocated copy via atomic pointer swap.
//
// Suited to read-mostly shared state such as policy sets and allow-lists that
// are replaced wholesale on update.
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

// NewSnapshot creates a container holding init.
func NewSnapshot[T any](init *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(init)
	return s
}

// Load returns the current snapshot. The returned value must be treated as
// immutable.
func (s *Snapshot[T]) Load() *T {
	return s.ptr.Load()
}

// Replace publishes next as the current snapshot. The caller must not modify
// next afterwards.
func (s *Snapshot[T]) Replace(next *T) {
	s.ptr.Store(next)
}
