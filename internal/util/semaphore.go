// Package util collects small concurrency helpers shared across reactor
// components that don't warrant their own package.
package util

import "context"

// Semaphore guards access to a value, rather than just counting permits the
// way a plain semaphore does. Unlike a general-purpose semaphore it owns
// the protected item and only ever hands it out through an acquired Guard,
// so callers cannot reach the value without holding a permit.
type Semaphore[T any] struct {
	permits chan struct{}
	item    T
}

// NewSemaphore creates a semaphore with the given number of permits
// guarding item.
func NewSemaphore[T any](permits int, item T) *Semaphore[T] {
	if permits <= 0 {
		panic("util: semaphore must have at least one permit")
	}
	ch := make(chan struct{}, permits)
	for i := 0; i < permits; i++ {
		ch <- struct{}{}
	}
	return &Semaphore[T]{permits: ch, item: item}
}

// Guard holds one acquired permit and grants access to the protected item
// until Release is called. A Guard must be released exactly once.
type Guard[T any] struct {
	sem  *Semaphore[T]
	item *T
}

// Item returns the protected value.
func (g *Guard[T]) Item() T { return *g.item }

// Release returns the permit to the semaphore. Calling Release more than
// once panics, matching the single-use contract of a dropped Rust guard.
func (g *Guard[T]) Release() {
	if g.sem == nil {
		panic("util: semaphore guard released more than once")
	}
	sem := g.sem
	g.sem = nil
	sem.permits <- struct{}{}
}

// Acquire blocks until a permit is available or ctx is canceled.
func (s *Semaphore[T]) Acquire(ctx context.Context) (*Guard[T], error) {
	select {
	case <-s.permits:
		return &Guard[T]{sem: s, item: &s.item}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IntoInner deconstructs the semaphore, returning the protected item. It is
// the caller's responsibility to ensure no guard is outstanding.
func (s *Semaphore[T]) IntoInner() T {
	return s.item
}
