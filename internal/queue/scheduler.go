// Package queue implements the weighted round-robin multi-queue scheduler
// described in spec.md section 4.1: one FIFO queue per queue kind, each
// assigned a positive ticket count, serviced in a fixed rotation so that no
// non-empty queue is starved.
package queue

import (
	"context"
	"fmt"
	"sync"
)

// Weight pairs a queue kind with its ticket count: the number of items
// returned from that queue before the scheduler moves on to the next one.
type Weight[K comparable] struct {
	Kind   K
	Weight int
}

// slot is the round-robin position: which queue is being serviced and how
// many tickets remain before the scheduler advances.
type slot[K comparable] struct {
	kind    K
	tickets int
}

type fifo[I any] struct {
	items []I
}

func (q *fifo[I]) pushBack(item I) {
	q.items = append(q.items, item)
}

func (q *fifo[I]) popFront() (I, bool) {
	var zero I
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	// Avoid retaining a reference to the popped element.
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *fifo[I]) drain() []I {
	items := q.items
	q.items = nil
	return items
}

func (q *fifo[I]) len() int {
	return len(q.items)
}

// Scheduler is a weighted round-robin multi-queue. Producers push items
// keyed by queue kind; a single logical consumer awaits and pops the next
// item respecting the configured weights. A single mutex guards all queue
// state, and a buffered "doorbell" channel wakes waiting consumers, the Go
// analogue of tokio's Notify used by the original implementation.
type Scheduler[K comparable, I any] struct {
	mu       sync.Mutex
	queues   map[K]*fifo[I]
	slots    []slot[K]
	active   int // index into slots of the currently active slot
	tickets  int // tickets remaining in the active slot
	total    int
	doorbell chan struct{}
}

// New creates a scheduler with one queue per entry in weights. Every weight
// must be a positive integer; at least one slot must be provided.
func New[K comparable, I any](weights []Weight[K]) *Scheduler[K, I] {
	if len(weights) == 0 {
		panic("queue: must provide at least one slot")
	}

	s := &Scheduler[K, I]{
		queues:   make(map[K]*fifo[I], len(weights)),
		slots:    make([]slot[K], len(weights)),
		doorbell: make(chan struct{}, 1),
	}

	for i, w := range weights {
		if w.Weight <= 0 {
			panic(fmt.Sprintf("queue: weight for kind %v must be positive, got %d", w.Kind, w.Weight))
		}
		if _, exists := s.queues[w.Kind]; exists {
			panic(fmt.Sprintf("queue: duplicate queue kind %v", w.Kind))
		}
		s.queues[w.Kind] = &fifo[I]{}
		s.slots[i] = slot[K]{kind: w.Kind, tickets: w.Weight}
	}
	s.tickets = s.slots[0].tickets

	return s
}

func (s *Scheduler[K, I]) lock()   { s.mu.Lock() }
func (s *Scheduler[K, I]) unlock() { s.mu.Unlock() }

func (s *Scheduler[K, I]) ring() {
	select {
	case s.doorbell <- struct{}{}:
	default:
		// A signal is already pending; the consumer will notice this push
		// on its next wake regardless.
	}
}

// Push enqueues item on the queue identified by kind and wakes one waiter.
// It returns an error if kind was not registered when the scheduler was
// constructed — a programmer error, per spec.md section 4.1.
func (s *Scheduler[K, I]) Push(item I, kind K) error {
	s.lock()
	q, ok := s.queues[kind]
	if !ok {
		s.unlock()
		return fmt.Errorf("queue: kind %v is not registered", kind)
	}
	q.pushBack(item)
	s.total++
	s.unlock()

	s.ring()
	return nil
}

// Pop blocks until at least one queue is non-empty, then returns the next
// item per the weighted round-robin policy. It returns ctx.Err() if ctx is
// canceled before an item becomes available.
func (s *Scheduler[K, I]) Pop(ctx context.Context) (I, K, error) {
	var zero I
	var zeroK K
	for {
		s.lock()
		if s.total == 0 {
			s.unlock()
			select {
			case <-s.doorbell:
				continue
			case <-ctx.Done():
				return zero, zeroK, ctx.Err()
			}
		}

		for {
			cur := s.slots[s.active]
			q := s.queues[cur.kind]
			if s.tickets > 0 && q.len() > 0 {
				item, _ := q.popFront()
				s.tickets--
				s.total--
				s.unlock()
				return item, cur.kind, nil
			}
			// Exhausted this slot's tickets, or it is empty: advance.
			s.active = (s.active + 1) % len(s.slots)
			s.tickets = s.slots[s.active].tickets
		}
	}
}

// Drain removes and returns all items currently queued under kind. It is
// atomic relative to other Drain/Pop calls on the same kind.
func (s *Scheduler[K, I]) Drain(kind K) []I {
	s.lock()
	defer s.unlock()

	q, ok := s.queues[kind]
	if !ok {
		return nil
	}
	items := q.drain()
	s.total -= len(items)
	return items
}

// Counts returns a best-effort snapshot of each queue's current length.
func (s *Scheduler[K, I]) Counts() map[K]int {
	s.lock()
	defer s.unlock()

	counts := make(map[K]int, len(s.queues))
	for k, q := range s.queues {
		counts[k] = q.len()
	}
	return counts
}

// ItemCount returns the total number of items currently queued across all
// kinds, computed under the scheduler's lock.
func (s *Scheduler[K, I]) ItemCount() int {
	s.lock()
	defer s.unlock()
	return s.total
}

// IsEmpty reports whether every queue is currently empty.
func (s *Scheduler[K, I]) IsEmpty() bool {
	return s.ItemCount() == 0
}

// Snapshot acquires the scheduler's lock and invokes emit once per queue
// kind with that queue's current contents, in the order the kinds were
// registered. This is a stop-the-world diagnostic, matching the
// snapshot/debug_dump operations of spec.md section 4.1.
func (s *Scheduler[K, I]) Snapshot(emit func(kind K, items []I)) {
	s.lock()
	defer s.unlock()

	for _, slot := range s.slots {
		q := s.queues[slot.kind]
		// Copy so the caller cannot observe or retain scheduler-owned
		// storage after the lock is released.
		items := make([]I, len(q.items))
		copy(items, q.items)
		emit(slot.kind, items)
	}
}
