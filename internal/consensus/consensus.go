// Package consensus is a stub era-supervisor-shaped component: it owns
// the pending-vertex timeout and unit-hash persistence folder the real
// Highway protocol would use, and tracks vertices well enough to exercise
// the reactor, but implements no actual consensus protocol (out of scope
// per spec.md section 1).
package consensus

import (
	"context"
	"math/rand"
	"time"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
)

// Vertex is a minimal placeholder for a consensus protocol vertex: just
// enough shape (hash plus declared dependencies) to model the
// pending-vertex timeout without implementing the Highway protocol.
type Vertex struct {
	Hash         [32]byte
	Dependencies [][32]byte
	ReceivedAt   time.Time
}

// AddVertexRequest submits a vertex for processing.
type AddVertexRequest struct {
	Vertex  Vertex
	Respond func(AddVertexResult)
}

// AddVertexResult reports whether the vertex was accepted immediately or
// is pending on unresolved dependencies.
type AddVertexResult struct {
	Pending bool
}

// Event is the consensus component's local event vocabulary.
type Event interface {
	isConsensusEvent()
}

func (AddVertexRequest) isConsensusEvent() {}

// EvictSweepEvent is self-scheduled by the component's background sweep
// goroutine; handling it runs EvictExpired on the dispatch goroutine so
// pending never needs its own lock.
type EvictSweepEvent struct{}

func (EvictSweepEvent) isConsensusEvent() {}

// Component is the stub era supervisor. cfg.PendingVertexTimeout governs how
// long an orphaned vertex (one with unresolved Dependencies) is retained
// before being dropped.
type Component[O any] struct {
	cfg     config.ConsensusConfig
	pending map[[32]byte]Vertex

	shutdownCancel context.CancelFunc
}

// New constructs the stub consensus component from cfg and starts a
// background goroutine that schedules an EvictSweepEvent every
// PendingVertexTimeout, so EvictExpired actually runs against the clock
// instead of needing a test to call it directly.
func New[O any](cfg config.ConsensusConfig, eventQueue reactorcore.EventQueueHandle[Event, O]) (*Component[O], reactorcore.Effects[O]) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Component[O]{
		cfg:            cfg,
		pending:        make(map[[32]byte]Vertex),
		shutdownCancel: cancel,
	}
	go c.sweepLoop(ctx, eventQueue)
	return c, nil
}

func (c *Component[O]) sweepLoop(ctx context.Context, eventQueue reactorcore.EventQueueHandle[Event, O]) {
	interval := c.cfg.PendingVertexTimeout
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := rlog.WithComponent("consensus")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eventQueue.Schedule(EvictSweepEvent{}, reactorcore.QueueControl); err != nil {
				logger.Error().Err(err).Msg("failed to schedule pending-vertex sweep")
			}
		}
	}
}

// Shutdown stops the background sweep goroutine.
func (c *Component[O]) Shutdown() {
	c.shutdownCancel()
}

// HandleEvent accepts a vertex outright if it has no unresolved
// dependencies, otherwise parks it in pending; an EvictSweepEvent runs
// EvictExpired against the wall clock.
func (c *Component[O]) HandleEvent(eb reactorcore.EffectBuilder[O], rng *rand.Rand, event Event) reactorcore.Effects[O] {
	switch ev := event.(type) {
	case AddVertexRequest:
		pending := len(ev.Vertex.Dependencies) > 0
		if pending {
			if ev.Vertex.ReceivedAt.IsZero() {
				ev.Vertex.ReceivedAt = time.Now()
			}
			c.pending[ev.Vertex.Hash] = ev.Vertex
		}
		if ev.Respond != nil {
			ev.Respond(AddVertexResult{Pending: pending})
		}
		return nil
	case EvictSweepEvent:
		if dropped := c.EvictExpired(time.Now()); dropped > 0 {
			rlog.WithComponent("consensus").Debug().Int("dropped", dropped).Msg("evicted expired pending vertices")
		}
		return nil
	default:
		return nil
	}
}

// PendingCount reports how many vertices are currently parked awaiting
// dependencies, for tests and diagnostics.
func (c *Component[O]) PendingCount() int {
	return len(c.pending)
}

// EvictExpired drops pending vertices older than the configured
// PendingVertexTimeout, as measured against now, and reports how many were
// dropped. Called from HandleEvent on every EvictSweepEvent, which the
// component's own background goroutine schedules once per
// PendingVertexTimeout (see sweepLoop); exported directly so tests can drive
// time forward without waiting on the ticker.
func (c *Component[O]) EvictExpired(now time.Time) int {
	dropped := 0
	for hash, vertex := range c.pending {
		if now.Sub(vertex.ReceivedAt) > c.cfg.PendingVertexTimeout {
			delete(c.pending, hash)
			dropped++
		}
	}
	return dropped
}
