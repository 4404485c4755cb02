package reactorcore

import (
	"context"
	"math/rand"
	"sync"

	"github.com/cuemby/ridgeback/internal/metrics"
	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/rs/zerolog"
)

// Reactor is the contract satisfied by each of the three stage reactors
// (initializer, joiner, validator). DispatchEvent routes a reactor-wide
// event to the owning component(s) and returns their Effects, which are
// already in the reactor-wide type because each component is instantiated
// with it. IsStopped reports whether the reactor has finished its work
// (for the validator stage: whether shutdown was requested), and
// StoppedSuccessfully distinguishes a clean stop from a crash once
// IsStopped is true.
type Reactor[O any] interface {
	DispatchEvent(eb EffectBuilder[O], rng *rand.Rand, event O) Effects[O]
	IsStopped() bool
	StoppedSuccessfully() bool
}

// Driver owns the scheduler and rng for a single reactor instance and runs
// its dispatch loop: pop an event, hand it to the reactor, spawn every
// returned effect, and feed whatever events those effects produce back into
// the scheduler. This is the generalized replacement for the original
// implementation's hand-rolled `reactor!` macro crank loop.
type Driver[O any] struct {
	name      string
	scheduler *queue.Scheduler[QueueKind, O]
	reactor   Reactor[O]
	eb        EffectBuilder[O]
	rng       *rand.Rand

	wg sync.WaitGroup
}

// NewDriver constructs a driver for reactor, backed by a scheduler built
// from weights. seed seeds the component-visible rng deterministically,
// which test code relies on; production callers should derive it from a
// crypto-random source once at startup.
func NewDriver[O any](name string, weights []queue.Weight[QueueKind], reactor Reactor[O], seed int64) *Driver[O] {
	sched := queue.New[QueueKind, O](weights)
	handle := NewEventQueueHandle[O, O](sched, func(o O) O { return o })
	return &Driver[O]{
		name:      name,
		scheduler: sched,
		reactor:   reactor,
		eb:        NewEffectBuilder[O](handle),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// EffectBuilder returns the driver's effect builder, for wiring into
// component constructors before Run starts.
func (d *Driver[O]) EffectBuilder() EffectBuilder[O] { return d.eb }

// Scheduler exposes the underlying scheduler so callers can push the
// initial seed events before Run starts, and so tests can inspect depth.
func (d *Driver[O]) Scheduler() *queue.Scheduler[QueueKind, O] { return d.scheduler }

// Schedule is a convenience wrapper around the driver's own scheduler,
// equivalent to Scheduler().Push.
func (d *Driver[O]) Schedule(event O, kind QueueKind) error {
	return d.scheduler.Push(event, kind)
}

// Run drives the reactor until IsStopped reports true or ctx is canceled.
// It returns whether the reactor stopped successfully (only meaningful
// once IsStopped is true) and any context error.
func (d *Driver[O]) Run(ctx context.Context) (bool, error) {
	logger := rlog.WithComponent(d.name)
	for !d.reactor.IsStopped() {
		event, kind, err := d.scheduler.Pop(ctx)
		if err != nil {
			d.wg.Wait()
			return false, err
		}
		metrics.EventsPopped.WithLabelValues(string(kind)).Inc()
		metrics.QueueDepth.WithLabelValues(string(kind)).Set(float64(d.scheduler.Counts()[kind]))

		timer := metrics.NewTimer()
		effects := d.reactor.DispatchEvent(d.eb, d.rng, event)
		timer.ObserveDuration(metrics.DispatchLatency.WithLabelValues(d.name))

		d.runEffects(ctx, effects, logger)
	}
	d.wg.Wait()
	return d.reactor.StoppedSuccessfully(), nil
}

// runEffects spawns each effect in its own goroutine and re-schedules
// whatever events it produces onto QueueRegular. Effects that already
// scheduled their own follow-ups via EffectBuilder (e.g. MakeRequest)
// return nil and contribute nothing here.
func (d *Driver[O]) runEffects(ctx context.Context, effects Effects[O], logger zerolog.Logger) {
	for _, effect := range effects {
		effect := effect
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			events := effect(ctx)
			for _, ev := range events {
				if err := d.scheduler.Push(ev, QueueRegular); err != nil {
					logger.Error().Err(err).Msg("failed to reinject effect-produced event")
				}
			}
		}()
	}
}
