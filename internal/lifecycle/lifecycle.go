// Package lifecycle wraps the Initializer, Joiner, and Validator stage
// reactors behind a single outer reactor, implementing the state machine
// described by spec.md section 4.4:
//
//	NotStarted -> Initializing -> Joining -> Validating (terminal)
//
// Each stage keeps its own private scheduler; a forwarding goroutine
// drains that scheduler and re-pushes its events (coerced into the
// lifecycle-wide Event type) onto the outer scheduler the Driver actually
// pops from. This keeps stale events from a stage that has already ended
// from ever reaching dispatch: once a forwarder is canceled, nothing from
// that stage's scheduler is read again.
package lifecycle

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/metrics"
	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/reactor/initializer"
	"github.com/cuemby/ridgeback/internal/reactor/joiner"
	"github.com/cuemby/ridgeback/internal/reactor/validator"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/rs/zerolog"
)

// State is the outer lifecycle state machine's current stage.
type State int

const (
	NotStarted State = iota
	Initializing
	Joining
	Validating
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Initializing:
		return "initializing"
	case Joining:
		return "joining"
	case Validating:
		return "validating"
	default:
		return "unknown"
	}
}

// Event is the lifecycle-wide event sum: every event is tagged with the
// stage that produced it.
type Event interface {
	isLifecycleEvent()
}

// InitializerEvent carries an event destined for the initializer stage.
type InitializerEvent struct{ Inner initializer.Event }

func (InitializerEvent) isLifecycleEvent() {}

// JoinerEvent carries an event destined for the joiner stage.
type JoinerEvent struct{ Inner joiner.Event }

func (JoinerEvent) isLifecycleEvent() {}

// ValidatorEvent carries an event destined for the validator stage.
type ValidatorEvent struct{ Inner validator.Event }

func (ValidatorEvent) isLifecycleEvent() {}

// Reactor is the outer three-stage reactor. It satisfies
// reactorcore.Reactor[Event] so the generic dispatch/metrics machinery
// would apply to it directly; Driver below additionally owns the
// stage-private schedulers and forwarders that generic Driver has no
// notion of, which is why the lifecycle stage does not simply reuse
// reactorcore.Driver for its outer loop.
type Reactor struct {
	outerScheduler *queue.Scheduler[reactorcore.QueueKind, Event]

	state State

	initReactor  *initializer.Reactor
	joinReactor  *joiner.Reactor
	validReactor *validator.Reactor

	joinForwarderCancel  context.CancelFunc
	validForwarderCancel context.CancelFunc

	stopped   bool
	succeeded bool

	logger zerolog.Logger
}

func newReactor(cfg config.Config, dataDir string, outerScheduler *queue.Scheduler[reactorcore.QueueKind, Event]) (*Reactor, reactorcore.Effects[Event], error) {
	r := &Reactor{
		outerScheduler: outerScheduler,
		state:          NotStarted,
		logger:         rlog.WithComponent("lifecycle"),
	}

	initReactor, initEffects, err := initializer.New(cfg, dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("lifecycle: initializer stage failed: %w", err)
	}
	r.initReactor = initReactor
	r.state = Initializing

	effects := reactorcore.WrapEffects(func(e initializer.Event) Event { return InitializerEvent{Inner: e} }, initEffects)

	// The initializer stage performs all of its work synchronously inside
	// New and so is always already stopped here; advance immediately
	// rather than waiting for a dispatch that will never come.
	if r.initReactor.IsStopped() {
		joinEffects, err := r.transitionToJoiner()
		if err != nil {
			return nil, nil, err
		}
		effects = append(effects, joinEffects...)

		if r.joinReactor.IsStopped() {
			validEffects, err := r.transitionToValidator()
			if err != nil {
				return nil, nil, err
			}
			effects = append(effects, validEffects...)
		}
	}

	return r, effects, nil
}

// transitionToJoiner builds the joiner stage from the initializer's
// carry-over state, spawns its forwarder, and releases the initializer's
// storage handle. Per spec.md section 4.4 this only runs once the
// initializer reports stopped_successfully; a crashed initializer is
// fatal.
func (r *Reactor) transitionToJoiner() (reactorcore.Effects[Event], error) {
	if !r.initReactor.StoppedSuccessfully() {
		return nil, fmt.Errorf("lifecycle: initializer stage did not stop successfully")
	}
	carry := r.initReactor.CarryOver()
	if err := r.initReactor.Close(); err != nil {
		return nil, fmt.Errorf("lifecycle: failed to close initializer storage: %w", err)
	}

	joinSched := queue.New[reactorcore.QueueKind, joiner.Event](reactorcore.WeightsFromConfig(carry.Config.SchedulerQueueWeights))
	joinReactor, joinEffects, err := joiner.New(joiner.CarryOver{
		Config:   carry.Config,
		DataDir:  carry.DataDir,
		Identity: carry.Identity,
		Chain:    carry.Chain,
	}, joinSched)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: failed to start joiner stage: %w", err)
	}

	r.joinReactor = joinReactor
	r.state = Joining

	ctx, cancel := context.WithCancel(context.Background())
	r.joinForwarderCancel = cancel
	go forwardEvents(ctx, joinSched, r.outerScheduler, func(e joiner.Event) Event { return JoinerEvent{Inner: e} }, r.logger)

	r.logger.Info().Str("state", r.state.String()).Msg("lifecycle stage transition")
	return reactorcore.WrapEffects(func(e joiner.Event) Event { return JoinerEvent{Inner: e} }, joinEffects), nil
}

// transitionToValidator waits for the joiner to quiesce (here: an
// explicit Shutdown releasing its listener and storage handle, standing
// in for the original's blocking into_validator_config call), builds the
// validator from its carry-over state, and spawns its forwarder.
func (r *Reactor) transitionToValidator() (reactorcore.Effects[Event], error) {
	if !r.joinReactor.StoppedSuccessfully() {
		return nil, fmt.Errorf("lifecycle: joiner stage did not stop successfully")
	}
	carry := r.joinReactor.CarryOver()
	r.joinReactor.Shutdown()
	if r.joinForwarderCancel != nil {
		r.joinForwarderCancel()
	}

	validSched := queue.New[reactorcore.QueueKind, validator.Event](reactorcore.WeightsFromConfig(carry.Config.SchedulerQueueWeights))
	validReactor, validEffects, err := validator.New(validator.CarryOverFrom{
		Config:   carry.Config,
		DataDir:  carry.DataDir,
		Identity: carry.Identity,
		Chain:    carry.Chain,
	}, validSched)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: failed to start validator stage: %w", err)
	}

	r.validReactor = validReactor
	r.state = Validating

	ctx, cancel := context.WithCancel(context.Background())
	r.validForwarderCancel = cancel
	go forwardEvents(ctx, validSched, r.outerScheduler, func(e validator.Event) Event { return ValidatorEvent{Inner: e} }, r.logger)

	r.logger.Info().Str("state", r.state.String()).Msg("lifecycle stage transition")
	return reactorcore.WrapEffects(func(e validator.Event) Event { return ValidatorEvent{Inner: e} }, validEffects), nil
}

// forwardEvents drains from until ctx is canceled or its scheduler errors,
// pushing every popped item onto to under the same queue kind, coerced
// via wrap. This is the Go rendering of the original implementation's
// per-stage forwarding task.
func forwardEvents[I any](ctx context.Context, from *queue.Scheduler[reactorcore.QueueKind, I], to *queue.Scheduler[reactorcore.QueueKind, Event], wrap func(I) Event, logger zerolog.Logger) {
	for {
		item, kind, err := from.Pop(ctx)
		if err != nil {
			return
		}
		if err := to.Push(wrap(item), kind); err != nil {
			logger.Error().Err(err).Msg("failed to forward stage event to outer scheduler")
		}
	}
}

// DispatchEvent routes event to whichever stage it is tagged for,
// discarding it if that stage is not the current one, then advances the
// state machine if the dispatched-to stage just stopped.
func (r *Reactor) DispatchEvent(eb reactorcore.EffectBuilder[Event], rng *rand.Rand, event Event) reactorcore.Effects[Event] {
	switch ev := event.(type) {
	case InitializerEvent:
		if r.state != Initializing {
			r.logger.Warn().Str("state", r.state.String()).Msg("discarding stale initializer event")
			return nil
		}
		effects := r.initReactor.DispatchEvent(reactorcore.EffectBuilder[initializer.Event]{}, rng, ev.Inner)
		return reactorcore.WrapEffects(func(e initializer.Event) Event { return InitializerEvent{Inner: e} }, effects)

	case JoinerEvent:
		if r.state != Joining {
			r.logger.Warn().Str("state", r.state.String()).Msg("discarding stale joiner event")
			return nil
		}
		effects := r.joinReactor.DispatchEvent(reactorcore.EffectBuilder[joiner.Event]{}, rng, ev.Inner)
		wrapped := reactorcore.WrapEffects(func(e joiner.Event) Event { return JoinerEvent{Inner: e} }, effects)
		if r.joinReactor.IsStopped() {
			validEffects, err := r.transitionToValidator()
			if err != nil {
				r.logger.Error().Err(err).Msg("fatal: joiner to validator transition failed")
				r.stopped = true
				r.succeeded = false
				return wrapped
			}
			wrapped = append(wrapped, validEffects...)
		}
		return wrapped

	case ValidatorEvent:
		if r.state != Validating {
			r.logger.Warn().Str("state", r.state.String()).Msg("discarding stale validator event")
			return nil
		}
		effects := r.validReactor.DispatchEvent(reactorcore.EffectBuilder[validator.Event]{}, rng, ev.Inner)
		if r.validReactor.IsStopped() {
			r.stopped = true
			r.succeeded = r.validReactor.StoppedSuccessfully()
		}
		return reactorcore.WrapEffects(func(e validator.Event) Event { return ValidatorEvent{Inner: e} }, effects)

	default:
		return nil
	}
}

// IsStopped reports whether the validator stage has requested shutdown.
func (r *Reactor) IsStopped() bool { return r.stopped }

// StoppedSuccessfully reports whether the whole lifecycle ended cleanly.
func (r *Reactor) StoppedSuccessfully() bool { return r.succeeded }

// State reports the current lifecycle stage, for status reporting.
func (r *Reactor) State() State { return r.state }

// RequestShutdown asks the currently-running validator stage to stop. It
// is a no-op before the lifecycle has reached Validating.
func (r *Reactor) RequestShutdown() {
	if r.state == Validating && r.validReactor != nil {
		r.validReactor.RequestShutdown()
		r.stopped = true
		r.succeeded = true
	}
}

// Driver owns the outer scheduler and runs the lifecycle reactor's
// dispatch loop. It mirrors reactorcore.Driver's crank loop but must be a
// standalone type rather than a reactorcore.Driver[Event] instance: it
// alone knows about the per-stage private schedulers and forwarders that
// transitionToJoiner/transitionToValidator create.
type Driver struct {
	scheduler *queue.Scheduler[reactorcore.QueueKind, Event]
	reactor   *Reactor
	eb        reactorcore.EffectBuilder[Event]
	rng       *rand.Rand

	initialEffects reactorcore.Effects[Event]

	wg sync.WaitGroup
}

// NewDriver constructs the outer scheduler, builds the three-stage
// reactor (cascading through any stage that completes synchronously with
// no known peers to dial), and returns a Driver ready for Run.
func NewDriver(cfg config.Config, dataDir string, seed int64) (*Driver, error) {
	sched := queue.New[reactorcore.QueueKind, Event](reactorcore.WeightsFromConfig(cfg.SchedulerQueueWeights))
	reactor, effects, err := newReactor(cfg, dataDir, sched)
	if err != nil {
		return nil, err
	}

	handle := reactorcore.NewEventQueueHandle[Event, Event](sched, func(e Event) Event { return e })
	return &Driver{
		scheduler:      sched,
		reactor:        reactor,
		eb:             reactorcore.NewEffectBuilder(handle),
		rng:            rand.New(rand.NewSource(seed)),
		initialEffects: effects,
	}, nil
}

// State reports the lifecycle's current stage.
func (d *Driver) State() State { return d.reactor.State() }

// RequestShutdown asks the validator stage to stop at the next dispatch.
func (d *Driver) RequestShutdown() { d.reactor.RequestShutdown() }

// Run drives the lifecycle reactor until it stops or ctx is canceled.
func (d *Driver) Run(ctx context.Context) (bool, error) {
	logger := rlog.WithComponent("lifecycle")

	d.runEffects(ctx, d.initialEffects, logger)
	d.initialEffects = nil

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
		timer.ObserveDuration(metrics.DispatchLatency.WithLabelValues("lifecycle"))

		d.runEffects(ctx, effects, logger)
	}
	d.wg.Wait()
	return d.reactor.StoppedSuccessfully(), nil
}

func (d *Driver) runEffects(ctx context.Context, effects reactorcore.Effects[Event], logger zerolog.Logger) {
	for _, effect := range effects {
		effect := effect
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			events := effect(ctx)
			for _, ev := range events {
				if err := d.scheduler.Push(ev, reactorcore.QueueRegular); err != nil {
					logger.Error().Err(err).Msg("failed to reinject lifecycle effect-produced event")
				}
			}
		}()
	}
}
