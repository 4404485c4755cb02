// Package joiner is the second lifecycle stage: it reopens storage from
// the initializer's data directory, stands up the networking component,
// and dials every configured bootstrap peer. Once every dial has settled
// (succeeded or failed) the joiner reports itself stopped so the
// lifecycle driver can build the validator.
//
// manifest:
//
//	components: { storage: storage.Component, networking: networking.Component }
//	events:     { storage: StorageEvent, networking: NetworkEvent }
//	requests:   {}
//	announcements: {}
//
// The outcome of each bootstrap dial reaches the networking component as a
// networking.DialResultEvent inside a NetworkEvent.
package joiner

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/cuemby/ridgeback/internal/storage"
)

// Event is the joiner stage's local event vocabulary.
type Event interface {
	isJoinerEvent()
}

// StorageEvent routes a storage request to the storage component.
type StorageEvent struct {
	Inner storage.Event
}

func (StorageEvent) isJoinerEvent() {}

// NetworkEvent routes a networking event to the networking component.
type NetworkEvent struct {
	Inner networking.Event
}

func (NetworkEvent) isJoinerEvent() {}

// CarryOver is the state the joiner hands to the validator.
type CarryOver struct {
	Config   config.Config
	DataDir  string
	Identity *networking.Identity
	Chain    networking.ChainInfo
}

// Reactor is the joiner-stage reactor.
type Reactor struct {
	storageComp *storage.Component[Event]
	netComp     *networking.Component[Event]
	carryOver   CarryOver

	pendingDials int
	stopped      bool
	succeeded    bool
}

// New opens carry.DataDir's storage engine, binds the networking
// component against scheduler (the joiner's own private scheduler,
// supplied by the lifecycle driver), and returns effects that dial every
// address in carry.Config.KnownAddresses.
func New(carry CarryOver, scheduler *queue.Scheduler[reactorcore.QueueKind, Event]) (*Reactor, reactorcore.Effects[Event], error) {
	storageComp, _, err := storage.New[Event](carry.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("joiner: failed to reopen storage: %w", err)
	}

	netHandle := reactorcore.NewEventQueueHandle[networking.Event, Event](scheduler,
		func(e networking.Event) Event { return NetworkEvent{Inner: e} })

	bindAddr := carry.Config.BindAddress
	netComp, netEffects, err := networking.New[Event](bindAddr, carry.Identity, carry.Chain, carry.Config.MaximumNetMessageSize, netHandle)
	if err != nil {
		_ = storageComp.Close()
		return nil, nil, fmt.Errorf("joiner: failed to start networking: %w", err)
	}

	r := &Reactor{
		storageComp:  storageComp,
		netComp:      netComp,
		carryOver:    carry,
		pendingDials: len(carry.Config.KnownAddresses),
	}

	effects := append(reactorcore.Effects[Event]{}, netEffects...)
	for _, addr := range carry.Config.KnownAddresses {
		effects = append(effects, r.dialEffect(addr))
	}
	if r.pendingDials == 0 {
		r.stopped = true
		r.succeeded = true
	}

	return r, effects, nil
}

// dialEffect dials addr in the background and, regardless of outcome,
// reports a DialResultEvent to the networking component so a successful
// dial is tracked the same way an accepted connection would be.
func (r *Reactor) dialEffect(addr string) reactorcore.Effect[Event] {
	identity := r.carryOver.Identity
	chain := r.carryOver.Chain
	maxSize := r.carryOver.Config.MaximumNetMessageSize
	return func(ctx context.Context) []Event {
		conn, err := networking.Dial(addr, identity, chain, maxSize)
		if err != nil {
			rlog.WithComponent("joiner").Warn().Err(err).Str("addr", addr).Msg("failed to dial known address")
		}
		return []Event{NetworkEvent{Inner: networking.DialResultEvent{Addr: addr, Conn: conn, Err: err}}}
	}
}

// CarryOver returns the state this stage hands to the validator.
func (r *Reactor) CarryOver() CarryOver {
	return r.carryOver
}

// Shutdown tears down networking and storage so the validator stage can
// rebind the same addresses and data directory.
func (r *Reactor) Shutdown() {
	r.netComp.Shutdown()
	_ = r.storageComp.Close()
}

// DispatchEvent routes storage and networking events, and tracks dial
// settlement to decide when this stage is done.
func (r *Reactor) DispatchEvent(eb reactorcore.EffectBuilder[Event], rng *rand.Rand, event Event) reactorcore.Effects[Event] {
	switch ev := event.(type) {
	case StorageEvent:
		return r.storageComp.HandleEvent(eb, rng, ev.Inner)
	case NetworkEvent:
		effects := r.netComp.HandleEvent(eb, rng, ev.Inner)
		if _, ok := ev.Inner.(networking.DialResultEvent); ok {
			r.pendingDials--
			if r.pendingDials <= 0 {
				r.stopped = true
				r.succeeded = true
			}
		}
		return effects
	default:
		return nil
	}
}

// IsStopped reports whether every configured bootstrap dial has settled.
func (r *Reactor) IsStopped() bool { return r.stopped }

// StoppedSuccessfully reports whether the joiner completed cleanly. A
// stopped joiner is always successful: individual dial failures are
// logged but do not prevent progressing to the validator stage, since the
// node may still receive inbound connections from the peers it could not
// reach.
func (r *Reactor) StoppedSuccessfully() bool { return r.succeeded }
