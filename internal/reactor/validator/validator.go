// Package validator is the terminal lifecycle stage: the fully assembled
// reactor that runs consensus, contract execution, peer networking, and
// the external API surface over the storage engine carried over from the
// joiner.
//
// manifest:
//
//	components: { storage, networking, consensus, contractRuntime, rpcAPI }
//	events:     { storage: StorageEvent, networking: NetworkEvent,
//	              consensus: ConsensusEvent, contractRuntime: ContractRuntimeEvent,
//	              rpcAPI: RPCEvent }
//	requests:   {}
//	announcements: {}
package validator

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/consensus"
	"github.com/cuemby/ridgeback/internal/contractruntime"
	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/cuemby/ridgeback/internal/rpcapi"
	"github.com/cuemby/ridgeback/internal/storage"
)

// Event is the validator stage's local event vocabulary.
type Event interface {
	isValidatorEvent()
}

// StorageEvent routes a storage request to the storage component.
type StorageEvent struct{ Inner storage.Event }

func (StorageEvent) isValidatorEvent() {}

// NetworkEvent routes a networking event to the networking component.
type NetworkEvent struct{ Inner networking.Event }

func (NetworkEvent) isValidatorEvent() {}

// ConsensusEvent routes a consensus request to the consensus component.
type ConsensusEvent struct{ Inner consensus.Event }

func (ConsensusEvent) isValidatorEvent() {}

// ContractRuntimeEvent routes an execution request to the contract
// runtime component.
type ContractRuntimeEvent struct{ Inner contractruntime.Event }

func (ContractRuntimeEvent) isValidatorEvent() {}

// RPCEvent routes an API status request to the rpcapi component.
type RPCEvent struct{ Inner rpcapi.Event }

func (RPCEvent) isValidatorEvent() {}

// CarryOverFrom mirrors the joiner's carry-over shape without importing
// the joiner package, keeping the three stages free of cross-imports
// among themselves; the lifecycle package alone knows about all three.
type CarryOverFrom struct {
	Config   config.Config
	DataDir  string
	Identity *networking.Identity
	Chain    networking.ChainInfo
}

// Reactor is the validator-stage reactor. It is terminal: IsStopped only
// reports true once an explicit shutdown has been requested.
type Reactor struct {
	storageComp  *storage.Component[Event]
	netComp      *networking.Component[Event]
	consensusComp *consensus.Component[Event]
	runtimeComp  *contractruntime.Component[Event]
	rpcComp      *rpcapi.Component[Event]

	stopped   bool
	succeeded bool
}

// New reopens storage from carry.DataDir, rebinds networking on
// carry.Config.BindAddress and the consensus/contract-runtime/rpcapi
// components, wiring networking through scheduler (the validator's own
// private scheduler, supplied by the lifecycle driver).
func New(carry CarryOverFrom, scheduler *queue.Scheduler[reactorcore.QueueKind, Event]) (*Reactor, reactorcore.Effects[Event], error) {
	storageComp, _, err := storage.New[Event](carry.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("validator: failed to reopen storage: %w", err)
	}

	netHandle := reactorcore.NewEventQueueHandle[networking.Event, Event](scheduler,
		func(e networking.Event) Event { return NetworkEvent{Inner: e} })
	netComp, netEffects, err := networking.New[Event](carry.Config.BindAddress, carry.Identity, carry.Chain, carry.Config.MaximumNetMessageSize, netHandle)
	if err != nil {
		_ = storageComp.Close()
		return nil, nil, fmt.Errorf("validator: failed to start networking: %w", err)
	}

	consensusHandle := reactorcore.NewEventQueueHandle[consensus.Event, Event](scheduler,
		func(e consensus.Event) Event { return ConsensusEvent{Inner: e} })
	consensusComp, _ := consensus.New[Event](carry.Config.Consensus, consensusHandle)
	runtimeComp, _ := contractruntime.New[Event]()

	var rpcComp *rpcapi.Component[Event]
	if carry.Config.RPCBindAddress != "" {
		rpcComp, _, err = rpcapi.New[Event](carry.Config.RPCBindAddress, carry.Identity)
		if err != nil {
			netComp.Shutdown()
			_ = storageComp.Close()
			return nil, nil, fmt.Errorf("validator: failed to start rpcapi: %w", err)
		}
		rpcComp.SetServing(true)
	}

	r := &Reactor{
		storageComp:   storageComp,
		netComp:       netComp,
		consensusComp: consensusComp,
		runtimeComp:   runtimeComp,
		rpcComp:       rpcComp,
	}

	effects := append(reactorcore.Effects[Event]{}, netEffects...)
	for _, addr := range carry.Config.KnownAddresses {
		effects = append(effects, r.dialEffect(addr, carry.Identity, carry.Chain, carry.Config.MaximumNetMessageSize))
	}

	return r, effects, nil
}

func (r *Reactor) dialEffect(addr string, identity *networking.Identity, chain networking.ChainInfo, maxSize uint32) reactorcore.Effect[Event] {
	return func(ctx context.Context) []Event {
		conn, err := networking.Dial(addr, identity, chain, maxSize)
		if err != nil {
			rlog.WithComponent("validator").Warn().Err(err).Str("addr", addr).Msg("failed to dial known address")
		}
		return []Event{NetworkEvent{Inner: networking.DialResultEvent{Addr: addr, Conn: conn, Err: err}}}
	}
}

// RequestShutdown marks this reactor stopped so the outer driver loop
// exits after the current dispatch.
func (r *Reactor) RequestShutdown() {
	r.stopped = true
	r.succeeded = true
}

// Shutdown releases every owned resource: networking listener, rpc
// server, and storage handle.
func (r *Reactor) Shutdown() {
	r.netComp.Shutdown()
	r.consensusComp.Shutdown()
	if r.rpcComp != nil {
		r.rpcComp.Shutdown()
	}
	_ = r.storageComp.Close()
}

// DispatchEvent routes each event to its owning component.
func (r *Reactor) DispatchEvent(eb reactorcore.EffectBuilder[Event], rng *rand.Rand, event Event) reactorcore.Effects[Event] {
	switch ev := event.(type) {
	case StorageEvent:
		return r.storageComp.HandleEvent(eb, rng, ev.Inner)
	case NetworkEvent:
		return r.netComp.HandleEvent(eb, rng, ev.Inner)
	case ConsensusEvent:
		return r.consensusComp.HandleEvent(eb, rng, ev.Inner)
	case ContractRuntimeEvent:
		return r.runtimeComp.HandleEvent(eb, rng, ev.Inner)
	case RPCEvent:
		if r.rpcComp == nil {
			return nil
		}
		return r.rpcComp.HandleEvent(eb, rng, ev.Inner)
	default:
		return nil
	}
}

// IsStopped reports whether shutdown has been requested.
func (r *Reactor) IsStopped() bool { return r.stopped }

// StoppedSuccessfully reports whether this stage (and the lifecycle as a
// whole) ended cleanly.
func (r *Reactor) StoppedSuccessfully() bool { return r.succeeded }
