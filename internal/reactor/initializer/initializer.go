// Package initializer is the first of the three lifecycle stages: it opens
// the storage engine and confirms the node's identity and chain
// configuration are usable, then reports itself stopped so the lifecycle
// driver can hand off to the joiner.
//
// manifest:
//
//	components: { storage: storage.Component }
//	events:     { storage: StorageEvent }
//	requests:   {}
//	announcements: {}
package initializer

import (
	"fmt"
	"math/rand"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/storage"
)

// Event is the initializer stage's local event vocabulary.
type Event interface {
	isInitializerEvent()
}

// StorageEvent routes a storage request to the storage component.
type StorageEvent struct {
	Inner storage.Event
}

func (StorageEvent) isInitializerEvent() {}

// CarryOver is the state the initializer hands to the joiner once it
// stops successfully: the validated configuration, the node's networking
// identity, and the chain info computed from it.
type CarryOver struct {
	Config   config.Config
	DataDir  string
	Identity *networking.Identity
	Chain    networking.ChainInfo
}

// Reactor is the initializer-stage reactor. All of its work (opening
// storage, deriving or loading the node identity) happens synchronously in
// New, so it reports itself stopped immediately after construction —
// there is nothing left to dispatch before the lifecycle driver should
// move on to the joiner stage.
type Reactor struct {
	storageComp *storage.Component[Event]
	carryOver   CarryOver
	succeeded   bool
}

// New opens storage at dataDir, loads or generates the node's TLS
// identity, and builds the chain info the handshake will advertise. It
// returns a reactor that is already stopped: IsStopped is true as soon as
// New returns.
func New(cfg config.Config, dataDir string) (*Reactor, reactorcore.Effects[Event], error) {
	if cfg.NetworkName == "" {
		return nil, nil, fmt.Errorf("initializer: network_name is required")
	}

	storageComp, effects, err := storage.New[Event](dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("initializer: failed to open storage: %w", err)
	}

	identity, err := networking.LoadOrCreateIdentity(cfg.SecretKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("initializer: failed to establish node identity: %w", err)
	}

	chain := networking.ChainInfo{
		NetworkName:     cfg.NetworkName,
		PublicAddr:      cfg.PublicAddress,
		ProtocolVersion: [3]uint32{1, 0, 0},
	}

	r := &Reactor{
		storageComp: storageComp,
		succeeded:   true,
		carryOver: CarryOver{
			Config:   cfg,
			DataDir:  dataDir,
			Identity: identity,
			Chain:    chain,
		},
	}
	return r, effects, nil
}

// CarryOver returns the state this stage hands to the joiner. Only
// meaningful once IsStopped/StoppedSuccessfully report true.
func (r *Reactor) CarryOver() CarryOver {
	return r.carryOver
}

// Close releases the storage engine. The lifecycle driver calls this
// before building the joiner, which reopens the same data directory.
func (r *Reactor) Close() error {
	return r.storageComp.Close()
}

// DispatchEvent routes storage requests to the storage component. There
// are no other event producers at this stage.
func (r *Reactor) DispatchEvent(eb reactorcore.EffectBuilder[Event], rng *rand.Rand, event Event) reactorcore.Effects[Event] {
	switch ev := event.(type) {
	case StorageEvent:
		return r.storageComp.HandleEvent(eb, rng, ev.Inner)
	default:
		return nil
	}
}

// IsStopped is always true: every stage task completes synchronously
// inside New.
func (r *Reactor) IsStopped() bool { return true }

// StoppedSuccessfully reports whether initialization completed cleanly.
func (r *Reactor) StoppedSuccessfully() bool { return r.succeeded }
