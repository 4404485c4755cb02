package storage

import (
	"math/rand"

	"github.com/cuemby/ridgeback/internal/reactorcore"
)

// Event is the storage component's local event vocabulary: exactly the
// typed requests spec section 6 calls for (put_block, get_block,
// put_deploy, get_deploy). Each request carries the Respond half of a
// reactorcore.Responder; the caller keeps the Responder itself to Await.
type Event interface {
	isStorageEvent()
}

// PutBlockRequest asks the storage component to persist a block.
type PutBlockRequest struct {
	Block   Block
	Respond func(error)
}

func (PutBlockRequest) isStorageEvent() {}

// GetBlockRequest asks for a previously persisted block.
type GetBlockRequest struct {
	Hash    [32]byte
	Respond func(GetBlockResult)
}

func (GetBlockRequest) isStorageEvent() {}

// GetBlockResult is the response payload for GetBlockRequest.
type GetBlockResult struct {
	Block Block
	Found bool
	Err   error
}

// PutDeployRequest asks the storage component to persist a deploy.
type PutDeployRequest struct {
	Deploy  Deploy
	Respond func(error)
}

func (PutDeployRequest) isStorageEvent() {}

// GetDeployRequest asks for a previously persisted deploy.
type GetDeployRequest struct {
	Hash    [32]byte
	Respond func(GetDeployResult)
}

func (GetDeployRequest) isStorageEvent() {}

// GetDeployResult is the response payload for GetDeployRequest.
type GetDeployResult struct {
	Deploy Deploy
	Found  bool
	Err    error
}

// Component wraps Store as a reactor component. Every operation is
// synchronous and fast (bbolt transactions on local disk), so HandleEvent
// answers each request's Respond closure directly rather than deferring to
// an Effect — there is nothing to await asynchronously.
type Component[O any] struct {
	store *Store
}

// New opens the store at dataDir and returns the component with no initial
// effects.
func New[O any](dataDir string) (*Component[O], reactorcore.Effects[O], error) {
	store, err := Open(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return &Component[O]{store: store}, nil, nil
}

// Close closes the underlying store.
func (c *Component[O]) Close() error {
	return c.store.Close()
}

// HandleEvent answers each typed storage request against the underlying
// bbolt store. No follow-up events are produced: the Respond call itself
// resumes whichever effect is awaiting the matching Responder.
func (c *Component[O]) HandleEvent(eb reactorcore.EffectBuilder[O], rng *rand.Rand, event Event) reactorcore.Effects[O] {
	switch ev := event.(type) {
	case PutBlockRequest:
		err := c.store.PutBlock(ev.Block)
		if ev.Respond != nil {
			ev.Respond(err)
		}
	case GetBlockRequest:
		block, found, err := c.store.GetBlock(ev.Hash)
		if ev.Respond != nil {
			ev.Respond(GetBlockResult{Block: block, Found: found, Err: err})
		}
	case PutDeployRequest:
		err := c.store.PutDeploy(ev.Deploy)
		if ev.Respond != nil {
			ev.Respond(err)
		}
	case GetDeployRequest:
		deploy, found, err := c.store.GetDeploy(ev.Hash)
		if ev.Respond != nil {
			ev.Respond(GetDeployResult{Deploy: deploy, Found: found, Err: err})
		}
	}
	return nil
}
