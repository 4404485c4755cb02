// Package contractruntime is a stub component standing in for the
// execution engine: it accepts ExecuteRequest events and reports a result,
// but performs no actual deploy execution (out of scope per spec.md
// section 1). It exists so the reactor has a real collaborator to route
// ExecuteRequest to, matching the original's execute_request.rs shape.
package contractruntime

import (
	"math/rand"

	"github.com/cuemby/ridgeback/internal/reactorcore"
)

// Deploy is the minimal payload the contract runtime consumes; it mirrors
// storage.Deploy's shape without importing storage, keeping the two
// components decoupled.
type Deploy struct {
	Hash    [32]byte
	Payload []byte
}

// ExecuteRequest is the request shape collaborators send to ask the
// contract runtime to execute a block's deploys.
type ExecuteRequest struct {
	ParentStateHash [32]byte
	BlockTime       int64
	Deploys         []Deploy
	ProtocolVersion [3]uint32
	Proposer        [32]byte
	Respond         func(ExecuteResult)
}

// TakeDeploys empties req.Deploys and returns what it held, the Go
// analogue of the original's std::mem::replace(&mut self.deploys, vec![]).
func (req *ExecuteRequest) TakeDeploys() []Deploy {
	taken := req.Deploys
	req.Deploys = nil
	return taken
}

// ExecuteResult is the outcome reported back to the caller. PostStateHash
// is a deterministic stand-in (not real execution) so downstream code has
// something to chain blocks on.
type ExecuteResult struct {
	PostStateHash [32]byte
	ExecutedCount int
	Err           error
}

// Event is the contract runtime component's local event vocabulary.
type Event interface {
	isContractRuntimeEvent()
}

func (ExecuteRequest) isContractRuntimeEvent() {}

// Component is the stub contract runtime. Real execution is out of scope;
// HandleEvent answers with a deterministic post-state hash derived from
// the parent hash and deploy count, so the rest of the reactor can still
// exercise a full block-execution round trip end to end.
type Component[O any] struct{}

// New returns a fresh stub component with no initial effects.
func New[O any]() (*Component[O], reactorcore.Effects[O]) {
	return &Component[O]{}, nil
}

// HandleEvent answers ExecuteRequest with a stub result.
func (c *Component[O]) HandleEvent(eb reactorcore.EffectBuilder[O], rng *rand.Rand, event Event) reactorcore.Effects[O] {
	req, ok := event.(ExecuteRequest)
	if !ok {
		return nil
	}
	deploys := req.TakeDeploys()
	result := ExecuteResult{
		PostStateHash: stubPostState(req.ParentStateHash, len(deploys)),
		ExecutedCount: len(deploys),
	}
	if req.Respond != nil {
		req.Respond(result)
	}
	return nil
}

// stubPostState derives a deterministic 32-byte value from the parent
// state hash and deploy count, standing in for real execution's resulting
// state root.
func stubPostState(parent [32]byte, count int) [32]byte {
	out := parent
	out[31] ^= byte(count)
	return out
}
