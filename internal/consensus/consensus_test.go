package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/reactorcore"
)

func TestVertexWithoutDependenciesAcceptedImmediately(t *testing.T) {
	comp, effects := New[Event](config.DefaultConsensusConfig(), reactorcore.EventQueueHandle[Event, Event]{})
	t.Cleanup(comp.Shutdown)
	require.Empty(t, effects)

	resp, respond, _ := reactorcore.NewResponder[AddVertexResult]()
	comp.HandleEvent(reactorcore.EffectBuilder[Event]{}, nil, AddVertexRequest{
		Vertex:  Vertex{Hash: [32]byte{1}},
		Respond: respond,
	})

	result, err := resp.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, 0, comp.PendingCount())
}

func TestVertexWithDependenciesIsParkedPending(t *testing.T) {
	comp, _ := New[Event](config.DefaultConsensusConfig(), reactorcore.EventQueueHandle[Event, Event]{})
	t.Cleanup(comp.Shutdown)

	resp, respond, _ := reactorcore.NewResponder[AddVertexResult]()
	comp.HandleEvent(reactorcore.EffectBuilder[Event]{}, nil, AddVertexRequest{
		Vertex:  Vertex{Hash: [32]byte{2}, Dependencies: [][32]byte{{9}}},
		Respond: respond,
	})

	result, err := resp.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, 1, comp.PendingCount())
}

func TestEvictExpiredDropsOldVertices(t *testing.T) {
	cfg := config.ConsensusConfig{PendingVertexTimeout: time.Millisecond}
	comp, _ := New[Event](cfg, reactorcore.EventQueueHandle[Event, Event]{})
	t.Cleanup(comp.Shutdown)

	_, respond, _ := reactorcore.NewResponder[AddVertexResult]()
	old := time.Now().Add(-time.Hour)
	comp.HandleEvent(reactorcore.EffectBuilder[Event]{}, nil, AddVertexRequest{
		Vertex:  Vertex{Hash: [32]byte{3}, Dependencies: [][32]byte{{9}}, ReceivedAt: old},
		Respond: respond,
	})
	require.Equal(t, 1, comp.PendingCount())

	dropped := comp.EvictExpired(time.Now())
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, comp.PendingCount())
}
