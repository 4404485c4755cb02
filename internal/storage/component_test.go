package storage

import (
	"context"
	"crypto/sha256"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/reactorcore"
)

func TestComponentPutAndGetBlockRoundTrip(t *testing.T) {
	comp, effects, err := New[Event](t.TempDir())
	require.NoError(t, err)
	require.Empty(t, effects)
	defer comp.Close()

	hash := sha256.Sum256([]byte("block-1"))
	block := Block{Hash: hash, Height: 3}

	putResp, putRespond, _ := reactorcore.NewResponder[error]()
	comp.HandleEvent(reactorcore.EffectBuilder[Event]{}, rand.New(rand.NewSource(1)),
		PutBlockRequest{Block: block, Respond: putRespond})
	putErr, err := putResp.Await(context.Background())
	require.NoError(t, err)
	require.NoError(t, putErr)

	getResp, getRespond, _ := reactorcore.NewResponder[GetBlockResult]()
	comp.HandleEvent(reactorcore.EffectBuilder[Event]{}, rand.New(rand.NewSource(1)),
		GetBlockRequest{Hash: hash, Respond: getRespond})
	result, err := getResp.Await(context.Background())
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.True(t, result.Found)
	assert.Equal(t, block, result.Block)
}

func TestComponentGetDeployNotFound(t *testing.T) {
	comp, _, err := New[Event](t.TempDir())
	require.NoError(t, err)
	defer comp.Close()

	resp, respond, _ := reactorcore.NewResponder[GetDeployResult]()
	comp.HandleEvent(reactorcore.EffectBuilder[Event]{}, nil,
		GetDeployRequest{Hash: sha256.Sum256([]byte("missing")), Respond: respond})
	result, err := resp.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Found)
}
