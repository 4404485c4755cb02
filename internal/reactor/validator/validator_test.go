package validator

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rpcapi"
	"github.com/cuemby/ridgeback/internal/testutil"
)

func reserveAddr(t *testing.T) string {
	t.Helper()
	port, listener, err := testutil.ReserveLocalSocket()
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	return "127.0.0.1:" + strconv.Itoa(port)
}

func TestValidatorStartsAndAcceptsShutdown(t *testing.T) {
	identity, err := networking.GenerateIdentity()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.NetworkName = "ridgeback-test"
	cfg.BindAddress = reserveAddr(t)

	carry := CarryOverFrom{
		Config:   cfg,
		DataDir:  t.TempDir(),
		Identity: identity,
		Chain:    networking.ChainInfo{NetworkName: cfg.NetworkName},
	}

	sched := queue.New[reactorcore.QueueKind, Event](reactorcore.DefaultWeights())
	r, effects, err := New(carry, sched)
	require.NoError(t, err)
	require.Empty(t, effects)
	defer r.Shutdown()

	assert.False(t, r.IsStopped())
	r.RequestShutdown()
	assert.True(t, r.IsStopped())
	assert.True(t, r.StoppedSuccessfully())
}

func TestValidatorWithRPCAddressServesHealth(t *testing.T) {
	identity, err := networking.GenerateIdentity()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.NetworkName = "ridgeback-test"
	cfg.BindAddress = reserveAddr(t)
	cfg.RPCBindAddress = reserveAddr(t)

	carry := CarryOverFrom{
		Config:   cfg,
		DataDir:  t.TempDir(),
		Identity: identity,
		Chain:    networking.ChainInfo{NetworkName: cfg.NetworkName},
	}

	sched := queue.New[reactorcore.QueueKind, Event](reactorcore.DefaultWeights())
	r, _, err := New(carry, sched)
	require.NoError(t, err)
	defer r.Shutdown()

	assert.NotNil(t, r.rpcComp)

	resp, respond, _ := reactorcore.NewResponder[rpcapi.StatusResult]()
	r.DispatchEvent(reactorcore.EffectBuilder[Event]{}, nil, RPCEvent{Inner: rpcapi.StatusRequest{Respond: respond}})
	result, err := resp.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Serving)
}
