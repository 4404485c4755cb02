package joiner

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/testutil"
)

func reserveAddr(t *testing.T) string {
	t.Helper()
	port, listener, err := testutil.ReserveLocalSocket()
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	return "127.0.0.1:" + strconv.Itoa(port)
}

func TestJoinerWithNoKnownAddressesStopsImmediately(t *testing.T) {
	identity, err := networking.GenerateIdentity()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.NetworkName = "ridgeback-test"
	cfg.BindAddress = reserveAddr(t)

	carry := CarryOver{
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

	assert.True(t, r.IsStopped())
	assert.True(t, r.StoppedSuccessfully())
}

func TestJoinerDialsKnownAddressesAndSettles(t *testing.T) {
	listenerIdentity, err := networking.GenerateIdentity()
	require.NoError(t, err)
	joinerIdentity, err := networking.GenerateIdentity()
	require.NoError(t, err)

	chain := networking.ChainInfo{NetworkName: "ridgeback-test"}

	listenerAddr := reserveAddr(t)
	listenerSched := queue.New[reactorcore.QueueKind, networking.Event](reactorcore.DefaultWeights())
	listenerHandle := reactorcore.NewEventQueueHandle[networking.Event, networking.Event](listenerSched, func(e networking.Event) networking.Event { return e })
	listenerComp, _, err := networking.New[networking.Event](listenerAddr, listenerIdentity, chain, networking.MaxMessageSize, listenerHandle)
	require.NoError(t, err)
	defer listenerComp.Shutdown()

	cfg := config.Default()
	cfg.NetworkName = "ridgeback-test"
	cfg.BindAddress = reserveAddr(t)
	cfg.KnownAddresses = []string{listenerAddr}

	carry := CarryOver{
		Config:   cfg,
		DataDir:  t.TempDir(),
		Identity: joinerIdentity,
		Chain:    chain,
	}

	sched := queue.New[reactorcore.QueueKind, Event](reactorcore.DefaultWeights())
	r, effects, err := New(carry, sched)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	defer r.Shutdown()

	assert.False(t, r.IsStopped())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	produced := effects[0](ctx)
	require.Len(t, produced, 1)

	eb := reactorcore.EffectBuilder[Event]{}
	r.DispatchEvent(eb, nil, produced[0])

	assert.True(t, r.IsStopped())
	assert.True(t, r.StoppedSuccessfully())
}
