package networking

import (
	"crypto/sha256"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/queue"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/testutil"
)

func digest(b byte) [32]byte {
	return sha256.Sum256([]byte{b})
}

func TestCompatibleChainspecDigests(t *testing.T) {
	h1 := digest(1)
	h2 := digest(2)

	ours := ChainInfo{ChainspecDigest: &h1, Supports: map[[32]byte]struct{}{}}

	theirsSupportsOurs := ChainInfo{ChainspecDigest: &h2, Supports: map[[32]byte]struct{}{h1: {}}}
	assert.True(t, Compatible(ours, theirsSupportsOurs))

	theirsSupportsNothing := ChainInfo{ChainspecDigest: &h2, Supports: map[[32]byte]struct{}{}}
	assert.False(t, Compatible(ours, theirsSupportsNothing))

	theirsNoDigest := ChainInfo{ChainspecDigest: nil}
	assert.True(t, Compatible(ours, theirsNoDigest))

	theirsSameDigest := ChainInfo{ChainspecDigest: &h1, Supports: map[[32]byte]struct{}{}}
	assert.True(t, Compatible(ours, theirsSameDigest))
}

func TestHandshakeRoundTrip(t *testing.T) {
	d1, d2 := digest(1), digest(2)
	original := ChainInfo{
		NetworkName:     "ridgeback-test",
		PublicAddr:      "127.0.0.1:34000",
		ProtocolVersion: [3]uint32{1, 2, 3},
		ChainspecDigest: &d1,
		Supports:        map[[32]byte]struct{}{d2: {}},
	}

	hs := original.ToHandshake()
	roundTripped := ChainInfoFromHandshake(hs)

	assert.Equal(t, original.NetworkName, roundTripped.NetworkName)
	assert.Equal(t, original.PublicAddr, roundTripped.PublicAddr)
	assert.Equal(t, original.ProtocolVersion, roundTripped.ProtocolVersion)
	assert.Equal(t, *original.ChainspecDigest, *roundTripped.ChainspecDigest)
	assert.Equal(t, original.Supports, roundTripped.Supports)
}

// identityCoerce is the identity coercion used when the reactor-wide event
// type in these tests is Event itself.
func identityCoerce(e Event) Event { return e }

func newTestHandle(t *testing.T) reactorcore.EventQueueHandle[Event, Event] {
	t.Helper()
	sched := queue.New[reactorcore.QueueKind, Event](reactorcore.DefaultWeights())
	return reactorcore.NewEventQueueHandle[Event, Event](sched, identityCoerce)
}

func reserveAddr(t *testing.T) string {
	t.Helper()
	port, listener, err := testutil.ReserveLocalSocket()
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	return "127.0.0.1:" + strconv.Itoa(port)
}

func TestDialEstablishesConnection(t *testing.T) {
	listenerIdentity, err := GenerateIdentity()
	require.NoError(t, err)
	dialerIdentity, err := GenerateIdentity()
	require.NoError(t, err)

	listenerChain := ChainInfo{NetworkName: "ridgeback-test"}
	dialerChain := ChainInfo{NetworkName: "ridgeback-test"}

	bindAddr := reserveAddr(t)
	comp, effects, err := New[Event](bindAddr, listenerIdentity, listenerChain, MaxMessageSize, newTestHandle(t))
	require.NoError(t, err)
	require.Empty(t, effects)
	defer comp.Shutdown()

	conn, err := Dial(bindAddr, dialerIdentity, dialerChain, MaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, listenerIdentity.NodeId, conn.RemoteID)
	assert.Equal(t, dialerIdentity.NodeId, conn.LocalID)
	assert.Equal(t, RoleDialer, conn.Role)
}

func TestDialRejectsMismatchedNetworkName(t *testing.T) {
	listenerIdentity, err := GenerateIdentity()
	require.NoError(t, err)
	dialerIdentity, err := GenerateIdentity()
	require.NoError(t, err)

	bindAddr := reserveAddr(t)
	comp, _, err := New[Event](bindAddr, listenerIdentity, ChainInfo{NetworkName: "network-a"}, MaxMessageSize, newTestHandle(t))
	require.NoError(t, err)
	defer comp.Shutdown()

	_, err = Dial(bindAddr, dialerIdentity, ChainInfo{NetworkName: "network-b"}, MaxMessageSize)
	require.Error(t, err)
	var connectionErr *ConnectionError
	require.ErrorAs(t, err, &connectionErr)
	assert.Equal(t, ErrWrongNetwork, connectionErr.Kind)
}

func TestLoopbackDialRejected(t *testing.T) {
	identity, err := GenerateIdentity()
	require.NoError(t, err)
	chain := ChainInfo{NetworkName: "ridgeback-test"}

	bindAddr := reserveAddr(t)
	comp, _, err := New[Event](bindAddr, identity, chain, MaxMessageSize, newTestHandle(t))
	require.NoError(t, err)
	defer comp.Shutdown()

	_, err = Dial(bindAddr, identity, chain, MaxMessageSize)
	require.Error(t, err)
}
