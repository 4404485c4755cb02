package rpcapi

import (
	"context"
	"crypto/tls"
	"strconv"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/testutil"
)

func TestComponentReportsServingStatusTransitions(t *testing.T) {
	identity, err := networking.GenerateIdentity()
	require.NoError(t, err)

	port, listener, err := testutil.ReserveLocalSocket()
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	addr := "127.0.0.1:" + strconv.Itoa(port)

	comp, effects, err := New[Event](addr, identity)
	require.NoError(t, err)
	require.Empty(t, effects)
	defer comp.Shutdown()

	// The server requires a client certificate, as peer networking does.
	clientIdentity, err := networking.GenerateIdentity()
	require.NoError(t, err)
	clientTLS := &tls.Config{InsecureSkipVerify: true, Certificates: []tls.Certificate{clientIdentity.TLSCert}}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(clientTLS)))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	comp.SetServing(true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
