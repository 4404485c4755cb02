// Package rpcapi is the node's external gRPC surface: out of scope for
// consensus and execution (spec.md section 1), it is still given a real
// status/health service so the reactor has a component to route API
// requests to and operators have something to poll, grounded on the
// teacher's pkg/api health + server wiring.
package rpcapi

import (
	"context"
	"fmt"
	"math/rand"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/ridgeback/internal/networking"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
)

// ServiceName is the fully-qualified service name reported through the
// standard gRPC health checking protocol for this node's validator role.
const ServiceName = "ridgeback.Validator"

// StatusRequest asks the component for a point-in-time snapshot of what
// the health service is currently reporting.
type StatusRequest struct {
	Respond func(StatusResult)
}

// StatusResult reports the currently-set serving status.
type StatusResult struct {
	Serving bool
}

// Event is the rpcapi component's local event vocabulary.
type Event interface {
	isRPCAPIEvent()
}

func (StatusRequest) isRPCAPIEvent() {}

// Component wraps a grpc.Server exposing only the standard health
// checking service, authenticated with the node's own TLS identity so the
// same certificate model covers both peer networking and the API surface.
type Component[O any] struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// New binds bindAddress, starts serving the standard gRPC health service
// under identity's TLS credentials, and reports NOT_SERVING until told
// otherwise via SetServing.
func New[O any](bindAddress string, identity *networking.Identity) (*Component[O], reactorcore.Effects[O], error) {
	tlsConfig := identity.TLSConfig(nil)
	creds := credentials.NewTLS(tlsConfig)

	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("rpcapi: failed to listen on %s: %w", bindAddress, err)
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	grpcServer := grpc.NewServer(grpc.Creds(creds))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	comp := &Component[O]{
		grpcServer: grpcServer,
		health:     healthServer,
		listener:   listener,
	}

	go func() {
		logger := rlog.WithComponent("rpcapi")
		if err := grpcServer.Serve(listener); err != nil {
			logger.Debug().Err(err).Msg("grpc server stopped serving")
		}
	}()

	return comp, nil, nil
}

// SetServing flips the reported health status, called by the validator
// stage reactor once it has started this component.
func (c *Component[O]) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	c.health.SetServingStatus(ServiceName, status)
}

// Shutdown gracefully stops the gRPC server.
func (c *Component[O]) Shutdown() {
	c.grpcServer.GracefulStop()
}

// HandleEvent answers StatusRequest by checking the health server's
// current serving status.
func (c *Component[O]) HandleEvent(eb reactorcore.EffectBuilder[O], rng *rand.Rand, event Event) reactorcore.Effects[O] {
	req, ok := event.(StatusRequest)
	if !ok {
		return nil
	}
	if req.Respond != nil {
		resp, err := c.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		serving := err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
		req.Respond(StatusResult{Serving: serving})
	}
	return nil
}
