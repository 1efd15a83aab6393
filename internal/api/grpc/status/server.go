package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oshokin/uberwacher/internal/logger"
)

// Health service names.
const (
	// ServiceOverall is the empty service name probes query by default.
	ServiceOverall = ""
	// ServiceSensor reports whether the sensor input is open.
	ServiceSensor = "uberwacher.sensor"
	// ServiceGateway reports whether chat updates are being received.
	ServiceGateway = "uberwacher.gateway"
)

// DefaultRefreshInterval is how often component probes are re-evaluated.
const DefaultRefreshInterval = 5 * time.Second

// Probe reports whether a component is healthy.
type Probe func() bool

// Server publishes component health over gRPC.
type Server struct {
	// health is the standard health service implementation.
	health *health.Server
	// probes maps service names to their probe.
	probes map[string]Probe
	// refresh is the probe evaluation interval.
	refresh time.Duration
}

// NewServer creates a server reporting the given probes.
// The overall service is SERVING only while every probe passes.
func NewServer(probes map[string]Probe) *Server {
	s := &Server{
		health:  health.NewServer(),
		probes:  probes,
		refresh: DefaultRefreshInterval,
	}

	s.evaluate()

	return s
}

// Serve listens on address and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, address string) error {
	ctx = logger.WithName(ctx, "status-server")

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.serve(ctx, lis)
}

// serve runs the gRPC server on lis until ctx is cancelled.
func (s *Server) serve(ctx context.Context, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)

	logger.InfoKV(ctx, "Status server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes so Serve returns
	// only once the server has fully stopped.
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				grpcServer.GracefulStop()
				close(done)

				return
			case <-ticker.C:
				s.evaluate()
			}
		}
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		cancel()
		<-done

		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Status server stopped")

	return nil
}

// evaluate runs every probe and publishes the results.
func (s *Server) evaluate() {
	overall := healthpb.HealthCheckResponse_SERVING

	for name, probe := range s.probes {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if probe != nil && probe() {
			status = healthpb.HealthCheckResponse_SERVING
		} else {
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}

		s.health.SetServingStatus(name, status)
	}

	s.health.SetServingStatus(ServiceOverall, overall)
}
