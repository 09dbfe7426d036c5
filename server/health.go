package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "affect.memory"

func registerHealth(g *grpc.Server, h *health.Server) {
	healthpb.RegisterHealthServer(g, h)
}

// Health returns the gRPC health service. Its status follows
// Memory.Available.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

func (s *Server) refreshHealth() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.config.Memory.Available() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) monitorHealth(ctx context.Context) {
	t := time.NewTicker(s.config.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refreshHealth()
		}
	}
}
