package server

import (
	"context"
	"log/slog"
	"time"

	"smartsolve/auth"
	"smartsolve/contract"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probed by orchestrators alongside the overall "" service.
const ServiceName = "smartsolve.Hub"

// HealthCheck reports whether the durable store is reachable.
type HealthCheck func(ctx context.Context) error

// HealthServer publishes the hub serving status over the standard gRPC health protocol.
// It is a worker: the supervisor keeps it probing.
type HealthServer struct {
	log      *slog.Logger
	server   *health.Server
	check    HealthCheck
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, check HealthCheck, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = time.Second
	}
	h := &HealthServer{log: log, server: health.NewServer(), check: check, interval: interval}
	h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return nil
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *HealthServer) probe(ctx context.Context) {
	if err := h.check(ctx); err != nil {
		h.log.Warn("Hub not serving", "error", err)
		h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}

// NewGRPCServer builds the gRPC server with logging and authentication interceptors.
// Health checks are public, every other method needs a credential.
func NewGRPCServer(log *slog.Logger, gate contract.IGate, healthServer *HealthServer) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
			auth.UnaryInterceptor(gate),
		))
	grpc_health_v1.RegisterHealthServer(s, healthServer.server)
	return s
}
