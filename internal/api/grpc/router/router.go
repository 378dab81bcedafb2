// Package router assembles the ops gRPC server: health checking and reflection.
package router

import (
	"context"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/dtroode/taq-server/internal/api/grpc/middleware"
	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/service"
)

// ServiceName is the overall service reported by the health server.
const ServiceName = "taq"

// Router owns the gRPC health server and keeps it in line with the dependencies.
type Router struct {
	checks *service.Health
	health *health.Server
	logger *logger.Logger
}

func New(checks *service.Health, logger *logger.Logger) *Router {
	return &Router{
		checks: checks,
		health: health.NewServer(),
		logger: logger,
	}
}

// Register builds the gRPC server with every ops service registered.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	onPanic := recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
		r.logger.ErrorContext(ctx, "gRPC: recovered from panic", "panic", p)
		return status.Error(codes.Internal, "internal error")
	})

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(onPanic),
			logging.Unary,
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(onPanic),
			logging.Stream,
		),
	)

	healthpb.RegisterHealthServer(s, r.health)
	reflection.Register(s)

	r.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	for _, name := range r.checks.Names() {
		r.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return s
}

// Refresh pings every dependency once and publishes the result. The
// overall service serves only while all dependencies do.
func (r *Router) Refresh(ctx context.Context) {
	failed := r.checks.CheckAll(ctx)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range r.checks.Names() {
		st := healthpb.HealthCheckResponse_SERVING
		if err, ok := failed[name]; ok {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			r.logger.Warn("gRPC: dependency not ready", "dependency", name, "error", err)
		}
		r.health.SetServingStatus(name, st)
	}
	r.health.SetServingStatus(ServiceName, overall)
}

// Watch refreshes the health status every interval until ctx is done.
func (r *Router) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	r.Refresh(ctx)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Refresh(ctx)
			}
		}
	}()
}

// Shutdown reports NOT_SERVING for everything, ahead of a graceful stop.
func (r *Router) Shutdown() {
	r.health.Shutdown()
}
