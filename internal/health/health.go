// Package health exposes the service's readiness over the standard gRPC
// health protocol, driven by periodic dependency pings.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "storefront"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	srv    *health.Server
	deps   map[string]Pinger
	every  time.Duration
	logger *zap.Logger
}

func NewChecker(deps map[string]Pinger, every time.Duration, logger *zap.Logger) *Checker {
	srv := health.NewServer()
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Checker{srv: srv, deps: deps, every: every, logger: logger}
}

func (c *Checker) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, c.srv)
}

// Check pings every dependency once and publishes the aggregate status.
func (c *Checker) Check(ctx context.Context) bool {
	ok := true
	for name, dep := range c.deps {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := dep.Ping(pctx)
		cancel()
		if err != nil {
			ok = false
			c.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
		}
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.srv.SetServingStatus(ServiceName, status)
	c.srv.SetServingStatus("", status)
	return ok
}

// Run re-checks until ctx is done, then marks everything as shutting down.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	t := time.NewTicker(c.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}
