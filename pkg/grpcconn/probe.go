package grpcconn

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/meridianid/bws-client/pkg/endpoint"
)

// HealthProber measures endpoint latency with the standard gRPC health
// service. Each probe dials a fresh short-lived connection so it observes
// real connection setup cost, not a warmed channel.
type HealthProber struct {
	cfg DialConfig
}

// NewHealthProber creates a prober with the given transport settings.
func NewHealthProber(cfg DialConfig) *HealthProber {
	cfg.applyDefaults()
	return &HealthProber{cfg: cfg}
}

// Probe implements endpoint.Prober.
func (p *HealthProber) Probe(ctx context.Context, ep string) (time.Duration, error) {
	addr, opts := dialOptions(p.cfg, ep)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to create grpc client for %s: %w", ep, err)
	}
	defer conn.Close()

	start := time.Now()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return 0, fmt.Errorf("health check for %s: %w", ep, err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return 0, fmt.Errorf("endpoint %s not serving: %s", ep, resp.GetStatus())
	}
	return time.Since(start), nil
}

var _ endpoint.Prober = (*HealthProber)(nil)
