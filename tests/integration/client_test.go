// Package integration exercises the full stack (executor, pool, endpoint
// manager) against in-process gRPC servers.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/meridianid/bws-client/internal/testutil"
	"github.com/meridianid/bws-client/pkg/client"
	"github.com/meridianid/bws-client/pkg/endpoint"
	"github.com/meridianid/bws-client/pkg/grpcconn"
	"github.com/meridianid/bws-client/pkg/pool"
	"github.com/meridianid/bws-client/pkg/region"
)

// regionServers backs every regional endpoint with its own in-process
// gRPC server.
type regionServers map[string]*testutil.BufconnServer

func startServers(t *testing.T) regionServers {
	t.Helper()
	servers := make(regionServers)
	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		s := testutil.NewBufconnServer()
		t.Cleanup(s.Stop)
		servers[ep] = s
	}
	return servers
}

// dialer routes pool dials to the matching in-process server.
func (s regionServers) dialer(ctx context.Context, ep string) (pool.Transport, error) {
	srv, ok := s[ep]
	if !ok {
		return nil, fmt.Errorf("no server for endpoint %s", ep)
	}
	return srv.Dial(ctx)
}

// prober measures a real health RPC round trip against the in-process server.
func (s regionServers) Probe(ctx context.Context, ep string) (time.Duration, error) {
	srv, ok := s[ep]
	if !ok {
		return 0, fmt.Errorf("no server for endpoint %s", ep)
	}
	conn, err := srv.Dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return 0, err
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return 0, fmt.Errorf("endpoint %s not serving", ep)
	}
	return time.Since(start), nil
}

func buildStack(t *testing.T, servers regionServers, cfg endpoint.Config) (*client.Executor, *endpoint.Manager, *pool.Pool) {
	t.Helper()
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = time.Hour
	}

	mgr, err := endpoint.New(cfg, servers)
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	p := pool.New(pool.DefaultConfig(), servers.dialer)
	t.Cleanup(p.Shutdown)

	exec := client.NewExecutor(client.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, p, mgr)

	return exec, mgr, p
}

// checkHealth runs a health RPC on the pooled connection, mapping
// NOT_SERVING to an Unavailable status like a real BWS call site would.
func checkHealth(ctx context.Context, conn *pool.Conn) error {
	cc, err := grpcconn.ClientConn(conn)
	if err != nil {
		return err
	}
	resp, err := grpc_health_v1.NewHealthClient(cc).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return status.Error(codes.Unavailable, "endpoint not serving")
	}
	return nil
}

func TestExecutorOverGRPC(t *testing.T) {
	servers := startServers(t)
	exec, mgr, _ := buildStack(t, servers, endpoint.Config{})

	if err := exec.Do(context.Background(), "verify", checkHealth); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	h, ok := mgr.RegionHealth(region.EU)
	if !ok || !h.Healthy {
		t.Errorf("EU health after successful call = %+v", h)
	}
	if h.LastLatency == endpoint.UnmeasuredLatency {
		t.Error("successful call should record a latency")
	}
}

func TestFailoverToSecondaryRegion(t *testing.T) {
	servers := startServers(t)
	servers[region.EUEndpoint].SetNotServing()

	exec, mgr, _ := buildStack(t, servers, endpoint.Config{FailureThreshold: 1})

	if err := exec.Do(context.Background(), "verify", checkHealth); err != nil {
		t.Fatalf("Do should succeed via a secondary region, got %v", err)
	}

	if h, _ := mgr.RegionHealth(region.EU); h.Healthy {
		t.Error("EU should be marked unhealthy after the failed attempt")
	}
	if h, _ := mgr.RegionHealth(region.US); !h.Healthy {
		t.Error("US should be healthy after serving the failover")
	}

	// Subsequent calls now prefer the healthy region directly.
	if got := mgr.PrimaryEndpoint(); got == region.EUEndpoint {
		t.Errorf("PrimaryEndpoint = %s, should avoid the unhealthy region", got)
	}
}

func TestResidencyBlocksFailover(t *testing.T) {
	servers := startServers(t)
	servers[region.EUEndpoint].SetNotServing()

	exec, _, _ := buildStack(t, servers, endpoint.Config{
		PreferredRegion:       region.EU,
		DataResidencyRequired: true,
		FailureThreshold:      1,
	})

	err := exec.Do(context.Background(), "verify", checkHealth)
	if err == nil {
		t.Fatal("Do must not leave the pinned region even when it is down")
	}
}

func TestSelectOptimalRegionOverGRPC(t *testing.T) {
	servers := startServers(t)
	servers[region.EUEndpoint].SetNotServing()

	_, mgr, _ := buildStack(t, servers, endpoint.Config{FailureThreshold: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	best, err := mgr.SelectOptimalRegion(ctx)
	if err != nil {
		t.Fatalf("SelectOptimalRegion failed: %v", err)
	}
	if best == region.EU {
		t.Error("selection must skip the non-serving region")
	}
	if got := mgr.CurrentRegion(); got != best {
		t.Errorf("CurrentRegion = %s, want %s", got, best)
	}
}

func TestPoolReusesConnectionsAcrossCalls(t *testing.T) {
	servers := startServers(t)
	exec, _, p := buildStack(t, servers, endpoint.Config{})

	for i := 0; i < 5; i++ {
		if err := exec.Do(context.Background(), "verify", checkHealth); err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
	}

	stats := p.Stats(region.EUEndpoint)
	if stats.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", stats.TotalRequests)
	}
	if stats.Total != 1 {
		t.Errorf("Total connections = %d, want 1 (sequential calls reuse one connection)", stats.Total)
	}
	if stats.FailedRequests != 0 {
		t.Errorf("FailedRequests = %d, want 0", stats.FailedRequests)
	}
}

func TestRecoveryAfterServerReturns(t *testing.T) {
	servers := startServers(t)
	eu := servers[region.EUEndpoint]
	eu.SetNotServing()

	exec, mgr, _ := buildStack(t, servers, endpoint.Config{FailureThreshold: 1})

	if err := exec.Do(context.Background(), "verify", checkHealth); err != nil {
		t.Fatalf("failover call failed: %v", err)
	}
	if h, _ := mgr.RegionHealth(region.EU); h.Healthy {
		t.Fatal("EU should be unhealthy")
	}

	eu.SetServing()
	mgr.PerformHealthCheck()

	if h, _ := mgr.RegionHealth(region.EU); !h.Healthy {
		t.Error("EU should recover after a successful probe")
	}
}
