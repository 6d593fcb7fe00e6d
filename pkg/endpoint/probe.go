package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianid/bws-client/pkg/region"
)

// Prober measures reachability and latency of one endpoint. The default
// gRPC implementation lives in pkg/grpcconn; tests inject fakes.
type Prober interface {
	Probe(ctx context.Context, endpoint string) (time.Duration, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, endpoint string) (time.Duration, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, endpoint string) (time.Duration, error) {
	return f(ctx, endpoint)
}

// RegionResult carries the outcome of an asynchronous region selection.
type RegionResult struct {
	Region region.Region
	Err    error
}

// PerformHealthCheck probes every known endpoint and folds the outcomes
// into the health table. Probe failures are recorded as health events and
// never propagate to the caller.
func (m *Manager) PerformHealthCheck() {
	var g errgroup.Group
	g.SetLimit(m.cfg.ProbeParallelism)

	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		g.Go(func() error {
			m.probeEndpoint(ep)
			return nil
		})
	}
	_ = g.Wait()
}

// PerformHealthCheckAsync runs PerformHealthCheck on a background goroutine
// and delivers the resulting health snapshots on the returned channel. The
// channel is closed after the single send.
func (m *Manager) PerformHealthCheckAsync() <-chan map[string]Health {
	out := make(chan map[string]Health, 1)
	go func() {
		defer close(out)
		m.PerformHealthCheck()

		snap := make(map[string]Health, len(region.All()))
		for _, r := range region.All() {
			ep, _ := region.Endpoint(r)
			snap[ep] = m.healthFor(ep)
		}
		out <- snap
	}()
	return out
}

// SelectOptimalRegion probes all configured regions with bounded
// parallelism, records each measurement, and switches to the lowest-latency
// region among those that answered this round's probe. A stale latency from
// an earlier round never wins the selection. Ties break by configured
// preference order.
func (m *Manager) SelectOptimalRegion(ctx context.Context) (region.Region, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ProbeParallelism)

	var (
		mu       sync.Mutex
		measured = make(map[region.Region]time.Duration)
	)
	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			defer cancel()

			latency, err := m.prober.Probe(probeCtx, ep)
			if err != nil {
				m.ReportFailure(ep, err.Error())
				return nil // a dead region is not a selection failure
			}
			m.ReportSuccess(ep, latency)

			mu.Lock()
			measured[r] = latency
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var (
		best        region.Region
		bestLatency time.Duration
	)
	for _, r := range region.All() {
		latency, ok := measured[r]
		if !ok {
			continue
		}
		if best == "" || latency < bestLatency {
			best = r
			bestLatency = latency
		}
	}
	if best == "" {
		return "", fmt.Errorf("no healthy regions available")
	}

	if err := m.SwitchToRegion(best); err != nil {
		return "", err
	}

	m.logger.Info().
		Str("region", string(best)).
		Dur("latency", bestLatency).
		Msg("Selected optimal region")

	return best, nil
}

// SelectOptimalRegionAsync runs SelectOptimalRegion on a background
// goroutine and delivers the result on the returned channel.
func (m *Manager) SelectOptimalRegionAsync(ctx context.Context) <-chan RegionResult {
	out := make(chan RegionResult, 1)
	go func() {
		defer close(out)
		r, err := m.SelectOptimalRegion(ctx)
		out <- RegionResult{Region: r, Err: err}
	}()
	return out
}

// probeEndpoint runs one bounded probe and records the outcome.
func (m *Manager) probeEndpoint(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()

	latency, err := m.prober.Probe(ctx, endpoint)
	if err != nil {
		m.ReportFailure(endpoint, err.Error())
		return
	}
	m.ReportSuccess(endpoint, latency)
}
