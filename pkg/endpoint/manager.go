package endpoint

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianid/bws-client/pkg/region"
)

// Prometheus metrics for endpoint health tracking.
var (
	endpointHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bws_endpoint_healthy",
		Help: "Endpoint health state (1 healthy, 0 unhealthy)",
	}, []string{"endpoint"})

	endpointLatencySeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bws_endpoint_latency_seconds",
		Help: "Last observed latency per endpoint",
	}, []string{"endpoint"})

	endpointFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_endpoint_failures_total",
		Help: "Failure reports per endpoint",
	}, []string{"endpoint"})

	regionSwitchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bws_region_switches_total",
		Help: "Explicit and automatic region switches",
	})
)

// Config holds the endpoint manager configuration.
type Config struct {
	// PreferredRegion is the home region. Defaults to region.EU.
	PreferredRegion region.Region

	// EndpointOverride optionally names the configured endpoint address.
	// When set it determines the initial region; an address matching no
	// known region falls back to the first configured region.
	EndpointOverride string

	// DataResidencyRequired pins all traffic to the configured region.
	DataResidencyRequired bool

	// FailureThreshold is the consecutive-failure count that flips an
	// endpoint unhealthy. Default 3.
	FailureThreshold uint32

	// HealthCheckInterval is the period of background probing. Default 30s.
	HealthCheckInterval time.Duration

	// ProbeTimeout bounds a single probe. Default 5s.
	ProbeTimeout time.Duration

	// ProbeParallelism bounds concurrent probes. Default 3.
	ProbeParallelism int
}

func (c *Config) applyDefaults() {
	if c.PreferredRegion == "" {
		c.PreferredRegion = region.EU
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ProbeParallelism <= 0 {
		c.ProbeParallelism = 3
	}
}

// Manager owns the per-endpoint health table and computes ordered candidate
// lists. Create one per client configuration and Close it when done.
type Manager struct {
	cfg    Config
	prober Prober
	logger zerolog.Logger

	mu      sync.RWMutex
	records map[string]*record
	current region.Region

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Manager and starts its background health probing.
func New(cfg Config, prober Prober) (*Manager, error) {
	cfg.applyDefaults()
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}

	logger := log.With().Str("component", "endpoint-manager").Logger()

	// Region codes are accepted case-insensitively; the registry constants
	// are the canonical form.
	initial, ok := region.Parse(string(cfg.PreferredRegion))
	if !ok {
		initial = region.All()[0]
		logger.Warn().
			Str("preferred_region", string(cfg.PreferredRegion)).
			Str("fallback_region", string(initial)).
			Msg("Preferred region not recognized, defaulting to first configured region")
	}
	if cfg.EndpointOverride != "" {
		if r, ok := region.FromEndpoint(cfg.EndpointOverride); ok {
			initial = r
		} else {
			// Reviewable default: an unrecognized configured endpoint maps
			// to the first configured region instead of failing startup.
			initial = region.All()[0]
			logger.Warn().
				Str("endpoint", cfg.EndpointOverride).
				Str("fallback_region", string(initial)).
				Msg("Configured endpoint matches no known region, defaulting to first configured region")
		}
	}

	m := &Manager{
		cfg:     cfg,
		prober:  prober,
		logger:  logger,
		records: make(map[string]*record),
		current: initial,
		done:    make(chan struct{}),
	}

	m.wg.Add(1)
	go m.monitorLoop()

	m.logger.Info().
		Str("region", string(initial)).
		Bool("data_residency", cfg.DataResidencyRequired).
		Uint32("failure_threshold", cfg.FailureThreshold).
		Dur("health_check_interval", cfg.HealthCheckInterval).
		Msg("Endpoint manager initialized")

	return m, nil
}

// OrderedEndpoints returns candidate endpoints for the next call, healthy
// before unhealthy and ascending by latency within each class. With data
// residency enabled it returns exactly the current region's endpoint.
func (m *Manager) OrderedEndpoints() []string {
	if m.cfg.DataResidencyRequired {
		ep, _ := region.Endpoint(m.CurrentRegion())
		return []string{ep}
	}

	type candidate struct {
		endpoint string
		health   Health
	}

	// Build in preference order so the stable sort keeps ties preference-ordered.
	candidates := make([]candidate, 0, len(region.All()))
	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		candidates = append(candidates, candidate{endpoint: ep, health: m.healthFor(ep)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		hi, hj := candidates[i].health, candidates[j].health
		if hi.Healthy != hj.Healthy {
			return hi.Healthy
		}
		li, lj := hi.LastLatency, hj.LastLatency
		if (li == UnmeasuredLatency) != (lj == UnmeasuredLatency) {
			return lj == UnmeasuredLatency
		}
		return li < lj
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.endpoint
	}
	return out
}

// PrimaryEndpoint returns the best current candidate.
func (m *Manager) PrimaryEndpoint() string {
	return m.OrderedEndpoints()[0]
}

// CurrentEndpoint is an alias for PrimaryEndpoint.
func (m *Manager) CurrentEndpoint() string {
	return m.PrimaryEndpoint()
}

// CurrentRegion returns the active region.
func (m *Manager) CurrentRegion() region.Region {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AvailableRegions lists the configured regions in preference order.
func (m *Manager) AvailableRegions() []region.Region {
	return region.All()
}

// ReportSuccess records a successful call against an endpoint, restoring
// health and resetting the failure streak. The health record is created on
// first report.
func (m *Manager) ReportSuccess(endpoint string, latency time.Duration) {
	m.recordFor(endpoint).success(latency)

	endpointHealthy.WithLabelValues(endpoint).Set(1)
	endpointLatencySeconds.WithLabelValues(endpoint).Set(latency.Seconds())

	m.logger.Debug().
		Str("endpoint", endpoint).
		Dur("latency", latency).
		Msg("Endpoint success reported")
}

// ReportFailure records a failed call against an endpoint. The endpoint
// flips unhealthy once the consecutive-failure threshold is reached.
func (m *Manager) ReportFailure(endpoint, message string) {
	h := m.recordFor(endpoint).failure(message, m.cfg.FailureThreshold)

	endpointFailuresTotal.WithLabelValues(endpoint).Inc()
	if !h.Healthy {
		endpointHealthy.WithLabelValues(endpoint).Set(0)
	}

	evt := m.logger.Debug()
	if !h.Healthy {
		evt = m.logger.Warn()
	}
	evt.Str("endpoint", endpoint).
		Uint32("consecutive_failures", h.ConsecutiveFailures).
		Bool("healthy", h.Healthy).
		Str("error", message).
		Msg("Endpoint failure reported")
}

// SwitchToRegion explicitly overrides the active region. The region code is
// accepted case-insensitively.
func (m *Manager) SwitchToRegion(r region.Region) error {
	parsed, ok := region.Parse(string(r))
	if !ok {
		return fmt.Errorf("unknown region: %s", r)
	}

	m.mu.Lock()
	previous := m.current
	m.current = parsed
	m.mu.Unlock()

	if previous != parsed {
		regionSwitchesTotal.Inc()
		m.logger.Info().
			Str("from", string(previous)).
			Str("to", string(parsed)).
			Msg("Switched region")
	}
	return nil
}

// RegionHealth returns the health snapshot for a region's endpoint. The
// second return value is false when the region is unknown or has no record
// yet.
func (m *Manager) RegionHealth(r region.Region) (Health, bool) {
	ep, ok := region.Endpoint(r)
	if !ok {
		return Health{}, false
	}

	m.mu.RLock()
	rec, ok := m.records[ep]
	m.mu.RUnlock()
	if !ok {
		return Health{}, false
	}
	return rec.snapshot(), true
}

// RegionLatency returns the last observed latency for a region, or
// UnmeasuredLatency (-1) when there is no measurement yet.
func (m *Manager) RegionLatency(r region.Region) time.Duration {
	h, ok := m.RegionHealth(r)
	if !ok {
		return UnmeasuredLatency
	}
	return h.LastLatency
}

// RegionFromEndpoint resolves an endpoint address back to its region.
// Unrecognized endpoints yield ("", false), never an error.
func (m *Manager) RegionFromEndpoint(endpoint string) (region.Region, bool) {
	return region.FromEndpoint(endpoint)
}

// Close stops background probing. Idempotent.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.done)
	m.wg.Wait()
	m.logger.Info().Msg("Endpoint manager closed")
	return nil
}

func (m *Manager) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.PerformHealthCheck()
		}
	}
}

// healthFor returns a snapshot for an endpoint, defaulting to a fresh
// healthy-unmeasured view when unseen.
func (m *Manager) healthFor(endpoint string) Health {
	m.mu.RLock()
	rec, ok := m.records[endpoint]
	m.mu.RUnlock()
	if !ok {
		return Health{Endpoint: endpoint, Healthy: true, LastLatency: UnmeasuredLatency}
	}
	return rec.snapshot()
}

func (m *Manager) recordFor(endpoint string) *record {
	m.mu.RLock()
	rec, ok := m.records[endpoint]
	m.mu.RUnlock()
	if ok {
		return rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok = m.records[endpoint]; ok {
		return rec
	}
	rec = newRecord(endpoint)
	m.records[endpoint] = rec
	return rec
}
