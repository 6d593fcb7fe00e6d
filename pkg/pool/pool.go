// Package pool implements a per-endpoint bounded pool of reusable transport
// connections with idle reaping and reference-counted shutdown.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for connection pool operations.
var (
	poolConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bws_pool_connections_active",
		Help: "Connections currently checked out, by endpoint",
	}, []string{"endpoint"})

	poolConnectionsIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bws_pool_connections_idle",
		Help: "Connections parked in the idle set, by endpoint",
	}, []string{"endpoint"})

	poolExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_pool_exhausted_total",
		Help: "Acquire attempts that timed out waiting for a free slot",
	}, []string{"endpoint"})

	poolDialFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_pool_dial_failures_total",
		Help: "Failed attempts to dial a new pooled connection",
	}, []string{"endpoint"})

	poolReapedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_pool_reaped_total",
		Help: "Idle connections closed by the background reaper",
	}, []string{"endpoint"})
)

// Common errors returned by the pool.
var (
	// ErrPoolExhausted is returned when no connection slot frees up within
	// the queue timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned for acquires after shutdown completed.
	ErrPoolClosed = errors.New("connection pool is closed")
)

// Config holds the pool configuration.
type Config struct {
	// MaxPerEndpoint bounds concurrent connections per endpoint.
	MaxPerEndpoint int

	// QueueTimeout is how long Acquire waits for a free slot before
	// failing with ErrPoolExhausted.
	QueueTimeout time.Duration

	// IdleTimeout after which an unused connection is reaped.
	IdleTimeout time.Duration

	// ReapInterval is the sweep period of the background reaper.
	ReapInterval time.Duration
}

// DefaultConfig returns a safe default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerEndpoint: 5,
		QueueTimeout:   5 * time.Second,
		IdleTimeout:    5 * time.Minute,
		ReapInterval:   30 * time.Second,
	}
}

// Stats describes one endpoint's pool state.
type Stats struct {
	Active         int
	Idle           int
	Total          int
	TotalRequests  uint64
	FailedRequests uint64
}

type entry struct {
	endpoint string
	slots    chan struct{} // one token per live-or-creatable connection use

	mu             sync.Mutex
	idle           []*Conn
	active         int
	totalRequests  uint64
	failedRequests uint64
}

// Pool manages bounded per-endpoint connection sets. Entries are created
// lazily on first Acquire for an endpoint and reclaimed by the reaper or at
// shutdown.
type Pool struct {
	cfg    Config
	dialer Dialer
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	// refs implements the shared-ownership contract: the pool is finalized
	// exactly once, on the 1 -> 0 transition.
	refs   atomic.Int32
	closed atomic.Bool
	done   chan struct{}
}

// New creates a connection pool using the given dialer.
func New(cfg Config, dialer Dialer) *Pool {
	def := DefaultConfig()
	if cfg.MaxPerEndpoint <= 0 {
		cfg.MaxPerEndpoint = def.MaxPerEndpoint
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}

	p := &Pool{
		cfg:     cfg,
		dialer:  dialer,
		logger:  log.With().Str("component", "connection-pool").Logger(),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	p.refs.Store(1)

	go p.reapLoop()

	return p
}

// Acquire returns a connection for the endpoint, reusing an idle one when
// available, dialing a new one below capacity, and otherwise blocking up to
// the queue timeout.
func (p *Pool) Acquire(ctx context.Context, endpoint string) (*Conn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	e := p.entry(endpoint)

	timer := time.NewTimer(p.cfg.QueueTimeout)
	defer timer.Stop()

	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		poolExhaustedTotal.WithLabelValues(endpoint).Inc()
		p.logger.Warn().
			Str("endpoint", endpoint).
			Dur("queue_timeout", p.cfg.QueueTimeout).
			Msg("Connection pool exhausted")
		return nil, fmt.Errorf("%w: no free connection for %s within %s",
			ErrPoolExhausted, endpoint, p.cfg.QueueTimeout)
	}

	e.mu.Lock()
	var conn *Conn
	if n := len(e.idle); n > 0 {
		conn = e.idle[n-1]
		e.idle = e.idle[:n-1]
	}
	if conn != nil {
		e.active++
		e.totalRequests++
		p.updateGauges(e)
		e.mu.Unlock()
		return conn, nil
	}
	e.mu.Unlock()

	transport, err := p.dialer(ctx, endpoint)
	if err != nil {
		<-e.slots
		poolDialFailuresTotal.WithLabelValues(endpoint).Inc()
		e.mu.Lock()
		e.totalRequests++
		e.failedRequests++
		e.mu.Unlock()
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	conn = newConn(endpoint, transport)

	e.mu.Lock()
	e.active++
	e.totalRequests++
	p.updateGauges(e)
	e.mu.Unlock()

	p.logger.Debug().
		Str("endpoint", endpoint).
		Str("conn_id", conn.id).
		Msg("Created pooled connection")

	return conn, nil
}

// Release returns a connection to the idle set. After shutdown the
// connection is closed instead.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	e := p.entry(conn.endpoint)

	e.mu.Lock()
	e.active--
	if p.closed.Load() {
		p.updateGauges(e)
		e.mu.Unlock()
		p.closeConn(conn)
		<-e.slots
		return
	}
	conn.lastUsed = time.Now()
	e.idle = append(e.idle, conn)
	p.updateGauges(e)
	e.mu.Unlock()

	<-e.slots
}

// Discard closes a connection instead of returning it to the pool and
// counts the request as failed. Use after a transport-level error.
func (p *Pool) Discard(conn *Conn) {
	if conn == nil {
		return
	}

	e := p.entry(conn.endpoint)

	e.mu.Lock()
	e.active--
	e.failedRequests++
	p.updateGauges(e)
	e.mu.Unlock()

	p.closeConn(conn)
	<-e.slots
}

// Stats returns pool counters for an endpoint. A never-seen endpoint yields
// the zero value.
func (p *Pool) Stats(endpoint string) Stats {
	p.mu.RLock()
	e, ok := p.entries[endpoint]
	p.mu.RUnlock()
	if !ok {
		return Stats{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Active:         e.active,
		Idle:           len(e.idle),
		Total:          e.active + len(e.idle),
		TotalRequests:  e.totalRequests,
		FailedRequests: e.failedRequests,
	}
}

// Retain adds a reference to the pool. Each Retain must be paired with a
// Shutdown; the pool is finalized when the last reference is dropped.
func (p *Pool) Retain() {
	for {
		n := p.refs.Load()
		if n == 0 {
			return // already finalized, nothing to hold
		}
		if p.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// Shutdown drops one reference. On the 1 -> 0 transition it cancels the
// reaper and closes every connection for every endpoint. Safe to call more
// than once; extra calls are no-ops.
func (p *Pool) Shutdown() {
	for {
		n := p.refs.Load()
		if n == 0 {
			return
		}
		if p.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				p.finalize()
			}
			return
		}
	}
}

func (p *Pool) finalize() {
	p.closed.Store(true)
	close(p.done)

	p.mu.RLock()
	defer p.mu.RUnlock()

	closed := 0
	for _, e := range p.entries {
		e.mu.Lock()
		for _, conn := range e.idle {
			p.closeConn(conn)
			closed++
		}
		e.idle = nil
		p.updateGauges(e)
		e.mu.Unlock()
	}

	p.logger.Info().
		Int("closed_idle", closed).
		Msg("Connection pool shut down")
}

func (p *Pool) entry(endpoint string) *entry {
	p.mu.RLock()
	e, ok := p.entries[endpoint]
	p.mu.RUnlock()
	if ok {
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok = p.entries[endpoint]; ok {
		return e
	}
	e = &entry{
		endpoint: endpoint,
		slots:    make(chan struct{}, p.cfg.MaxPerEndpoint),
	}
	p.entries[endpoint] = e
	return e
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle closes idle connections whose last use is older than the idle
// timeout.
func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.RLock()
	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		kept := e.idle[:0]
		for _, conn := range e.idle {
			if conn.lastUsed.Before(cutoff) {
				p.closeConn(conn)
				poolReapedTotal.WithLabelValues(e.endpoint).Inc()
				p.logger.Debug().
					Str("endpoint", e.endpoint).
					Str("conn_id", conn.id).
					Msg("Reaped idle connection")
				continue
			}
			kept = append(kept, conn)
		}
		e.idle = kept
		p.updateGauges(e)
		e.mu.Unlock()
	}
}

func (p *Pool) closeConn(conn *Conn) {
	if err := conn.transport.Close(); err != nil {
		p.logger.Warn().
			Err(err).
			Str("endpoint", conn.endpoint).
			Str("conn_id", conn.id).
			Msg("Failed to close connection")
	}
}

// updateGauges must be called with e.mu held.
func (p *Pool) updateGauges(e *entry) {
	poolConnectionsActive.WithLabelValues(e.endpoint).Set(float64(e.active))
	poolConnectionsIdle.WithLabelValues(e.endpoint).Set(float64(len(e.idle)))
}
