package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meridianid/bws-client/pkg/pool"
)

// FakeTransport is a closeable stand-in for a pooled transport.
type FakeTransport struct {
	Endpoint string

	mu     sync.Mutex
	closed bool
}

// Close marks the transport closed.
func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *FakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// FakeDialer counts dials and can be scripted to fail per endpoint.
type FakeDialer struct {
	mu    sync.Mutex
	dials map[string]int
	fail  map[string]error
}

// NewFakeDialer returns an empty dialer that succeeds everywhere.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		dials: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// FailWith makes future dials to endpoint return err.
func (d *FakeDialer) FailWith(endpoint string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[endpoint] = err
}

// Dials returns how many times endpoint was dialed.
func (d *FakeDialer) Dials(endpoint string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[endpoint]
}

// Dial creates a fresh fake transport or returns the scripted error.
func (d *FakeDialer) Dial(_ context.Context, endpoint string) (*FakeTransport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[endpoint]++
	if err := d.fail[endpoint]; err != nil {
		return nil, err
	}
	return &FakeTransport{Endpoint: endpoint}, nil
}

// AsDialer adapts the fake to the pool.Dialer function type.
func (d *FakeDialer) AsDialer() pool.Dialer {
	return func(ctx context.Context, endpoint string) (pool.Transport, error) {
		return d.Dial(ctx, endpoint)
	}
}

// ProbeResult scripts one endpoint's probe outcome.
type ProbeResult struct {
	Latency time.Duration
	Err     error
}

// FakeProber returns scripted latencies and errors per endpoint and records
// probe calls.
type FakeProber struct {
	mu      sync.Mutex
	results map[string]ProbeResult
	probes  map[string]int
}

// NewFakeProber returns a prober with no scripted results. Unscripted
// endpoints report a 1ms success.
func NewFakeProber() *FakeProber {
	return &FakeProber{
		results: make(map[string]ProbeResult),
		probes:  make(map[string]int),
	}
}

// Set scripts the outcome for one endpoint.
func (p *FakeProber) Set(endpoint string, latency time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[endpoint] = ProbeResult{Latency: latency, Err: err}
}

// Probes returns how many times endpoint was probed.
func (p *FakeProber) Probes(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes[endpoint]
}

// Probe satisfies endpoint.Prober.
func (p *FakeProber) Probe(_ context.Context, endpoint string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[endpoint]++
	r, ok := p.results[endpoint]
	if !ok {
		return time.Millisecond, nil
	}
	if r.Err != nil {
		return 0, r.Err
	}
	return r.Latency, nil
}
