package endpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianid/bws-client/internal/testutil"
	"github.com/meridianid/bws-client/pkg/region"
)

func TestPerformHealthCheck(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.EUEndpoint, 60*time.Millisecond, nil)
	prober.Set(region.USEndpoint, 0, errors.New("connection refused"))
	prober.Set(region.SAEndpoint, 90*time.Millisecond, nil)

	m := newTestManager(t, Config{FailureThreshold: 1}, prober)
	m.PerformHealthCheck()

	if h, _ := m.RegionHealth(region.EU); !h.Healthy || h.LastLatency != 60*time.Millisecond {
		t.Errorf("EU health = %+v, want healthy at 60ms", h)
	}
	if h, _ := m.RegionHealth(region.US); h.Healthy {
		t.Error("US should be unhealthy after a failed probe at threshold 1")
	}
	if h, _ := m.RegionHealth(region.SA); !h.Healthy {
		t.Error("SA should be healthy")
	}

	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		if prober.Probes(ep) != 1 {
			t.Errorf("endpoint %s probed %d times, want 1", ep, prober.Probes(ep))
		}
	}
}

func TestPerformHealthCheckAsync(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.EUEndpoint, 40*time.Millisecond, nil)

	m := newTestManager(t, Config{}, prober)

	select {
	case snap := <-m.PerformHealthCheckAsync():
		if len(snap) != 3 {
			t.Fatalf("snapshot has %d endpoints, want 3", len(snap))
		}
		if h := snap[region.EUEndpoint]; h.LastLatency != 40*time.Millisecond {
			t.Errorf("EU latency = %v, want 40ms", h.LastLatency)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async health check did not complete")
	}
}

func TestSelectOptimalRegion(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.EUEndpoint, 70*time.Millisecond, nil)
	prober.Set(region.USEndpoint, 20*time.Millisecond, nil)
	prober.Set(region.SAEndpoint, 120*time.Millisecond, nil)

	m := newTestManager(t, Config{}, prober)

	best, err := m.SelectOptimalRegion(context.Background())
	if err != nil {
		t.Fatalf("SelectOptimalRegion failed: %v", err)
	}
	if best != region.US {
		t.Errorf("best region = %s, want %s", best, region.US)
	}
	if got := m.CurrentRegion(); got != region.US {
		t.Errorf("CurrentRegion = %s, want %s after selection", got, region.US)
	}
}

func TestSelectOptimalRegionSkipsUnreachable(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.EUEndpoint, 0, errors.New("down"))
	prober.Set(region.USEndpoint, 0, errors.New("down"))
	prober.Set(region.SAEndpoint, 200*time.Millisecond, nil)

	m := newTestManager(t, Config{FailureThreshold: 1}, prober)

	best, err := m.SelectOptimalRegion(context.Background())
	if err != nil {
		t.Fatalf("SelectOptimalRegion failed: %v", err)
	}
	if best != region.SA {
		t.Errorf("best region = %s, want %s", best, region.SA)
	}
}

func TestSelectOptimalRegionTieBreaksByPreference(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.EUEndpoint, 50*time.Millisecond, nil)
	prober.Set(region.USEndpoint, 50*time.Millisecond, nil)
	prober.Set(region.SAEndpoint, 50*time.Millisecond, nil)

	m := newTestManager(t, Config{PreferredRegion: region.SA}, prober)

	best, err := m.SelectOptimalRegion(context.Background())
	if err != nil {
		t.Fatalf("SelectOptimalRegion failed: %v", err)
	}
	if best != region.EU {
		t.Errorf("tied latencies should pick the first configured region, got %s", best)
	}
}

func TestSelectOptimalRegionIgnoresStaleLatency(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.EUEndpoint, 0, errors.New("probe timeout"))
	prober.Set(region.USEndpoint, 20*time.Millisecond, nil)
	prober.Set(region.SAEndpoint, 60*time.Millisecond, nil)

	m := newTestManager(t, Config{}, prober)

	// EU carries an attractive old measurement and a single failed probe
	// does not flip it unhealthy at the default threshold, but a region
	// that failed this round must not win the selection.
	m.ReportSuccess(region.EUEndpoint, 5*time.Millisecond)

	best, err := m.SelectOptimalRegion(context.Background())
	if err != nil {
		t.Fatalf("SelectOptimalRegion failed: %v", err)
	}
	if best != region.US {
		t.Errorf("best region = %s, want %s (EU failed its probe)", best, region.US)
	}
}

func TestSelectOptimalRegionAllDown(t *testing.T) {
	prober := testutil.NewFakeProber()
	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		prober.Set(ep, 0, errors.New("down"))
	}

	m := newTestManager(t, Config{FailureThreshold: 1}, prober)

	if _, err := m.SelectOptimalRegion(context.Background()); err == nil {
		t.Error("selection with no reachable region should fail")
	}
	if got := m.CurrentRegion(); got != region.EU {
		t.Errorf("failed selection must not change the region, got %s", got)
	}
}

func TestSelectOptimalRegionAsync(t *testing.T) {
	prober := testutil.NewFakeProber()
	prober.Set(region.USEndpoint, 5*time.Millisecond, nil)
	prober.Set(region.EUEndpoint, 50*time.Millisecond, nil)
	prober.Set(region.SAEndpoint, 80*time.Millisecond, nil)

	m := newTestManager(t, Config{}, prober)

	select {
	case res := <-m.SelectOptimalRegionAsync(context.Background()):
		if res.Err != nil {
			t.Fatalf("async selection failed: %v", res.Err)
		}
		if res.Region != region.US {
			t.Errorf("async best region = %s, want %s", res.Region, region.US)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async selection did not complete")
	}
}
