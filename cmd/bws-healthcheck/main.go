// Command bws-healthcheck probes all regional BWS endpoints, prints their
// health and latency, and reports which region the client would pick.
// With -listen it keeps running and serves Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/meridianid/bws-client/pkg/config"
	"github.com/meridianid/bws-client/pkg/endpoint"
	"github.com/meridianid/bws-client/pkg/grpcconn"
	"github.com/meridianid/bws-client/pkg/logging"
	"github.com/meridianid/bws-client/pkg/region"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: environment variables)")
	listen := flag.String("listen", "", "keep running and serve /metrics on this address (e.g. :9090)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout for one probe round")
	flag.Parse()

	if err := run(*configPath, *listen, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "bws-healthcheck: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listen string, timeout time.Duration) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Format == "console",
		Output: os.Stderr,
	})

	prober := grpcconn.NewHealthProber(grpcconn.DialConfig{})
	mgr, err := endpoint.New(cfg.EndpointConfig(), prober)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	mgr.PerformHealthCheck()
	printStatus(mgr)

	best, err := mgr.SelectOptimalRegion(ctx)
	if err != nil {
		fmt.Printf("\noptimal region: none (%v)\n", err)
	} else {
		fmt.Printf("\noptimal region: %s (%s)\n", best, mgr.RegionLatency(best))
	}

	if listen == "" {
		return nil
	}

	// Stay up for scraping; the manager keeps probing in the background.
	http.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", listen).Msg("Serving metrics")
	return http.ListenAndServe(listen, nil)
}

func printStatus(mgr *endpoint.Manager) {
	fmt.Printf("%-8s %-28s %-10s %-12s %s\n", "REGION", "ENDPOINT", "HEALTHY", "LATENCY", "LAST ERROR")
	for _, r := range region.All() {
		ep, _ := region.Endpoint(r)
		h, ok := mgr.RegionHealth(r)
		if !ok {
			fmt.Printf("%-8s %-28s %-10s %-12s\n", r, ep, "unknown", "-")
			continue
		}
		latency := "-"
		if h.LastLatency != endpoint.UnmeasuredLatency {
			latency = h.LastLatency.String()
		}
		fmt.Printf("%-8s %-28s %-10t %-12s %s\n", r, ep, h.Healthy, latency, h.LastError)
	}
}
