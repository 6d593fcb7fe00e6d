// Package client implements the retrying call executor that ties endpoint
// selection, pooled connections, and error classification together.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianid/bws-client/pkg/classify"
	"github.com/meridianid/bws-client/pkg/endpoint"
	"github.com/meridianid/bws-client/pkg/pool"
)

// Prometheus metrics for executed operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_requests_total",
		Help: "Executed operations by outcome",
	}, []string{"operation", "outcome"})

	requestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bws_request_duration_seconds",
		Help:    "Duration of successful operation attempts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_retries_total",
		Help: "Retry attempts by operation",
	}, []string{"operation"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_retry_exhausted_total",
		Help: "Operations that spent their whole retry budget",
	}, []string{"operation"})

	failoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_failovers_total",
		Help: "Attempts moved to a different endpoint than the previous one",
	}, []string{"operation"})
)

// Invoke is one attempt of an operation against a pooled connection.
type Invoke func(ctx context.Context, conn *pool.Conn) error

// Executor runs operations with failover and exponential-backoff retries.
// Candidates come from the endpoint manager in health-and-latency order, and
// every attempt outcome is reported back so the ordering stays current.
type Executor struct {
	cfg       RetryConfig
	pool      *pool.Pool
	endpoints *endpoint.Manager
	logger    zerolog.Logger
}

// NewExecutor creates an Executor over the given pool and endpoint manager.
func NewExecutor(cfg RetryConfig, p *pool.Pool, endpoints *endpoint.Manager) *Executor {
	cfg.applyDefaults()
	return &Executor{
		cfg:       cfg,
		pool:      p,
		endpoints: endpoints,
		logger:    log.With().Str("component", "executor").Logger(),
	}
}

// Do executes fn with retries. Attempts walk the ordered candidate list with
// wraparound, so one bad endpoint never starves the retry budget. The error
// returned is always a *classify.Classification, wrapped in ErrRetryExhausted
// when the budget is spent on retryable failures.
func (e *Executor) Do(ctx context.Context, operation string, fn Invoke) error {
	candidates := e.endpoints.OrderedEndpoints()
	if len(candidates) == 0 {
		return fmt.Errorf("%w for operation %s", ErrNoEndpoints, operation)
	}

	var lastErr error
	backoff := e.cfg.InitialBackoff

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		ep := candidates[(attempt-1)%len(candidates)]
		if attempt > 1 {
			prev := candidates[(attempt-2)%len(candidates)]
			if prev != ep {
				failoversTotal.WithLabelValues(operation).Inc()
				e.logger.Info().
					Str("operation", operation).
					Str("from", prev).
					Str("to", ep).
					Msg("Failing over to next endpoint")
			}
		}

		err := e.attempt(ctx, operation, ep, fn)
		if err == nil {
			if attempt > 1 {
				e.logger.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			requestsTotal.WithLabelValues(operation, "success").Inc()
			return nil
		}
		lastErr = err

		if !classify.IsRetryable(err) {
			requestsTotal.WithLabelValues(operation, "failed").Inc()
			return err
		}
		if attempt >= e.cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(operation).Inc()
		wait := jittered(backoff)

		e.logger.Debug().
			Str("operation", operation).
			Str("endpoint", ep).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying operation after backoff")

		select {
		case <-ctx.Done():
			requestsTotal.WithLabelValues(operation, "cancelled").Inc()
			return classify.Cancelled(operation, ctx.Err())
		case <-time.After(wait):
		}

		backoff = e.cfg.nextBackoff(backoff)
	}

	retryExhaustedTotal.WithLabelValues(operation).Inc()
	requestsTotal.WithLabelValues(operation, "exhausted").Inc()
	e.logger.Warn().
		Str("operation", operation).
		Int("max_attempts", e.cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, e.cfg.MaxAttempts, lastErr)
}

// attempt runs a single call against one endpoint and reports the outcome to
// the pool and the endpoint manager.
func (e *Executor) attempt(ctx context.Context, operation, ep string, fn Invoke) error {
	conn, err := e.pool.Acquire(ctx, ep)
	if err != nil {
		if ctx.Err() != nil {
			return classify.Cancelled(operation, ctx.Err())
		}
		if errors.Is(err, pool.ErrPoolClosed) {
			return classify.Classify(err, operation)
		}
		// Slot exhaustion and dial failures are connection level and
		// transient, so they stay retryable against the next candidate.
		cls := &classify.Classification{
			Category:   classify.CategoryService,
			Retryable:  true,
			StatusCode: 503,
			Code:       "CONNECTION_FAILED",
			Message:    fmt.Sprintf("%s operation failed: %s", operation, err),
			Err:        err,
		}
		e.endpoints.ReportFailure(ep, cls.Message)
		return cls
	}

	start := time.Now()
	err = fn(ctx, conn)
	latency := time.Since(start)

	if err == nil {
		e.endpoints.ReportSuccess(ep, latency)
		e.pool.Release(conn)
		requestDurationSeconds.WithLabelValues(operation).Observe(latency.Seconds())
		return nil
	}

	// A failed attempt may poison the transport, so the connection is
	// discarded rather than returned to the idle set.
	e.pool.Discard(conn)

	if ctx.Err() != nil {
		return classify.Cancelled(operation, ctx.Err())
	}

	cls := classify.Classify(err, operation)
	e.endpoints.ReportFailure(ep, cls.Message)
	return cls
}
