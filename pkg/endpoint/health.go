package endpoint

import (
	"sync"
	"time"
)

// UnmeasuredLatency is the sentinel for "no measurement yet".
const UnmeasuredLatency = time.Duration(-1)

// Health is a point-in-time snapshot of one endpoint's health record.
type Health struct {
	Endpoint            string
	Healthy             bool
	ConsecutiveFailures uint32
	LastLatency         time.Duration // UnmeasuredLatency until the first success
	LastError           string
	LastCheck           time.Time
}

// record is the mutable health state for one endpoint. Updates to a single
// endpoint serialize on its mutex; distinct endpoints update independently.
type record struct {
	mu sync.Mutex
	h  Health
}

func newRecord(endpoint string) *record {
	return &record{h: Health{
		Endpoint:    endpoint,
		Healthy:     true,
		LastLatency: UnmeasuredLatency,
	}}
}

func (r *record) snapshot() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h
}

// success resets the failure streak and restores health immediately.
func (r *record) success(latency time.Duration) Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.h.Healthy = true
	r.h.ConsecutiveFailures = 0
	r.h.LastLatency = latency
	r.h.LastError = ""
	r.h.LastCheck = time.Now()
	return r.h
}

// failure increments the streak and flips health once it reaches the
// threshold. Health is never restored by time alone, only by a success.
func (r *record) failure(message string, threshold uint32) Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.h.ConsecutiveFailures++
	if r.h.ConsecutiveFailures >= threshold {
		r.h.Healthy = false
	}
	r.h.LastError = message
	r.h.LastCheck = time.Now()
	return r.h
}
