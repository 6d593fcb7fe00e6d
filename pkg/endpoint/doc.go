// Package endpoint manages regional BWS endpoints: per-endpoint health
// tracking, latency-ordered candidate selection, periodic probing, and
// explicit or latency-driven region switching.
//
// One Manager corresponds to one client configuration. All health state is
// in-memory and lives until Close; nothing is persisted.
//
// Ordering contract: every healthy endpoint precedes every unhealthy one,
// and within the same health class endpoints sort by ascending last
// observed latency, with unmeasured endpoints last. When data residency is
// required the candidate set is always the single endpoint of the
// configured region, regardless of its health.
package endpoint
