// Package region defines the static registry of BWS deployment regions and
// their gRPC endpoint addresses.
package region

import "strings"

// Region identifies a logical BWS deployment location.
type Region string

// Known BWS regions.
const (
	// EU is the European region (Frankfurt).
	EU Region = "EU"

	// US is the North American region (Virginia).
	US Region = "US"

	// SA is the South American region (São Paulo).
	SA Region = "SA"
)

// Endpoint addresses per region. The set is finite and statically configured;
// service discovery is out of scope for this client.
const (
	EUEndpoint = "face.bws-eu.bioid.com:443"
	USEndpoint = "face.bws-us.bioid.com:443"
	SAEndpoint = "face.bws-sa.bioid.com:443"
)

var endpoints = map[Region]string{
	EU: EUEndpoint,
	US: USEndpoint,
	SA: SAEndpoint,
}

// ordering doubles as the preference order for latency ties.
var ordering = []Region{EU, US, SA}

// All returns every known region in preference order.
func All() []Region {
	out := make([]Region, len(ordering))
	copy(out, ordering)
	return out
}

// Endpoint returns the endpoint address for a region.
// The second return value is false if the region is unknown.
func Endpoint(r Region) (string, bool) {
	ep, ok := endpoints[r]
	return ep, ok
}

// FromEndpoint resolves an endpoint address back to its region.
// An unrecognized endpoint yields ("", false), not an error.
func FromEndpoint(endpoint string) (Region, bool) {
	for _, r := range ordering {
		if endpoints[r] == endpoint {
			return r, true
		}
	}
	// Tolerate scheme prefixes and missing ports in configured endpoints.
	trimmed := strings.TrimPrefix(strings.TrimPrefix(endpoint, "grpcs://"), "https://")
	for _, r := range ordering {
		if host, _, found := strings.Cut(endpoints[r], ":"); found && (trimmed == host || trimmed == endpoints[r]) {
			return r, true
		}
	}
	return "", false
}

// Known reports whether r is part of the configured region set.
func Known(r Region) bool {
	_, ok := endpoints[r]
	return ok
}

// Parse resolves a region code case-insensitively ("eu", "EU", " us ").
// The second return value is false if the code matches no configured region.
func Parse(s string) (Region, bool) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if !Known(r) {
		return "", false
	}
	return r, true
}
