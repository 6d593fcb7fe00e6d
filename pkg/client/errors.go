package client

import "errors"

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when the retry budget is spent without a
	// successful call. The last classified error is wrapped alongside it.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrNoEndpoints is returned when the endpoint manager yields an empty
	// candidate list. This indicates a configuration problem.
	ErrNoEndpoints = errors.New("no endpoints available")
)
