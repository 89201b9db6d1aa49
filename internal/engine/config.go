package engine

import "time"

// DefaultEnrichRetryPolicy paces the enrichment calls of a catalog ingest.
func DefaultEnrichRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		MaxGuardedRetries: 2,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		Multiplier:        2.0,
		Jitter:            true,
	}
}

// DefaultOracleTimeout bounds every oracle call made while serving a turn.
const DefaultOracleTimeout = 30 * time.Second
