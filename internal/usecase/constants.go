package usecase

import "time"

const (
	// DefaultAppendTimeout bounds a single append attempt including commit.
	DefaultAppendTimeout = 5 * time.Second

	// DefaultDedupRetention is how long processed event ids are remembered.
	DefaultDedupRetention = 30 * 24 * time.Hour

	// MinDedupRetention covers the longest provider redelivery window.
	MinDedupRetention = 72 * time.Hour

	// DefaultSummaryCacheTTL is how long a computed summary is served from cache.
	DefaultSummaryCacheTTL = 30 * time.Second

	// IdempotencyKeyTTL is how long HTTP idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// SummaryCacheKey is the cache key of the aggregate summary.
	SummaryCacheKey = "summary"
)
