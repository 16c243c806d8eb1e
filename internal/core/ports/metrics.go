package ports

import "time"

// MetricsRecorder receives bookkeeping signals from the hot path. Recording
// must never block or fail the caller.
type MetricsRecorder interface {
	CacheHit()
	CacheMiss()
	CommandProcessed()
	ErrorOccurred()
	RateLimitDenied()
	SweepRemoved(count int)
	ObserveStoreLatency(d time.Duration)
}
