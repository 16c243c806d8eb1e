// Package metrics implements ports.MetricsRecorder on Prometheus. The
// collectors register against an injected registry so tests can use a fresh
// one, and the scrape handler is served from the main chi router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	commandsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	rateLimitDenials prometheus.Counter
	sweepRemoved     prometheus.Counter
	storeLatency     prometheus.Histogram
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "botgate_cache_hits_total",
			Help: "Config cache lookups served from memory",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "botgate_cache_misses_total",
			Help: "Config cache lookups that required a store round trip",
		}),
		commandsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "botgate_commands_total",
			Help: "Inbound events passed through admission",
		}),
		errorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "botgate_errors_total",
			Help: "Errors on the admission and sweep paths",
		}),
		rateLimitDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "botgate_rate_limit_denials_total",
			Help: "Events denied by the token bucket",
		}),
		sweepRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "botgate_sweep_removed_total",
			Help: "Expired grants removed by the sweeper",
		}),
		storeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "botgate_store_request_duration_seconds",
			Help:    "Settings store round trip latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) CacheHit()         { r.cacheHits.Inc() }
func (r *Recorder) CacheMiss()        { r.cacheMisses.Inc() }
func (r *Recorder) CommandProcessed() { r.commandsTotal.Inc() }
func (r *Recorder) ErrorOccurred()    { r.errorsTotal.Inc() }
func (r *Recorder) RateLimitDenied()  { r.rateLimitDenials.Inc() }

func (r *Recorder) SweepRemoved(count int) {
	r.sweepRemoved.Add(float64(count))
}

func (r *Recorder) ObserveStoreLatency(d time.Duration) {
	r.storeLatency.Observe(d.Seconds())
}
