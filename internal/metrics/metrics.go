// Package metrics exposes Prometheus counters for the cache's hit/miss
// disposition and the background capture/admission pipeline. Ambient
// observability, not a spec'd component (§2 frames it as "surrounding
// the core").
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter the cache reports.
type Metrics struct {
	CacheHits             prometheus.Counter
	CacheMisses           prometheus.Counter
	CacheDegrades         prometheus.Counter // orphan vector found, treated as miss (§4.1)
	EmbedErrors           prometheus.Counter
	IndexErrors           prometheus.Counter
	UpstreamErrors        prometheus.Counter
	CaptureOverflows      prometheus.Counter
	ParseFailures         prometheus.Counter
	BackgroundCommitted   prometheus.Counter
	BackgroundDiscarded   prometheus.Counter
}

// New registers and returns the cache's metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_cache_hits_total",
			Help: "Requests served from the semantic cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_cache_misses_total",
			Help: "Requests forwarded upstream.",
		}),
		CacheDegrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_cache_degrades_total",
			Help: "Vector matches with no content record, degraded to a miss.",
		}),
		EmbedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_embed_errors_total",
			Help: "Embedder calls that failed.",
		}),
		IndexErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_index_errors_total",
			Help: "VectorIndex calls that failed.",
		}),
		UpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_upstream_errors_total",
			Help: "Upstream completion calls that failed.",
		}),
		CaptureOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_capture_overflows_total",
			Help: "Stream captures abandoned for exceeding the capture byte cap.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_parse_failures_total",
			Help: "Captured streams that failed chunk parsing.",
		}),
		BackgroundCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_background_committed_total",
			Help: "Background writes admitted into the cache.",
		}),
		BackgroundDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semcache_background_discarded_total",
			Help: "Background writes discarded (incomplete capture, parse failure, or empty content).",
		}),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheDegrades,
		m.EmbedErrors, m.IndexErrors, m.UpstreamErrors,
		m.CaptureOverflows, m.ParseFailures,
		m.BackgroundCommitted, m.BackgroundDiscarded,
	)
	return m
}
