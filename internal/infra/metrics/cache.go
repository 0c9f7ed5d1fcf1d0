package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookups, cacheEvictions) }

var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Read-through cache lookups by cache and result (hit|miss).",
		},
		[]string{"cache", "result"},
	)
	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries dropped from a cache because the underlying row was written.",
		},
		[]string{"cache"},
	)
)

// IncCacheRequest counts one lookup, e.g. ("tenant", "hit").
func IncCacheRequest(cache, result string) {
	cacheLookups.WithLabelValues(norm(cache), norm(result)).Inc()
}

func IncCacheEviction(cache string) {
	cacheEvictions.WithLabelValues(norm(cache)).Inc()
}
