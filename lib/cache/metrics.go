package cache

import "github.com/VictoriaMetrics/metrics"

var (
	memoryHits        = metrics.NewCounter(`ddoc_cache_requests_total{tier="memory",result="hit"}`)
	memoryMisses      = metrics.NewCounter(`ddoc_cache_requests_total{tier="memory",result="miss"}`)
	distributedHits   = metrics.NewCounter(`ddoc_cache_requests_total{tier="distributed",result="hit"}`)
	distributedMisses = metrics.NewCounter(`ddoc_cache_requests_total{tier="distributed",result="miss"}`)
	distributedErrors = metrics.NewCounter(`ddoc_cache_requests_total{tier="distributed",result="error"}`)
)

// recordDistributed counts the outcome of a distributed read
func recordDistributed(loaded bool, err error) {
	switch {
	case err != nil:
		distributedErrors.Inc()
	case loaded:
		distributedHits.Inc()
	default:
		distributedMisses.Inc()
	}
}

// recordMemory counts the outcome of a memory read
func recordMemory(loaded bool) {
	if loaded {
		memoryHits.Inc()
	} else {
		memoryMisses.Inc()
	}
}
