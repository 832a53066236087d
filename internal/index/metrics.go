package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdbscope",
		Subsystem: "index",
		Name:      "cache_hits_total",
		Help:      "Lookups answered from an index cache",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdbscope",
		Subsystem: "index",
		Name:      "cache_misses_total",
		Help:      "Lookups that fell through to a provider scan",
	}, []string{"cache"})

	recordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdbscope",
		Subsystem: "index",
		Name:      "records_skipped_total",
		Help:      "Malformed provider records dropped during enumeration",
	}, []string{"kind"})
)

// Cache labels
const (
	symbolCacheName = "symbol"
	structCacheName = "struct"
)
