// Package stats accumulates serving counters. Collectors are registered with
// the default prometheus registry and exposed through /metrics; the running
// points/sec rate mirrors what the counters hold.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var pointsServed = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "pcserver",
	Name:      "points_served_total",
	Help:      "Number of points emitted by read responses.",
})

var readDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "pcserver",
	Name:      "read_duration_seconds",
	Help:      "Wall time of read requests.",
	Buckets:   prometheus.DefBuckets,
})

var hierarchyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "pcserver",
	Name:      "hierarchy_duration_seconds",
	Help:      "Wall time of hierarchy builds, cache hits excluded.",
	Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
})

var cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pcserver",
	Name:      "hierarchy_cache_requests_total",
	Help:      "Hierarchy cache lookups by outcome.",
}, []string{"outcome"})

var pointsRate = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "pcserver",
	Name:      "points_per_second",
	Help:      "Running points/sec over all read responses.",
})

func init() {
	prometheus.MustRegister(pointsServed, readDuration, hierarchyDuration,
		cacheRequests, pointsRate)
}

var mu sync.Mutex
var totalPoints uint64
var totalElapsed time.Duration

// RecordRead accumulates one read response.
func RecordRead(npoints uint32, elapsed time.Duration) {
	readDuration.Observe(elapsed.Seconds())
	if npoints == 0 {
		return
	}
	pointsServed.Add(float64(npoints))

	mu.Lock()
	totalPoints += uint64(npoints)
	totalElapsed += elapsed
	rate := rateLocked()
	mu.Unlock()

	pointsRate.Set(rate)
}

func rateLocked() float64 {
	if totalElapsed <= 0 {
		return 0
	}
	return float64(totalPoints) / totalElapsed.Seconds()
}

// Rate returns the running points/sec.
func Rate() float64 {
	mu.Lock()
	defer mu.Unlock()
	return rateLocked()
}

// RecordHierarchy accumulates one fresh hierarchy build.
func RecordHierarchy(elapsed time.Duration) {
	hierarchyDuration.Observe(elapsed.Seconds())
}

func CacheHit()  { cacheRequests.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheRequests.WithLabelValues("miss").Inc() }
