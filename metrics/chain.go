// Package metrics exposes Prometheus collectors for the chain manager and
// its collaborators.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksAcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbowanec",
		Subsystem: "chain",
		Name:      "blocks_accepted_total",
		Help:      "Count of blocks accepted onto the main chain or as alternative blocks.",
	}, []string{"route"})

	blocksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbowanec",
		Subsystem: "chain",
		Name:      "blocks_rejected_total",
		Help:      "Count of blocks rejected during validation, by failure kind.",
	}, []string{"kind"})

	appendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "karbowanec",
		Subsystem: "chain",
		Name:      "append_duration_seconds",
		Help:      "Duration of AddBlock, by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	reorgsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "karbowanec",
		Subsystem: "chain",
		Name:      "reorgs_total",
		Help:      "Count of completed reorgs.",
	})

	reorgDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "karbowanec",
		Subsystem: "chain",
		Name:      "reorg_depth_blocks",
		Help:      "Number of main-chain blocks disconnected per reorg.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1..512
	})

	currentHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "karbowanec",
		Subsystem: "chain",
		Name:      "height",
		Help:      "Current main-chain height.",
	})

	mempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "karbowanec",
		Subsystem: "pool",
		Name:      "size",
		Help:      "Number of transactions currently held in the memory pool.",
	})
)

// ObserveAppend records the outcome and duration of one AddBlock call.
// outcome is one of "added", "added_as_alt", "already_exists", "rejected".
func ObserveAppend(outcome string, started time.Time) {
	appendDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	switch outcome {
	case "added", "added_as_alt":
		blocksAcceptedTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRejection records a block rejected during validation, labeled by
// its VerificationKind string.
func ObserveRejection(kind string) {
	blocksRejectedTotal.WithLabelValues(kind).Inc()
}

// ObserveReorg records a completed reorg that disconnected depth main-chain
// blocks.
func ObserveReorg(depth int) {
	reorgsTotal.Inc()
	reorgDepth.Observe(float64(depth))
}

// SetHeight publishes the current main-chain height.
func SetHeight(height uint64) {
	currentHeight.Set(float64(height))
}

// SetMempoolSize publishes the current pool size.
func SetMempoolSize(size int) {
	mempoolSize.Set(float64(size))
}
