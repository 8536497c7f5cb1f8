package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportsTotal counts finished imports by result ("ok", "invalid_source", "fetch", "decoding", "store", "cancelled").
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistvault_imports_total",
		Help: "Total number of finished playlist imports",
	}, []string{"result"})

	// ImportDuration observes wall time from fetch start to publish or rollback.
	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playlistvault_import_duration_seconds",
		Help:    "Duration of playlist imports",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// ImportsInFlight tracks imports currently running in this process
	ImportsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistvault_imports_in_flight",
		Help: "Number of playlist imports in progress",
	})

	// ChannelsImported counts channels of successfully published playlists
	ChannelsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playlistvault_channels_imported_total",
		Help: "Total number of channels published by imports",
	})

	// SubBatchesCommitted counts InsertChannels transactions
	SubBatchesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playlistvault_sub_batches_committed_total",
		Help: "Total number of channel sub-batches committed",
	})
)

// ImportStarted marks an import in flight and returns a func that records its end.
func ImportStarted() (finish func(result string, channels int)) {
	start := time.Now()
	ImportsInFlight.Inc()
	return func(result string, channels int) {
		ImportsInFlight.Dec()
		ImportDuration.Observe(time.Since(start).Seconds())
		ImportsTotal.WithLabelValues(result).Inc()
		if result == "ok" {
			ChannelsImported.Add(float64(channels))
		}
	}
}

// RecordSubBatch increments the committed sub-batch counter
func RecordSubBatch() {
	SubBatchesCommitted.Inc()
}
