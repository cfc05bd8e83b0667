package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StarLedger.
type Metrics struct {
	// --- Chain ---
	LedgerHeight       prometheus.Gauge
	BlocksAppended     *prometheus.CounterVec
	AppendRejected     *prometheus.CounterVec
	AppendDuration     prometheus.Histogram
	ValidationDuration prometheus.Histogram
	IntegrityErrors    prometheus.Gauge

	// --- Submission protocol ---
	Submissions *prometheus.CounterVec

	// --- Replay guard ---
	ReplayRejected *prometheus.CounterVec
	ReplayErrors   prometheus.Counter

	// --- Store & stream ---
	StoreErrors     *prometheus.CounterVec
	PublishDrops    prometheus.Counter
	PublishedBlocks prometheus.Counter

	// --- Postgres mirror ---
	MirrorDrops    prometheus.Counter
	MirrorWritten  prometheus.Counter
	MirrorBatchDur prometheus.Histogram
	MirrorErrors   *prometheus.CounterVec

	// --- API surfaces ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
	}

	return &Metrics{
		LedgerHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "star_ledger_height",
			Help: "Height of the chain tip",
		}),

		BlocksAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_blocks_appended_total",
			Help: "Blocks sealed and appended",
		}, []string{"kind"}),

		AppendRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_append_rejected_total",
			Help: "Appends refused (encode, corruption, store)",
		}, []string{"reason"}),

		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "star_append_duration_seconds",
			Help:    "Time to seal, validate, persist and push one block",
			Buckets: latencyBuckets,
		}),

		ValidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "star_chain_validation_duration_seconds",
			Help:    "Time to validate the whole chain",
			Buckets: latencyBuckets,
		}),

		IntegrityErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "star_chain_integrity_errors",
			Help: "Integrity records found by the last validation",
		}),

		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_submissions_total",
			Help: "Star submissions by outcome",
		}, []string{"outcome"}),

		ReplayRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_replay_rejected_total",
			Help: "Challenges refused as already used, by tier",
		}, []string{"tier"}),

		ReplayErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "star_replay_tier2_errors_total",
			Help: "Durable replay lookups that failed",
		}),

		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_store_errors_total",
			Help: "Block store errors",
		}, []string{"op"}),

		PublishDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "star_publish_drops_total",
			Help: "Block events dropped due to a full publish channel",
		}),

		PublishedBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "star_published_blocks_total",
			Help: "Block events published to NATS",
		}),

		MirrorDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "star_mirror_drops_total",
			Help: "Blocks not queued for the Postgres mirror due to a full channel",
		}),

		MirrorWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "star_mirror_blocks_written_total",
			Help: "Blocks written to the Postgres mirror",
		}),

		MirrorBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "star_mirror_batch_duration_seconds",
			Help:    "Time to write one mirror batch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		MirrorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_mirror_errors_total",
			Help: "Mirror write errors by stage",
		}, []string{"stage"}),

		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "star_api_requests_total",
			Help: "API requests",
		}, []string{"surface", "method", "status"}),

		APIDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "star_api_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"surface", "method"}),
	}
}
