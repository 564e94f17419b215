package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chunkdl"

// Chunk outcomes recorded by ChunkResults.
const (
	ResultDone      = "done"
	ResultRetried   = "retried"
	ResultAbandoned = "abandoned"
)

// Integrity outcomes recorded by IntegrityChecks.
const (
	IntegrityPassed  = "passed"
	IntegrityFailed  = "failed"
	IntegritySkipped = "skipped"
)

// Metrics groups the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ProbeDuration    prometheus.Histogram
	DownloadDuration prometheus.Histogram
	BytesTotal       prometheus.Counter
	ChunkResults     *prometheus.CounterVec
	ActiveWorkers    prometheus.Gauge
	QueueDepth       prometheus.Gauge
	QueueWaiting     prometheus.Gauge
	IntegrityChecks  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Time spent probing the resource",
			Buckets:   prometheus.DefBuckets,
		}),
		DownloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time from probe to verified artifact",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}),
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Total bytes persisted to chunk or output files",
		}),
		ChunkResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_results_total",
			Help:      "Chunk fetch outcomes by result",
		}, []string{"result"}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Workers currently fetching a chunk",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_jobs",
			Help:      "Chunk jobs pushed but not yet acknowledged",
		}),
		QueueWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_waiting_jobs",
			Help:      "Chunk jobs waiting for a worker",
		}),
		IntegrityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_checks_total",
			Help:      "Integrity verifications by outcome",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
