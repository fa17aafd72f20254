package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var defaultRunBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}

// Manager owns the ingestion metrics. A nil or disabled Manager ignores every call.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	filesProcessed *prometheus.CounterVec
	filesSkipped   *prometheus.CounterVec
	regionsSkipped *prometheus.CounterVec
	recordsWritten prometheus.Counter
	rowsFailed     prometheus.Counter
	negativeDeltas prometheus.Counter

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewManager creates a metrics manager on a private registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "enargas",
		subsystem:        "ingestion",
		histogramBuckets: defaultRunBuckets,
		enabled:          true,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.filesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_processed_total",
		Help:      "Files ingested, by final ledger status",
	}, []string{"status"})

	m.filesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_skipped_total",
		Help:      "Files left out of a run, by reason",
	}, []string{"reason"})

	m.regionsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "regions_skipped_total",
		Help:      "Region columns left out of a file, by reason",
	}, []string{"reason"})

	m.recordsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_written_total",
		Help:      "Statistics rows upserted",
	})

	m.rowsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_failed_total",
		Help:      "Statistics rows rejected by the store",
	})

	m.negativeDeltas = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "negative_deltas_total",
		Help:      "Same-month daily values below zero (counter went backwards)",
	})

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Ingestion runs, by result",
	}, []string{"result"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of an ingestion run",
		Buckets:   m.histogramBuckets,
	})

	m.lastSuccess = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run that finished without a fatal error",
	})
}

func (m *Manager) active() bool { return m != nil && m.enabled }

func (m *Manager) RecordFileProcessed(status string) {
	if m.active() {
		m.filesProcessed.WithLabelValues(status).Inc()
	}
}

func (m *Manager) RecordFileSkipped(reason string) {
	if m.active() {
		m.filesSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) RecordRegionSkipped(reason string) {
	if m.active() {
		m.regionsSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) AddRecordsWritten(n int) {
	if m.active() && n > 0 {
		m.recordsWritten.Add(float64(n))
	}
}

func (m *Manager) AddRowsFailed(n int) {
	if m.active() && n > 0 {
		m.rowsFailed.Add(float64(n))
	}
}

func (m *Manager) RecordNegativeDelta() {
	if m.active() {
		m.negativeDeltas.Inc()
	}
}

// ObserveRun records a finished run. finishedAt stamps the last-success gauge when ok.
func (m *Manager) ObserveRun(duration time.Duration, ok bool, finishedAt time.Time) {
	if !m.active() {
		return
	}
	m.runDuration.Observe(duration.Seconds())
	if ok {
		m.runs.WithLabelValues("success").Inc()
		m.lastSuccess.Set(float64(finishedAt.Unix()))
		return
	}
	m.runs.WithLabelValues("failure").Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry backing the manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the current values to a Pushgateway, replacing the job's previous group.
func (m *Manager) Push(ctx context.Context, gatewayURL, job string) error {
	if !m.active() || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	return nil
}
