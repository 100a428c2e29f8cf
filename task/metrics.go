package task

import (
	"time"

	"github.com/colorfulnotion/fraudproof/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespaceFraudProof = "fraudproof"

type MetricsCollector struct {
	submitted    prometheus.Counter
	finished     *prometheus.CounterVec
	rowsSkipped  *prometheus.CounterVec
	taskDuration prometheus.Histogram
	bundles      prometheus.Histogram
}

// NewMetricsCollector registers the task collectors with reg. Tests pass a
// fresh prometheus.NewRegistry().
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name:      "tasks_submitted_total",
			Namespace: namespaceFraudProof,
			Help:      "number of fraud-proof tasks submitted",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "tasks_finished_total",
			Namespace: namespaceFraudProof,
			Help:      "number of tasks that reached a terminal status",
		}, []string{"status"}),
		rowsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "evidence_rows_skipped_total",
			Namespace: namespaceFraudProof,
			Help:      "sibling rows dropped during evidence assembly, by error kind and code",
		}, []string{"kind", "code"}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "task_duration_seconds",
			Namespace: namespaceFraudProof,
			Help:      "time from picking up a task to its terminal status",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		bundles: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "task_evidence_bundles",
			Namespace: namespaceFraudProof,
			Help:      "evidence bundles assembled per task",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		}),
	}
}

func (m *MetricsCollector) TaskSubmitted() {
	m.submitted.Inc()
}

func (m *MetricsCollector) TaskFinished(status types.TaskStatus, elapsed time.Duration, bundles int) {
	m.finished.WithLabelValues(status.String()).Inc()
	m.taskDuration.Observe(elapsed.Seconds())
	m.bundles.Observe(float64(bundles))
}

func (m *MetricsCollector) RowSkipped(kind, code string) {
	m.rowsSkipped.WithLabelValues(kind, code).Inc()
}

// storeCollector reports the task count per status at scrape time.
type storeCollector struct {
	store *Store
	desc  *prometheus.Desc
}

// NewStoreCollector exposes the store's per-status counts as
// fraudproof_tasks{status=...}.
func NewStoreCollector(store *Store) prometheus.Collector {
	return &storeCollector{
		store: store,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespaceFraudProof, "", "tasks"),
			"tasks held by the service, by status",
			[]string{"status"}, nil,
		),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.store.GetStats()
	for _, s := range []types.TaskStatus{types.TaskPending, types.TaskRunning, types.TaskCompleted, types.TaskFailed} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(stats.Counts[s]), s.String())
	}
}
