package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
)

const metricsNamespace = "barrier"

// Metrics exposes the state of the barrier run as Prometheus metrics.
type Metrics struct {
	participants    prometheus.Gauge
	quorum          prometheus.Gauge
	passed          prometheus.Gauge
	elapsed         prometheus.Gauge
	valueMax        prometheus.Gauge
	valueMin        prometheus.Gauge
	valueMean       prometheus.Gauge
	uniqueAddresses prometheus.Gauge
	aggregations    prometheus.Counter
	fetchDuration   prometheus.Histogram
	fetchFailures   prometheus.Counter
	failures        *prometheus.CounterVec
	leader          prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		participants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "participants",
			Help: "Count of participants in the last membership snapshot.",
		}),
		quorum: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "quorum",
			Help: "Count of participants required to pass the barrier.",
		}),
		passed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "passed",
			Help: "1 if the barrier passed, 0 otherwise.",
		}),
		elapsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "elapsed_seconds",
			Help: "Time from the barrier entry to the pass.",
		}),
		valueMax: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "value_max",
			Help: "Maximum of participant values, reported by the leader.",
		}),
		valueMin: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "value_min",
			Help: "Minimum of participant values, reported by the leader.",
		}),
		valueMean: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "value_mean",
			Help: "Mean of participant values, reported by the leader.",
		}),
		uniqueAddresses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "unique_addresses",
			Help: "Count of distinct participant addresses, reported by the leader.",
		}),
		aggregations: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "aggregations_total",
			Help: "Count of aggregation rounds done by the leader.",
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "metadata_fetch_duration_seconds",
			Help:    "Duration of the metadata fetching in one aggregation round.",
			Buckets: prometheus.DefBuckets,
		}),
		fetchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "metadata_fetch_failures_total",
			Help: "Count of participants whose metadata could not be fetched.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "failures_total",
			Help: "Count of fatal errors by type.",
		}, []string{"type"}),
		leader: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "leader",
			Help: "1 if this participant is the announced leader.",
		}),
	}
}

// SetQuorum sets the count of participants required to pass the barrier.
func (m *Metrics) SetQuorum(quorum int) {
	m.quorum.Set(float64(quorum))
}

func (m *Metrics) Registered(context.Context, string, participant.Payload) {}

func (m *Metrics) Waiting(_ context.Context, ready, total int) {
	m.participants.Set(float64(ready))
	m.quorum.Set(float64(total))
}

func (m *Metrics) Aggregated(_ context.Context, r aggregation.Report) {
	m.aggregations.Inc()
	m.fetchDuration.Observe(r.Elapsed.Seconds())
	m.uniqueAddresses.Set(float64(r.UniqueAddresses))
	if r.Values > 0 {
		m.valueMax.Set(r.Max)
		m.valueMin.Set(r.Min)
		m.valueMean.Set(r.Mean)
	}
}

func (m *Metrics) LeaderMetadata(context.Context, string, *participant.Payload) {}

func (m *Metrics) MetadataFetchFailed(context.Context, string, error) {
	m.fetchFailures.Inc()
}

func (m *Metrics) Passed(_ context.Context, count int, elapsed time.Duration) {
	m.participants.Set(float64(count))
	m.passed.Set(1)
	m.elapsed.Set(elapsed.Seconds())
}

func (m *Metrics) LeaderAnnounced(context.Context, string) {
	m.leader.Set(1)
}

func (m *Metrics) Fatal(_ context.Context, err error) {
	m.failures.WithLabelValues(ErrorType(err)).Inc()
}
