package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/revledger/internal/usecase"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Allocation metrics
	EventsProcessed *prometheus.CounterVec
	ProcessDuration *prometheus.HistogramVec
	AppendRetries   prometheus.Counter

	// Verification metrics
	Verifications      *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram
	ChainLength        prometheus.Gauge
	ChainValid         prometheus.Gauge
	LastVerifiedSecond prometheus.Gauge

	// Notification metrics
	OutboxPublished *prometheus.CounterVec
	AlertsSent      *prometheus.CounterVec

	// Maintenance metrics
	DedupPruned prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revledger_events_processed_total",
				Help: "Total payment events processed by outcome",
			},
			[]string{"outcome"},
		),
		ProcessDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revledger_event_process_duration_seconds",
				Help:    "Duration of event processing including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		AppendRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "revledger_append_retries_total",
			Help: "Total append attempts beyond the first",
		}),

		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revledger_verifications_total",
				Help: "Total chain verifications by result",
			},
			[]string{"result"},
		),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "revledger_verify_duration_seconds",
			Help:    "Duration of chain verification",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
		}),
		ChainLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "revledger_chain_verified_entries",
			Help: "Entries verified by the last verification",
		}),
		ChainValid: factory.NewGauge(prometheus.GaugeOpts{
			Name: "revledger_chain_valid",
			Help: "1 when the last verification succeeded, 0 otherwise",
		}),
		LastVerifiedSecond: factory.NewGauge(prometheus.GaugeOpts{
			Name: "revledger_last_verification_timestamp_seconds",
			Help: "Unix time of the last verification",
		}),

		OutboxPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revledger_outbox_published_total",
				Help: "Total outbox events published by type",
			},
			[]string{"event_type"},
		),
		AlertsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revledger_alerts_total",
				Help: "Total operator alerts by severity",
			},
			[]string{"severity"},
		),

		DedupPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "revledger_dedup_pruned_total",
			Help: "Total processed-event marks pruned",
		}),
	}
}

// ObserveOutcome implements usecase.Metrics.
func (m *Metrics) ObserveOutcome(status usecase.OutcomeStatus, duration time.Duration) {
	m.EventsProcessed.WithLabelValues(string(status)).Inc()
	m.ProcessDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// IncAppendRetry implements usecase.Metrics.
func (m *Metrics) IncAppendRetry() {
	m.AppendRetries.Inc()
}

// ObserveVerification implements usecase.Metrics.
func (m *Metrics) ObserveVerification(valid bool, entries int64, duration time.Duration) {
	result := "valid"
	validValue := 1.0
	if !valid {
		result = "broken"
		validValue = 0
	}

	m.Verifications.WithLabelValues(result).Inc()
	m.VerifyDuration.Observe(duration.Seconds())
	m.ChainLength.Set(float64(entries))
	m.ChainValid.Set(validValue)
	m.LastVerifiedSecond.SetToCurrentTime()
}

// IncPublished counts an outbox event handed to the publisher.
func (m *Metrics) IncPublished(eventType string) {
	m.OutboxPublished.WithLabelValues(eventType).Inc()
}

// IncAlert counts an operator alert.
func (m *Metrics) IncAlert(severity string) {
	m.AlertsSent.WithLabelValues(severity).Inc()
}

// AddDedupPruned counts processed-event marks removed by pruning.
func (m *Metrics) AddDedupPruned(n int64) {
	m.DedupPruned.Add(float64(n))
}
