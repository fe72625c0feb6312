// Package metrics exposes Prometheus instrumentation for the sync and alert
// pipelines and serves them over a dedicated HTTP listener.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal      *prometheus.CounterVec
	syncDuration       prometheus.Histogram
	objectsSyncedTotal *prometheus.CounterVec
	vaultErrorsTotal   prometheus.Counter

	alertRunsTotal        *prometheus.CounterVec
	alertsSentTotal       prometheus.Counter
	dispatchFailuresTotal prometheus.Counter

	metricsOnce       sync.Once
	metricsRegistered bool
)

// Recorder provides methods to record pipeline metrics.
type Recorder struct{}

// NewRecorder creates a new Recorder. Recording is a no-op until InitMetrics
// has run.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// InitMetrics initializes all Prometheus metrics.
// This should be called once at startup if the metrics server is enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultwatch_sync_runs_total",
				Help: "Total number of inventory sync runs",
			},
			[]string{"status"},
		)

		syncDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultwatch_sync_duration_seconds",
				Help:    "Duration of inventory sync runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		objectsSyncedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultwatch_objects_synced_total",
				Help: "Total number of vault objects written by sync",
			},
			[]string{"object_type"},
		)

		vaultErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultwatch_vault_errors_total",
				Help: "Total number of isolated per-vault or per-subscription failures",
			},
		)

		alertRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultwatch_alert_runs_total",
				Help: "Total number of alert evaluation runs",
			},
			[]string{"status"},
		)

		alertsSentTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultwatch_alerts_sent_total",
				Help: "Total number of expiration alerts sent",
			},
		)

		dispatchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultwatch_alert_dispatch_failures_total",
				Help: "Total number of failed alert dispatches",
			},
		)

		metricsRegistered = true
	})
}

// RecordSyncRun records a completed sync run.
func (r *Recorder) RecordSyncRun(status string, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	if syncRunsTotal != nil {
		syncRunsTotal.WithLabelValues(status).Inc()
	}
	if syncDuration != nil {
		syncDuration.Observe(durationSeconds)
	}
}

// RecordObjectsSynced records objects written during sync.
func (r *Recorder) RecordObjectsSynced(objectType string, count int) {
	if !metricsRegistered || objectsSyncedTotal == nil || count <= 0 {
		return
	}
	objectsSyncedTotal.WithLabelValues(objectType).Add(float64(count))
}

// RecordVaultError records one isolated fetch failure.
func (r *Recorder) RecordVaultError() {
	if !metricsRegistered || vaultErrorsTotal == nil {
		return
	}
	vaultErrorsTotal.Inc()
}

// RecordAlertRun records a completed alert evaluation run.
func (r *Recorder) RecordAlertRun(status string) {
	if !metricsRegistered || alertRunsTotal == nil {
		return
	}
	alertRunsTotal.WithLabelValues(status).Inc()
}

// RecordAlertsSent records successfully dispatched alerts.
func (r *Recorder) RecordAlertsSent(count int) {
	if !metricsRegistered || alertsSentTotal == nil || count <= 0 {
		return
	}
	alertsSentTotal.Add(float64(count))
}

// RecordDispatchFailure records one failed recipient dispatch.
func (r *Recorder) RecordDispatchFailure() {
	if !metricsRegistered || dispatchFailuresTotal == nil {
		return
	}
	dispatchFailuresTotal.Inc()
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
