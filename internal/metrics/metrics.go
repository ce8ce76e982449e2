// Package metrics exposes statebak's backup activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statebak"

// Metrics holds the collectors updated by the backup manager. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	lockWait       prometheus.Histogram
	pendingFiles   prometheus.Gauge
	lastSuccess    prometheus.Gauge
	workerPanics   prometheus.Counter
	droppedOnFlush prometheus.Counter
	filesBackedUp  prometheus.Counter
}

// New registers the collectors with reg. Passing prometheus.DefaultRegisterer
// makes them visible on the server returned by NewServer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_cycles_total",
			Help:      "Backup cycles by outcome",
		}, []string{"status"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_cycle_duration_seconds",
			Help:      "Duration of each backup cycle, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the repository lock",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}),
		pendingFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_files",
			Help:      "Files queued for the next backup cycle",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that left nothing to retry",
		}),
		workerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_panics_total",
			Help:      "Panics recovered by the background worker",
		}),
		droppedOnFlush: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_files_total",
			Help:      "Files drained from the queue whose cycle failed and were not re-queued",
		}),
		filesBackedUp: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_pushed_total",
			Help:      "Files included in pushed commits",
		}),
	}
}

// ObserveCycle records the outcome of one backup cycle.
func (m *Metrics) ObserveCycle(status string, succeeded bool, files int, duration, lockWait time.Duration) {
	if m == nil {
		return
	}

	m.cyclesTotal.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(duration.Seconds())
	if lockWait > 0 {
		m.lockWait.Observe(lockWait.Seconds())
	}
	if succeeded {
		m.lastSuccess.SetToCurrentTime()
	}
	if status == "pushed" {
		m.filesBackedUp.Add(float64(files))
	}
}

// SetPending reports the current queue length.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingFiles.Set(float64(n))
}

// WorkerPanic counts a panic recovered by the worker loop.
func (m *Metrics) WorkerPanic() {
	if m == nil {
		return
	}
	m.workerPanics.Inc()
}

// Dropped counts files lost to a failed cycle.
func (m *Metrics) Dropped(n int) {
	if m == nil {
		return
	}
	m.droppedOnFlush.Add(float64(n))
}
