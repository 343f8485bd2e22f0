package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sprite_recovery"

// Save results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Recorder holds all recovery metrics.
type Recorder struct {
	saves         *prometheus.CounterVec
	saveDuration  prometheus.Histogram
	bytesWritten  prometheus.Counter
	removes       *prometheus.CounterVec
	restores      *prometheus.CounterVec
	sessions      *prometheus.GaugeVec
	pruned        prometheus.Counter
	probeFailures prometheus.Counter
	pending       prometheus.Gauge
}

// NewRecorder creates the metrics and registers them with reg. A nil reg
// creates unregistered metrics.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_saves_total",
			Help:      "Document backup saves by result.",
		}, []string{"result"}),
		saveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_save_duration_seconds",
			Help:      "Time spent encoding and publishing one backup generation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_written_total",
			Help:      "Bytes written into published backup generations.",
		}),
		removes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_removes_total",
			Help:      "Document backup removals by result.",
		}, []string{"result"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore attempts by layout and result.",
		}, []string{"mode", "result"}),
		sessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions found by the last startup scan, by state.",
		}, []string{"state"}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_pruned_total",
			Help:      "Session directories deleted by pruning.",
		}),
		probeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_probe_failures_total",
			Help:      "Liveness probes that could not run.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observer_pending_documents",
			Help:      "Documents waiting for a debounced backup write.",
		}),
	}
}

// ObserveSave records one save attempt.
func (r *Recorder) ObserveSave(result string, elapsed time.Duration, bytes int64) {
	if r == nil {
		return
	}
	r.saves.WithLabelValues(result).Inc()
	if result == ResultOK {
		r.saveDuration.Observe(elapsed.Seconds())
		r.bytesWritten.Add(float64(bytes))
	}
}

// ObserveRemove records one backup removal.
func (r *Recorder) ObserveRemove(result string) {
	if r == nil {
		return
	}
	r.removes.WithLabelValues(result).Inc()
}

// ObserveRestore records one restore attempt.
func (r *Recorder) ObserveRestore(mode, result string) {
	if r == nil {
		return
	}
	r.restores.WithLabelValues(mode, result).Inc()
}

// SetSessions sets the session count for state.
func (r *Recorder) SetSessions(state string, n int) {
	if r == nil {
		return
	}
	r.sessions.WithLabelValues(state).Set(float64(n))
}

// AddPruned counts deleted session directories.
func (r *Recorder) AddPruned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.pruned.Add(float64(n))
}

// IncProbeFailure counts a failed liveness probe.
func (r *Recorder) IncProbeFailure() {
	if r == nil {
		return
	}
	r.probeFailures.Inc()
}

// SetPending sets the observer queue length.
func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
