// Package metrics exports evaluation results and batch health as Prometheus
// metrics, either over HTTP or as a node-exporter textfile.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/timeline"
)

// TextfileName is the file written by WriteTextfile under its directory.
const TextfileName = "iasi.prom"

// Metrics holds the collectors on a private registry. A nil *Metrics
// discards every observation.
type Metrics struct {
	reg *prometheus.Registry

	aucPR         *prometheus.GaugeVec
	f1            *prometheus.GaugeVec
	bestThreshold *prometheus.GaugeVec
	falseAlarms   *prometheus.GaugeVec
	leadTime      *prometheus.GaugeVec
	brier         *prometheus.GaugeVec

	timelineDays *prometheus.GaugeVec
	lastIndex    *prometheus.GaugeVec

	batchRuns     prometheus.Counter
	batchErrors   *prometheus.CounterVec
	batchDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
}

func New() *Metrics {
	byWindow := []string{"event", "window_days"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iasi", Subsystem: "eval", Name: name, Help: help,
		}, byWindow)
	}
	m := &Metrics{
		reg:           prometheus.NewRegistry(),
		aucPR:         gauge("auc_pr", "Area under the precision-recall curve."),
		f1:            gauge("f1", "F1 at the best threshold."),
		bestThreshold: gauge("best_threshold", "Threshold maximizing F1."),
		falseAlarms:   gauge("false_alarms_per_month", "Alarm onsets after the last positive day, per month."),
		leadTime:      gauge("lead_time_days", "Mean days from the last alarm to a positive day."),
		brier:         gauge("brier", "Brier score of the index against the labels."),
		timelineDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iasi", Subsystem: "timeline", Name: "days",
			Help: "Number of scored days in the event timeline.",
		}, []string{"event"}),
		lastIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iasi", Subsystem: "timeline", Name: "last_index",
			Help: "Index value of the last scored day.",
		}, []string{"event"}),
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iasi", Subsystem: "batch", Name: "runs_total",
			Help: "Total batch runs started.",
		}),
		batchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iasi", Subsystem: "batch", Name: "errors_total",
			Help: "Total failed event evaluations.",
		}, []string{"event"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iasi", Subsystem: "batch", Name: "duration_seconds",
			Help:    "Histogram of batch run durations.",
			Buckets: prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iasi", Subsystem: "batch", Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last batch run without errors.",
		}),
	}
	m.reg.MustRegister(
		m.aucPR, m.f1, m.bestThreshold, m.falseAlarms, m.leadTime, m.brier,
		m.timelineDays, m.lastIndex,
		m.batchRuns, m.batchErrors, m.batchDuration, m.lastSuccess,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveReport records one window's metrics for event.
func (m *Metrics) ObserveReport(event string, r eval.Report) {
	if m == nil {
		return
	}
	w := strconv.Itoa(r.WindowDays)
	m.aucPR.WithLabelValues(event, w).Set(r.AUCPR)
	m.f1.WithLabelValues(event, w).Set(r.F1)
	m.bestThreshold.WithLabelValues(event, w).Set(r.BestThreshold)
	m.falseAlarms.WithLabelValues(event, w).Set(r.FalseAlarmPM)
	m.leadTime.WithLabelValues(event, w).Set(r.LeadTimeDays)
	m.brier.WithLabelValues(event, w).Set(r.Brier)
}

// ObserveTimeline records the size and last value of an event timeline.
func (m *Metrics) ObserveTimeline(event string, points []timeline.Point) {
	if m == nil {
		return
	}
	m.timelineDays.WithLabelValues(event).Set(float64(len(points)))
	if len(points) > 0 {
		m.lastIndex.WithLabelValues(event).Set(points[len(points)-1].Score)
	}
}

// BatchStarted counts a run.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batchRuns.Inc()
}

// EventFailed counts a failed event evaluation.
func (m *Metrics) EventFailed(event string) {
	if m == nil {
		return
	}
	m.batchErrors.WithLabelValues(event).Inc()
}

// BatchFinished observes the run duration and, when ok, stamps the last
// success time.
func (m *Metrics) BatchFinished(d time.Duration, ok bool, at time.Time) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
	if ok {
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// WriteTextfile atomically writes the registry to dir/iasi.prom.
func (m *Metrics) WriteTextfile(dir string) (string, error) {
	if m == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(dir, TextfileName)
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return "", fmt.Errorf("write textfile: %w", err)
	}
	return path, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
