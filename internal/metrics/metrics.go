// Package metrics exposes Prometheus instruments for scan handling.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"qrattendance/internal/attendance"
)

// Scans counts classified scans and their latency.
type Scans struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewScans registers the scan instruments on reg.
func NewScans(reg prometheus.Registerer) *Scans {
	f := promauto.With(reg)
	return &Scans{
		total: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_scans_total",
			Help: "Scans handled by the classifier, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_classify_duration_seconds",
			Help:    "Time spent classifying a scan.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
	}
}

// ObserveScan implements attendance.Observer.
func (s *Scans) ObserveScan(mode attendance.Mode, outcome string, elapsed time.Duration) {
	s.total.WithLabelValues(string(mode), outcome).Inc()
	s.duration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}
