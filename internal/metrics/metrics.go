// Package metrics provides Prometheus metrics for matching, attendance and
// notification delivery.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all Prometheus metrics of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Matching
	FacesDetected   prometheus.Counter
	MatchesAccepted prometheus.Counter
	MatchDuration   prometheus.Histogram
	MatchFailures   *prometheus.CounterVec // reason: decode, timeout, detector, store

	// Attendance
	SessionsCreated  *prometheus.CounterVec // method
	SessionConflicts prometheus.Counter
	RecordsWritten   *prometheus.CounterVec // status

	// Notifications
	NotificationsTotal *prometheus.CounterVec // outcome: sent, failed, skipped, duplicate
	NotifyDuration     prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the metrics and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.FacesDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_faces_detected_total",
		Help: "Total number of faces detected in submitted class images",
	})
	m.MatchesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_matches_accepted_total",
		Help: "Total number of face matches at or above the similarity threshold",
	})
	m.MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_match_duration_seconds",
		Help:    "Time taken to match one class image against the signature store",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})
	m.MatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_match_failures_total",
		Help: "Total number of failed matching runs by reason",
	}, []string{"reason"})

	m.SessionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_created_total",
		Help: "Total number of attendance sessions created by method",
	}, []string{"method"})
	m.SessionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_session_conflicts_total",
		Help: "Total number of rejected duplicate session submissions",
	})
	m.RecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_written_total",
		Help: "Total number of attendance records written by status",
	}, []string{"status"})

	m.NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_notifications_total",
		Help: "Total number of absence notifications by outcome",
	}, []string{"outcome"})
	m.NotifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_notification_duration_seconds",
		Help:    "Time taken to deliver one absence notification",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.FacesDetected.Collect(ch)
	m.MatchesAccepted.Collect(ch)
	m.MatchDuration.Collect(ch)
	m.MatchFailures.Collect(ch)
	m.SessionsCreated.Collect(ch)
	m.SessionConflicts.Collect(ch)
	m.RecordsWritten.Collect(ch)
	m.NotificationsTotal.Collect(ch)
	m.NotifyDuration.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.FacesDetected.Describe(ch)
	m.MatchesAccepted.Describe(ch)
	m.MatchDuration.Describe(ch)
	m.MatchFailures.Describe(ch)
	m.SessionsCreated.Describe(ch)
	m.SessionConflicts.Describe(ch)
	m.RecordsWritten.Describe(ch)
	m.NotificationsTotal.Describe(ch)
	m.NotifyDuration.Describe(ch)
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordMatch records one completed matching run.
func (m *Metrics) RecordMatch(faces, accepted int, duration time.Duration) {
	if m == nil {
		return
	}
	m.FacesDetected.Add(float64(faces))
	m.MatchesAccepted.Add(float64(accepted))
	m.MatchDuration.Observe(duration.Seconds())
}

// RecordMatchFailure records a failed matching run.
func (m *Metrics) RecordMatchFailure(reason string) {
	if m == nil {
		return
	}
	m.MatchFailures.WithLabelValues(reason).Inc()
}

// RecordSession records a stored session and its record counts.
func (m *Metrics) RecordSession(method string, present, absent int) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(method).Inc()
	m.RecordsWritten.WithLabelValues("PRESENT").Add(float64(present))
	m.RecordsWritten.WithLabelValues("ABSENT").Add(float64(absent))
}

// RecordConflict records a rejected duplicate submission.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.SessionConflicts.Inc()
}

// RecordNotification records one notification outcome.
func (m *Metrics) RecordNotification(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.NotifyDuration.Observe(duration.Seconds())
	}
}
