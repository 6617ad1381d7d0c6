// Package metrics holds the Prometheus instruments for the pose pipeline.
// A nil *Manager is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used with CounterFramesDropped.
const (
	DropNormalization = "normalization"
	DropInference     = "inference"
	DropTraining      = "training"
	DropStale         = "stale_generation"
	DropBusy          = "inference_busy"
	DropStopped       = "session_stopped"
)

type Manager struct {
	// counters
	CounterFramesReceived   prometheus.Counter
	CounterFramesDropped    *prometheus.CounterVec
	CounterClassifications  *prometheus.CounterVec
	CounterReps             prometheus.Counter
	CounterFeedback         *prometheus.CounterVec
	CounterTrainingRuns     *prometheus.CounterVec
	CounterTelemetryDropped prometheus.Counter

	// gauges
	GaugeTraining         prometheus.Gauge
	GaugeRepCount         prometheus.Gauge
	GaugeAverageFormScore prometheus.Gauge
	GaugeTelemetryClients prometheus.Gauge

	// histograms
	HistInferenceDuration prometheus.Histogram
	HistTrainingDuration  prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("physiotrack", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("physiotrack", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterFramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received",
			Help:      "The total number of pose frames received",
		}),
		CounterFramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped",
			Help:      "Pose frames or classifications dropped, by reason",
		}, []string{"reason"}),
		CounterClassifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "classifications",
			Help:      "Completed classifications, by exercise type",
		}, []string{"exercise_type"}),
		CounterReps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reps_completed",
			Help:      "The total number of completed repetitions",
		}),
		CounterFeedback: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_emitted",
			Help:      "Form feedback messages emitted, by severity",
		}, []string{"severity"}),
		CounterTrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "training_runs",
			Help:      "Training runs, by final status",
		}, []string{"status"}),
		CounterTelemetryDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telemetry_snapshots_dropped",
			Help:      "Metrics snapshots dropped because a telemetry client was slow",
		}),

		GaugeTraining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "training_in_progress",
			Help:      "1 while a training run holds the model",
		}),
		GaugeRepCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_rep_count",
			Help:      "Repetitions counted in the current session",
		}),
		GaugeAverageFormScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_average_form_score",
			Help:      "Rolling average form score (0-100) of the current session",
		}),
		GaugeTelemetryClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telemetry_clients",
			Help:      "Connected telemetry stream clients",
		}),

		HistInferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inference_duration_seconds",
			Help:      "Duration of one classifier pass in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		HistTrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "training_duration_seconds",
			Help:      "Duration of one training run in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}
}

// FrameReceived counts one incoming pose frame.
func (m *Manager) FrameReceived() {
	if m == nil {
		return
	}
	m.CounterFramesReceived.Inc()
}

// FrameDropped counts one dropped frame or discarded result.
func (m *Manager) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.CounterFramesDropped.WithLabelValues(reason).Inc()
}

// Classified records one completed classification and its latency.
func (m *Manager) Classified(exerciseType string, took time.Duration) {
	if m == nil {
		return
	}
	m.CounterClassifications.WithLabelValues(exerciseType).Inc()
	m.HistInferenceDuration.Observe(took.Seconds())
}

// RepCompleted counts a repetition and updates the session gauge.
func (m *Manager) RepCompleted(repCount int) {
	if m == nil {
		return
	}
	m.CounterReps.Inc()
	m.GaugeRepCount.Set(float64(repCount))
}

// SessionReset zeroes the session gauges.
func (m *Manager) SessionReset() {
	if m == nil {
		return
	}
	m.GaugeRepCount.Set(0)
	m.GaugeAverageFormScore.Set(0)
}

// FormScore updates the rolling average gauge.
func (m *Manager) FormScore(avg float64) {
	if m == nil {
		return
	}
	m.GaugeAverageFormScore.Set(avg)
}

// FeedbackEmitted counts one feedback message.
func (m *Manager) FeedbackEmitted(severity string) {
	if m == nil {
		return
	}
	m.CounterFeedback.WithLabelValues(severity).Inc()
}

// TrainingStarted raises the training gauge.
func (m *Manager) TrainingStarted() {
	if m == nil {
		return
	}
	m.GaugeTraining.Set(1)
}

// TrainingFinished lowers the training gauge and records the outcome.
func (m *Manager) TrainingFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.GaugeTraining.Set(0)
	m.CounterTrainingRuns.WithLabelValues(status).Inc()
	m.HistTrainingDuration.Observe(took.Seconds())
}

// TrainingRejected counts a run refused before fitting (bad data or a
// concurrent run). The training gauge is left alone.
func (m *Manager) TrainingRejected() {
	if m == nil {
		return
	}
	m.CounterTrainingRuns.WithLabelValues("rejected").Inc()
}

// TelemetryClients sets the connected client gauge.
func (m *Manager) TelemetryClients(n int) {
	if m == nil {
		return
	}
	m.GaugeTelemetryClients.Set(float64(n))
}

// TelemetryDropped counts snapshots not delivered to a slow client.
func (m *Manager) TelemetryDropped() {
	if m == nil {
		return
	}
	m.CounterTelemetryDropped.Inc()
}
