// Package metrics exposes the monitor's Prometheus collectors.
//
// All methods are safe on a nil *Metrics, so components can run without
// instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fallwatch"

// Metrics holds all monitor collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	frames        prometheus.Counter
	fallFrames    prometheus.Counter
	detections    prometheus.Counter
	alerts        prometheus.Counter
	resets        prometheus.Counter
	suppressed    prometheus.Counter
	notifyFailed  *prometheus.CounterVec
	loopFailures  *prometheus.CounterVec
	running       prometheus.Gauge
	consecutive   prometheus.Gauge
	detectLatency prometheus.Histogram
	streamClients *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames that completed a monitor iteration",
		}),
		fallFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fall_positive_frames_total",
			Help:      "Frames with at least one fall-posture detection",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "person_detections_total",
			Help:      "Person boxes returned by the detector",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Fall alerts fired",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_resets_total",
			Help:      "Alerts cleared after recovery",
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Confirmed falls held back by the cooldown",
		}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Event deliveries that failed after retry",
		}, []string{"handler"}),
		loopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_failures_total",
			Help:      "Monitor runs that ended with an error",
		}, []string{"reason"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while the monitor worker is running",
		}),
		consecutive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_fall_frames",
			Help:      "Current debounce counter",
		}),
		detectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_latency_seconds",
			Help:      "Time spent in the person detector per frame",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		streamClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected stream clients",
		}, []string{"stream"}),
	}

	m.registry.MustRegister(
		m.frames, m.fallFrames, m.detections, m.alerts, m.resets, m.suppressed,
		m.notifyFailed, m.loopFailures, m.running, m.consecutive, m.detectLatency,
		m.streamClients,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFrame records one finished iteration.
func (m *Metrics) ObserveFrame(boxes int, fallPositive bool, consecutive int) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.detections.Add(float64(boxes))
	if fallPositive {
		m.fallFrames.Inc()
	}
	m.consecutive.Set(float64(consecutive))
}

// ObserveDetect records detector latency.
func (m *Metrics) ObserveDetect(d time.Duration) {
	if m == nil {
		return
	}
	m.detectLatency.Observe(d.Seconds())
}

// AlertFired counts a Fire decision.
func (m *Metrics) AlertFired() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}

// AlertReset counts a Reset decision.
func (m *Metrics) AlertReset() {
	if m == nil {
		return
	}
	m.resets.Inc()
}

// AlertSuppressed counts a cooldown-suppressed confirmation.
func (m *Metrics) AlertSuppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

// NotificationFailure counts a failed delivery for handler.
func (m *Metrics) NotificationFailure(handler string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(handler).Inc()
}

// NotificationFailures returns the failure counter for handler.
func (m *Metrics) NotificationFailures(handler string) prometheus.Counter {
	return m.notifyFailed.WithLabelValues(handler)
}

// LoopFailure counts a run that ended with an error.
func (m *Metrics) LoopFailure(reason string) {
	if m == nil {
		return
	}
	m.loopFailures.WithLabelValues(reason).Inc()
}

// SetRunning updates the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.running.Set(v)
	if !running {
		m.consecutive.Set(0)
	}
}

// SetStreamClients updates the client gauge for a stream.
func (m *Metrics) SetStreamClients(stream string, n int) {
	if m == nil {
		return
	}
	m.streamClients.WithLabelValues(stream).Set(float64(n))
}
