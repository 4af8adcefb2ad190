package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricPrefix = "inkframe_"

// Message results recorded by RecordMessage.
const (
	MessageHandled    = "handled"
	MessageInvalid    = "invalid"
	MessageUnroutable = "unroutable"
	MessageFailed     = "failed"
)

// Render results recorded by RecordRender.
const (
	RenderApplied = "applied"
	RenderSkipped = "skipped"
	RenderFailed  = "failed"
)

// Metrics bundles the frame's Prometheus collectors on a private registry.
//
// A private registry keeps the pushgateway payload limited to frame metrics
// and lets tests build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	MessagesTotal  *prometheus.CounterVec
	RendersTotal   *prometheus.CounterVec
	BatteryLevel   prometheus.Gauge
	LastCycleEnded prometheus.Gauge

	pusher *push.Pusher
}

// Options configures optional pushgateway delivery.
type Options struct {
	// PushgatewayURL enables Flush when non-empty.
	PushgatewayURL string
	Job            string
	// DeviceID is added as the "device" grouping key on push.
	DeviceID string
}

// New constructs and registers the frame metrics.
func New(opts Options) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wake_cycles_total",
				Help: "Total wake cycles by outcome. Cycles reaching shutdown count as shutdown-pending, plus shutdown-failed when the command fails.",
			},
			[]string{"outcome"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "wake_cycle_duration_seconds",
			Help:    "Wake cycle duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_total",
				Help: "Total command messages by result",
			},
			[]string{"result"},
		),
		RendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "renders_total",
				Help: "Total image renders by result",
			},
			[]string{"result"},
		),
		BatteryLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "battery_level_percent",
			Help: "Battery level reported at the last wake",
		}),
		LastCycleEnded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_cycle_end_timestamp_seconds",
			Help: "Unix time the last wake cycle finished",
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.MessagesTotal,
		m.RendersTotal,
		m.BatteryLevel,
		m.LastCycleEnded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if opts.PushgatewayURL != "" {
		job := opts.Job
		if job == "" {
			job = "inkframe"
		}
		m.pusher = push.New(opts.PushgatewayURL, job).Gatherer(m.registry)
		if opts.DeviceID != "" {
			m.pusher = m.pusher.Grouping("device", opts.DeviceID)
		}
	}

	return m
}

// Registry exposes the underlying registry (for tests and custom handlers).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records a finished wake cycle.
func (m *Metrics) ObserveCycle(outcome string, duration time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycleEnded.SetToCurrentTime()
}

// RecordMessage counts one handled command message.
func (m *Metrics) RecordMessage(result string) {
	m.MessagesTotal.WithLabelValues(result).Inc()
}

// RecordRender counts one image command outcome.
func (m *Metrics) RecordRender(result string) {
	m.RendersTotal.WithLabelValues(result).Inc()
}

// SetBatteryLevel records the battery percentage read this cycle.
func (m *Metrics) SetBatteryLevel(level float64) {
	m.BatteryLevel.Set(level)
}

// Flush pushes the registry to the pushgateway. No-op when none is configured.
func (m *Metrics) Flush(ctx context.Context) error {
	if m.pusher == nil {
		return nil
	}
	if err := m.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
