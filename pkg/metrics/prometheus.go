package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// connectionStates lists every state exported by the connection state gauge
var connectionStates = []string{"disconnected", "connecting", "connected"}

// PrometheusProvider implements the Provider interface using Prometheus
type PrometheusProvider struct {
	registry *prometheus.Registry

	connectionState  *prometheus.GaugeVec
	connectDuration  *prometheus.HistogramVec
	connectTotal     *prometheus.CounterVec
	framesTotal      *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	decodeFallbacks  *prometheus.CounterVec
	publishTotal     *prometheus.CounterVec
	registrations    prometheus.Gauge
	liveSubscription prometheus.Gauge
	jobsTotal        *prometheus.CounterVec
}

// NewPrometheusProvider creates a new Prometheus metrics provider on its own registry.
// A nil config uses DefaultConfig.
func NewPrometheusProvider(cfg *Config) *PrometheusProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &PrometheusProvider{
		registry: reg,
		connectionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "realtime_connection_state",
				Help:      "Current connection state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),
		connectDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "realtime_connect_duration_seconds",
				Help:      "Duration of transport connect attempts in seconds",
				Buckets:   cfg.ConnectBuckets,
			},
			[]string{"kind"},
		),
		connectTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_connect_attempts_total",
				Help:      "Total number of transport connect attempts",
			},
			[]string{"kind", "status"},
		),
		framesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_frames_total",
				Help:      "Total number of inbound frames",
			},
			[]string{"topic"},
		),
		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_deliveries_total",
				Help:      "Total number of listener invocations",
			},
			[]string{"topic"},
		),
		decodeFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_decode_fallbacks_total",
				Help:      "Total number of frames delivered as raw text",
			},
			[]string{"topic"},
		),
		publishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_publish_total",
				Help:      "Total number of publish calls by outcome",
			},
			[]string{"topic", "outcome"},
		),
		registrations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "realtime_registrations",
				Help:      "Current number of listener registrations",
			},
		),
		liveSubscription: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "realtime_live_subscriptions",
				Help:      "Current number of registrations materialized on the live connection",
			},
		),
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "jobs_received_total",
				Help:      "Total number of job postings received from the feed",
			},
			[]string{"kind"},
		),
	}
}

// SetConnectionState implements Provider
func (p *PrometheusProvider) SetConnectionState(state string) {
	for _, s := range connectionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		p.connectionState.WithLabelValues(s).Set(value)
	}
}

// RecordConnectAttempt implements Provider
func (p *PrometheusProvider) RecordConnectAttempt(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.connectDuration.WithLabelValues(kind).Observe(duration.Seconds())
	p.connectTotal.WithLabelValues(kind, status).Inc()
}

// RecordFrame implements Provider
func (p *PrometheusProvider) RecordFrame(topic string, listeners int) {
	p.framesTotal.WithLabelValues(topic).Inc()
	p.deliveriesTotal.WithLabelValues(topic).Add(float64(listeners))
}

// RecordDecodeFallback implements Provider
func (p *PrometheusProvider) RecordDecodeFallback(topic string) {
	p.decodeFallbacks.WithLabelValues(topic).Inc()
}

// RecordPublish implements Provider
func (p *PrometheusProvider) RecordPublish(topic, outcome string) {
	p.publishTotal.WithLabelValues(topic, outcome).Inc()
}

// SetRegistrations implements Provider
func (p *PrometheusProvider) SetRegistrations(registrations, live int) {
	p.registrations.Set(float64(registrations))
	p.liveSubscription.Set(float64(live))
}

// RecordJob implements Provider
func (p *PrometheusProvider) RecordJob(isNew bool) {
	kind := "updated"
	if isNew {
		kind = "new"
	}
	p.jobsTotal.WithLabelValues(kind).Inc()
}

// Handler implements Provider
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (p *PrometheusProvider) Registry() *prometheus.Registry {
	return p.registry
}
