package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the shorts pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	segmentsDelivered prometheus.Counter
	activePipelines   prometheus.Gauge
	encodeSeconds     prometheus.Histogram
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoshorts_requests_total",
		Help: "Finished requests by outcome (ok or failure kind)",
	}, []string{"outcome"})
	segmentsDelivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoshorts_segments_delivered_total",
		Help: "Shorts successfully sent to chats",
	})
	activePipelines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoshorts_active_pipelines",
		Help: "Pipelines currently running",
	})
	encodeSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "autoshorts_encode_seconds",
		Help:    "Wall time of one segment encode",
		Buckets: prometheus.ExponentialBuckets(2, 2, 9),
	})

	registry.MustRegister(requestsTotal, segmentsDelivered, activePipelines, encodeSeconds)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		segmentsDelivered: segmentsDelivered,
		activePipelines:   activePipelines,
		encodeSeconds:     encodeSeconds,
	}
}

func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.activePipelines.Inc()
}

// PipelineFinished decrements the active gauge and counts the outcome.
func (m *Metrics) PipelineFinished(outcome string) {
	if m == nil {
		return
	}
	m.activePipelines.Dec()
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// RequestRejected counts a request that never started a pipeline.
func (m *Metrics) RequestRejected(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SegmentDelivered() {
	if m == nil {
		return
	}
	m.segmentsDelivered.Inc()
}

func (m *Metrics) ObserveEncode(d time.Duration) {
	if m == nil {
		return
	}
	m.encodeSeconds.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
