// Package metrics exposes the relay's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tgecho"

// Update results, used as the "result" label of the updates counter.
const (
	ResultAccepted     = "accepted"
	ResultUnauthorized = "unauthorized"
	ResultMalformed    = "malformed"
	ResultEmpty        = "empty"
	ResultDropped      = "dropped"
)

// Reply results, used as the "result" label of the replies counter.
const (
	ReplySent   = "sent"
	ReplyFailed = "failed"
)

// Update sources, used as the "source" label of the updates counter.
const (
	SourceWebhook = "webhook"
	SourcePolling = "polling"
)

// Metrics groups the counters and histograms updated by the gateway,
// the poller and the reply dispatcher. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry
	updates  *prometheus.CounterVec
	replies  *prometheus.CounterVec
	latency  prometheus.Histogram
}

// New creates a Metrics backed by a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(reg)
}

// NewForTest creates a Metrics on an empty registry, without runtime
// collectors, so counter assertions stay deterministic.
func NewForTest() *Metrics {
	return newWithRegistry(prometheus.NewRegistry())
}

func newWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound updates by source and handling result.",
		}, []string{"source", "result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Outbound sendMessage attempts by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_send_duration_seconds",
			Help:      "Latency of outbound sendMessage calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.updates, m.replies, m.latency)
	return m
}

// RecordUpdate counts one inbound update.
func (m *Metrics) RecordUpdate(source, result string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(source, result).Inc()
}

// RecordReply counts one outbound send and observes its latency.
func (m *Metrics) RecordReply(result string, latency time.Duration) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(result).Inc()
	m.latency.Observe(latency.Seconds())
}

// UpdateCount returns the current value of the updates counter for the
// given labels.
func (m *Metrics) UpdateCount(source, result string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.updates.WithLabelValues(source, result))
}

// ReplyCount returns the current value of the replies counter for result.
func (m *Metrics) ReplyCount(result string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.replies.WithLabelValues(result))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
