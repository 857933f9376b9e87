// Package metrics exposes poll activity as Prometheus metrics.
//
// Each [Recorder] owns a private registry so several miners can run in one
// process (and in tests) without colliding on metric names.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedminer"

// Poll result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Reload result label values.
const (
	ReloadReplaced = "replaced"
	ReloadKept     = "kept"
)

// Recorder records poll, record and credential reload metrics.
//
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec
	records       *prometheus.CounterVec
	recordsActive *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
	lastFailure   *prometheus.GaugeVec
	reloads       *prometheus.CounterVec
}

// New creates a Recorder with its own registry, including the Go runtime and
// process collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Number of completed polls by node and result",
			},
			[]string{"node", "result"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Time taken by a poll, including the remote query",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_emitted_total",
				Help:      "Number of records produced by successful polls",
			},
			[]string{"node"},
		),
		recordsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records",
				Help:      "Number of records in the latest successful poll",
			},
			[]string{"node"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix timestamp of the last successful poll",
			},
			[]string{"node"},
		),
		lastFailure: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_failure_timestamp_seconds",
				Help:      "Unix timestamp of the last failed poll",
			},
			[]string{"node"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_reloads_total",
				Help:      "Number of credential side config reloads by node and result",
			},
			[]string{"node", "result"},
		),
	}

	registry.MustRegister(
		r.polls,
		r.pollDuration,
		r.records,
		r.recordsActive,
		r.lastSuccess,
		r.lastFailure,
		r.reloads,
	)
	return r
}

// ObservePoll records the outcome of one poll of node.
func (r *Recorder) ObservePoll(node string, records int, latency time.Duration, err error, at time.Time) {
	if r == nil {
		return
	}
	r.pollDuration.WithLabelValues(node).Observe(latency.Seconds())
	ts := float64(at.UnixNano()) / float64(time.Second)
	if err != nil {
		r.polls.WithLabelValues(node, ResultFailure).Inc()
		r.lastFailure.WithLabelValues(node).Set(ts)
		return
	}
	r.polls.WithLabelValues(node, ResultSuccess).Inc()
	r.records.WithLabelValues(node).Add(float64(records))
	r.recordsActive.WithLabelValues(node).Set(float64(records))
	r.lastSuccess.WithLabelValues(node).Set(ts)
}

// ObserveReload records a credential reload of node.
func (r *Recorder) ObserveReload(node string, replaced bool) {
	if r == nil {
		return
	}
	result := ReloadKept
	if replaced {
		result = ReloadReplaced
	}
	r.reloads.WithLabelValues(node, result).Inc()
}

// Forget drops every series of node, used when a node is removed.
func (r *Recorder) Forget(node string) {
	if r == nil {
		return
	}
	labels := prometheus.Labels{"node": node}
	r.polls.DeletePartialMatch(labels)
	r.pollDuration.DeletePartialMatch(labels)
	r.records.DeletePartialMatch(labels)
	r.recordsActive.DeletePartialMatch(labels)
	r.lastSuccess.DeletePartialMatch(labels)
	r.lastFailure.DeletePartialMatch(labels)
	r.reloads.DeletePartialMatch(labels)
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
