// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instruments for the embedding
// pipeline, the ranking sweep and the HTTP adapter. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabmatch"

// Embed outcomes.
const (
	EmbedBackend  = "backend"
	EmbedCache    = "cache"
	EmbedFallback = "fallback"
	EmbedEmpty    = "empty"
)

// Job outcomes.
const (
	JobDone       = "done"
	JobUnchanged  = "unchanged"
	JobRetry      = "retry"
	JobDeadLetter = "deadletter"
	JobDiscarded  = "discarded"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	embedRequests *prometheus.CounterVec
	embedDuration prometheus.Histogram

	jobs       *prometheus.CounterVec
	queueDepth prometheus.Gauge

	sweeps        prometheus.Counter
	sweepDuration prometheus.Histogram
	opportunities *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		embedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_requests_total",
			Help:      "Embedding requests by outcome.",
		}, []string{"outcome"}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embed_duration_seconds",
			Help:      "Time spent producing an embedding.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_jobs_total",
			Help:      "Embedding job completions by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedding_queue_depth",
			Help:      "Jobs waiting in the embedding queue.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_sweeps_total",
			Help:      "Completed ranking sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_sweep_duration_seconds",
			Help:      "Duration of ranking sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunity_commits_total",
			Help:      "Opportunity commits by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.embedRequests, m.embedDuration,
		m.jobs, m.queueDepth,
		m.sweeps, m.sweepDuration, m.opportunities,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordEmbed(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.embedRequests.WithLabelValues(outcome).Inc()
	m.embedDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordJob(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// RecordSweep records one ranking sweep with its commit counts.
func (m *Metrics) RecordSweep(d time.Duration, written, suppressed, failed int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.sweepDuration.Observe(d.Seconds())
	m.opportunities.WithLabelValues("written").Add(float64(written))
	m.opportunities.WithLabelValues("suppressed").Add(float64(suppressed))
	m.opportunities.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
