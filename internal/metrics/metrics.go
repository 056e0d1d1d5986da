// Package metrics exposes Prometheus counters for the vault core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the repository and the enrichment pipeline report to.
type Recorder interface {
	RecordMutation(kind, op string)
	RecordPersistFailure(kind string)
	RecordTrigger(kind string, accepted bool)
	RecordEnrichment(kind, outcome string, d time.Duration)
	SetPending(n int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordMutation(string, string) {}
func (Nop) RecordPersistFailure(string) {}
func (Nop) RecordTrigger(string, bool) {}
func (Nop) RecordEnrichment(string, string, time.Duration) {}
func (Nop) SetPending(int) {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	triggers        *prometheus.CounterVec
	enrichments     *prometheus.CounterVec
	latency         prometheus.Histogram
	pending         prometheus.Gauge
}

// NewCollector builds a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvvault_mutations_total",
			Help: "Repository mutations by collection and operation.",
		}, []string{"kind", "op"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvvault_persist_failures_total",
			Help: "Write-through failures that were rolled back.",
		}, []string{"kind"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvvault_enrich_triggers_total",
			Help: "Enrichment trigger calls by result.",
		}, []string{"kind", "result"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvvault_enrichments_total",
			Help: "Resolved enrichments by outcome.",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cvvault_enrich_latency_seconds",
			Help:    "Time spent in the text-generation call.",
			Buckets: prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cvvault_enrich_pending",
			Help: "Enrichments currently in flight.",
		}),
	}

	reg.MustRegister(
		c.mutations,
		c.persistFailures,
		c.triggers,
		c.enrichments,
		c.latency,
		c.pending,
	)

	return c
}

func (c *Collector) RecordMutation(kind, op string) {
	c.mutations.WithLabelValues(kind, op).Inc()
}

func (c *Collector) RecordPersistFailure(kind string) {
	c.persistFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordTrigger(kind string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	c.triggers.WithLabelValues(kind, result).Inc()
}

func (c *Collector) RecordEnrichment(kind, outcome string, d time.Duration) {
	c.enrichments.WithLabelValues(kind, outcome).Inc()
	c.latency.Observe(d.Seconds())
}

func (c *Collector) SetPending(n int) {
	c.pending.Set(float64(n))
}

// Handler serves the registry for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
