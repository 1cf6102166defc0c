// Package metrics provides Prometheus metrics for the message pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics collects and exposes pipeline Prometheus metrics.
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Gatekeeper metrics
	VerdictsTotal  *prometheus.CounterVec
	RemoteFailures *prometheus.CounterVec
	CircuitOpen    *prometheus.GaugeVec
	RateLimitHits  *prometheus.CounterVec

	// Tool metrics
	ToolCallsTotal *prometheus.CounterVec
	ToolLatency    *prometheus.HistogramVec
	FallbacksTotal *prometheus.CounterVec

	// Generation metrics
	GenerationLatency *prometheus.HistogramVec
	CannedReplies     *prometheus.CounterVec

	// Delivery metrics
	MessagesTotal *prometheus.CounterVec
	ReplyChunks   *prometheus.HistogramVec
}

// NewPipelineMetrics creates a new pipeline metrics collector with its
// own registry.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	pm := &PipelineMetrics{
		registry: registry,

		// Gatekeeper metrics
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_verdicts_total",
				Help: "Total gatekeeper verdicts issued",
			},
			[]string{"source", "decision"},
		),
		RemoteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_remote_verdict_failures_total",
				Help: "Total remote verdict call failures",
			},
			[]string{},
		),
		CircuitOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trademaster_remote_circuit_open",
				Help: "Whether the remote verdict circuit is open (1=open, 0=closed)",
			},
			[]string{},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_rate_limit_hits_total",
				Help: "Messages declined by the per-channel cooldown",
			},
			[]string{"channel"},
		),

		// Tool metrics
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_tool_calls_total",
				Help: "Total tool executions",
			},
			[]string{"tool", "status"},
		),
		ToolLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trademaster_tool_latency_seconds",
				Help:    "Tool execution latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"tool"},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_tool_fallbacks_total",
				Help: "Tool calls served by the fallback search",
			},
			[]string{"tool"},
		),

		// Generation metrics
		GenerationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trademaster_generation_latency_seconds",
				Help:    "Reply generation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
			},
			[]string{},
		),
		CannedReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_canned_replies_total",
				Help: "Replies served from the canned pools",
			},
			[]string{},
		),

		// Delivery metrics
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademaster_messages_total",
				Help: "Inbound messages handled",
			},
			[]string{"replied"},
		),
		ReplyChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trademaster_reply_chunks",
				Help:    "Number of chunks a reply was split into",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 12},
			},
			[]string{},
		),
	}

	pm.registerAll()

	return pm
}

func (pm *PipelineMetrics) registerAll() {
	pm.registry.MustRegister(
		pm.VerdictsTotal,
		pm.RemoteFailures,
		pm.CircuitOpen,
		pm.RateLimitHits,
		pm.ToolCallsTotal,
		pm.ToolLatency,
		pm.FallbacksTotal,
		pm.GenerationLatency,
		pm.CannedReplies,
		pm.MessagesTotal,
		pm.ReplyChunks,
	)
}

// Registry returns the prometheus registry.
func (pm *PipelineMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler returns an HTTP handler serving the registry.
func (pm *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// --- Helper methods for recording metrics ---

// RecordVerdict records a gatekeeper verdict.
func (pm *PipelineMetrics) RecordVerdict(source string, respond bool) {
	decision := "decline"
	if respond {
		decision = "respond"
	}
	pm.VerdictsTotal.WithLabelValues(source, decision).Inc()
}

// RecordRemoteFailure records a failed remote verdict call.
func (pm *PipelineMetrics) RecordRemoteFailure() {
	pm.RemoteFailures.WithLabelValues().Inc()
}

// SetCircuitOpen updates the remote circuit state gauge.
func (pm *PipelineMetrics) SetCircuitOpen(open bool) {
	if open {
		pm.CircuitOpen.WithLabelValues().Set(1)
	} else {
		pm.CircuitOpen.WithLabelValues().Set(0)
	}
}

// RecordRateLimitHit records a cooldown decline for a channel.
func (pm *PipelineMetrics) RecordRateLimitHit(channel string) {
	pm.RateLimitHits.WithLabelValues(channel).Inc()
}

// RecordToolCall records a tool execution.
func (pm *PipelineMetrics) RecordToolCall(tool, status string, latencySec float64, fellBack bool) {
	pm.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	if latencySec > 0 {
		pm.ToolLatency.WithLabelValues(tool).Observe(latencySec)
	}
	if fellBack {
		pm.FallbacksTotal.WithLabelValues(tool).Inc()
	}
}

// RecordGeneration records a reply generation.
func (pm *PipelineMetrics) RecordGeneration(latencySec float64, canned bool) {
	if latencySec > 0 {
		pm.GenerationLatency.WithLabelValues().Observe(latencySec)
	}
	if canned {
		pm.CannedReplies.WithLabelValues().Inc()
	}
}

// RecordMessage records a handled inbound message.
func (pm *PipelineMetrics) RecordMessage(replied bool, chunks int) {
	label := "no"
	if replied {
		label = "yes"
	}
	pm.MessagesTotal.WithLabelValues(label).Inc()
	if replied {
		pm.ReplyChunks.WithLabelValues().Observe(float64(chunks))
	}
}
