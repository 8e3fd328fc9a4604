// Package observability provides Prometheus metrics, the trace sink for
// per-attempt pipeline events, and HTTP middleware for monitoring the
// wingman service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wingman_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// PipelineRequestsTotal counts pipeline executions by strategy and outcome.
	PipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_pipeline_requests_total",
			Help: "Pipeline executions",
		},
		[]string{"strategy", "outcome"},
	)

	// PipelineDuration records end-to-end pipeline duration in seconds.
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wingman_pipeline_duration_seconds",
			Help:    "Pipeline duration",
			Buckets: LLMBuckets,
		},
		[]string{"strategy"},
	)

	// StageDuration records per-stage duration in seconds by kind and outcome.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wingman_stage_duration_seconds",
			Help:    "Stage duration",
			Buckets: LLMBuckets,
		},
		[]string{"stage", "outcome"},
	)

	// ProviderAttemptsTotal counts provider call attempts by provider,
	// model, and outcome (an error kind, or "ok").
	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_provider_attempts_total",
			Help: "Provider call attempts",
		},
		[]string{"provider", "model", "outcome"},
	)

	// ProviderLatency records provider call latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wingman_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// CacheOpsTotal counts stage cache operations by result
	// (hit, miss, error).
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_cache_ops_total",
			Help: "Stage cache operations",
		},
		[]string{"result"},
	)

	// ExtractorRepairsTotal counts repair steps that changed model output,
	// by step name.
	ExtractorRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_extractor_repairs_total",
			Help: "Repair steps applied to model output",
		},
		[]string{"step"},
	)

	// FailureRecordsTotal counts records written to the failed-output store.
	FailureRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_failure_records_total",
			Help: "Failed-output store writes",
		},
		[]string{"stage"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingman_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		PipelineRequestsTotal,
		PipelineDuration,
		StageDuration,
		ProviderAttemptsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		CacheOpsTotal,
		ExtractorRepairsTotal,
		FailureRecordsTotal,
		RateLimitRejectedTotal,
	)
}
