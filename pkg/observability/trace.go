package observability

import (
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/debug"
)

// TraceEvent is one record per provider attempt or stage completion.
type TraceEvent struct {
	RequestID    string        `json:"request_id"`
	Stage        api.StageKind `json:"stage"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model,omitempty"`
	Duration     time.Duration `json:"duration"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	FromCache    bool          `json:"from_cache"`
	// Outcome is "ok", "cache_hit", or an api.ErrorKind string.
	Outcome string `json:"outcome"`
}

// TraceSink receives one event per provider attempt and per stage
// completion. Implementations must be safe for concurrent use and must
// not block the pipeline.
type TraceSink interface {
	Record(ev TraceEvent)
}

// MetricsSink feeds trace events into the Prometheus vectors and the
// category-gated debug log. It is the default sink.
type MetricsSink struct{}

var _ TraceSink = MetricsSink{}

// Record updates the provider and stage metrics for one event.
func (MetricsSink) Record(ev TraceEvent) {
	switch {
	case ev.FromCache:
		CacheOpsTotal.WithLabelValues("hit").Inc()
		StageDuration.WithLabelValues(string(ev.Stage), "cache_hit").Observe(ev.Duration.Seconds())
	case ev.Provider != "":
		ProviderAttemptsTotal.WithLabelValues(ev.Provider, ev.Model, ev.Outcome).Inc()
		ProviderLatency.WithLabelValues(ev.Provider, ev.Model).Observe(ev.Duration.Seconds())
		if ev.InputTokens > 0 {
			ProviderTokensTotal.WithLabelValues(ev.Provider, ev.Model, "input").Add(float64(ev.InputTokens))
		}
		if ev.OutputTokens > 0 {
			ProviderTokensTotal.WithLabelValues(ev.Provider, ev.Model, "output").Add(float64(ev.OutputTokens))
		}
	default:
		StageDuration.WithLabelValues(string(ev.Stage), ev.Outcome).Observe(ev.Duration.Seconds())
	}

	debug.Log("pipeline", "trace event",
		"request_id", ev.RequestID,
		"stage", ev.Stage,
		"provider", ev.Provider,
		"duration_ms", ev.Duration.Milliseconds(),
		"from_cache", ev.FromCache,
		"outcome", ev.Outcome,
	)
}

// NopSink discards every event.
type NopSink struct{}

var _ TraceSink = NopSink{}

// Record discards the event.
func (NopSink) Record(TraceEvent) {}
