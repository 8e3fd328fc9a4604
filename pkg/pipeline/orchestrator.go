// Package pipeline runs the stage graph that turns a conversation into a
// generated reply: optional image transcription, context/scene/persona
// analysis (traditional or merged strategy), and reply generation. Stage
// results are cached under strategy-independent keys, provider calls
// fall back across candidates, and every attempt is traced.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/cache"
	"github.com/wingman-dev/wingman/pkg/debug"
	"github.com/wingman-dev/wingman/pkg/extract"
	"github.com/wingman-dev/wingman/pkg/observability"
	"github.com/wingman-dev/wingman/pkg/prompt"
	"github.com/wingman-dev/wingman/pkg/provider"
	"github.com/wingman-dev/wingman/pkg/storage"
)

// Config tunes the orchestrator.
type Config struct {
	// DefaultStrategy is used when the request does not name one.
	// Defaults to traditional.
	DefaultStrategy api.Strategy

	// CacheTTL bounds the lifetime of stage cache entries (default: 15m).
	CacheTTL time.Duration

	// InsightWorkers bounds the per-message enrichment fan-out
	// (default: 4).
	InsightWorkers int

	// EnrichInsights enables per-message intent/sentiment classification
	// during context analysis.
	EnrichInsights bool

	// MaxTokens caps provider completions; 0 uses the backend default.
	MaxTokens int
}

func (c *Config) defaults() {
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = api.StrategyTraditional
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if c.InsightWorkers == 0 {
		c.InsightWorkers = 4
	}
}

// Orchestrator owns the process-scoped pipeline state: the provider
// registry, the stage cache, and the collaborator surfaces. It is safe
// for concurrent use; per-request state lives in a run.
type Orchestrator struct {
	registry *provider.Registry
	store    cache.Store
	flight   *cache.SingleFlight
	failures storage.FailureStore
	prompts  prompt.Source
	trace    observability.TraceSink
	cfg      Config
}

// New wires an orchestrator. prompts defaults to the built-in template
// set and trace to the Prometheus metrics sink when nil.
func New(registry *provider.Registry, store cache.Store, failures storage.FailureStore, prompts prompt.Source, trace observability.TraceSink, cfg Config) *Orchestrator {
	cfg.defaults()
	if prompts == nil {
		prompts = prompt.NewBuiltin()
	}
	if trace == nil {
		trace = observability.MetricsSink{}
	}

	flight := cache.NewSingleFlight(store)
	flight.OnBackendError = func(op string, err error) {
		observability.CacheOpsTotal.WithLabelValues("error").Inc()
	}

	return &Orchestrator{
		registry: registry,
		store:    store,
		flight:   flight,
		failures: failures,
		prompts:  prompts,
		trace:    trace,
		cfg:      cfg,
	}
}

// Execute runs the stage graph for one request. The caller's context
// bounds every provider call and cache wait; on expiry the pipeline
// aborts with a timeout error. Failures name the originating stage and
// error kind; no partial reply is ever returned as success.
func (o *Orchestrator) Execute(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = o.cfg.DefaultStrategy
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = api.NewRequestID()
	}

	debug.Log("pipeline", "pipeline start",
		"request_id", requestID, "strategy", strategy,
		"messages", len(req.Conversation), "has_image", req.Image != nil)

	r := &run{o: o, req: req, requestID: requestID, strategy: strategy}
	result, err := r.execute(ctx)

	// A failure under an expired caller context is a pipeline timeout no
	// matter which stage tripped first.
	if err != nil && ctx.Err() != nil && api.KindOf(err) != api.ErrorTimeout {
		err = api.NewTimeout("pipeline deadline expired").WithCause(err)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind := api.KindOf(err); kind != "" {
			outcome = string(kind)
		}
	}
	observability.PipelineRequestsTotal.WithLabelValues(string(strategy), outcome).Inc()
	observability.PipelineDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())

	if err != nil {
		debug.Log("pipeline", "pipeline failed",
			"request_id", requestID, "outcome", outcome, "error", err)
		return nil, err
	}

	result.RequestID = requestID
	result.Duration = time.Since(start)
	result.Aggregate()

	debug.Log("pipeline", "pipeline done",
		"request_id", requestID, "stages", len(result.Stages),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// callSpec describes one provider call to make with fallback.
type callSpec struct {
	stage      api.StageKind
	capability provider.Capability
	prompt     string
	image      *api.ImageRef
}

// call walks the candidate adapters for the spec's capability in
// priority order: retryable failures fall through to the next candidate,
// capability_unsupported candidates are skipped, anything else
// propagates immediately. One trace event is emitted per attempt.
func (r *run) call(ctx context.Context, spec callSpec) (string, provider.Usage, provider.Adapter, time.Duration, error) {
	candidates := r.o.registry.Candidates(spec.capability)
	if len(candidates) == 0 {
		return "", provider.Usage{}, nil, 0,
			api.NewProviderUnavailable("", "no provider offers "+string(spec.capability)).WithStage(spec.stage)
	}

	var lastErr error
	for _, a := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", provider.Usage{}, nil, 0,
				api.NewTimeout("deadline expired during provider fallback").WithStage(spec.stage).WithCause(ctxErr)
		}

		opts := provider.CallOptions{MaxTokens: r.o.cfg.MaxTokens}
		start := time.Now()

		var text string
		var usage provider.Usage
		var err error
		if spec.capability == provider.CapabilityVision {
			text, usage, err = a.CallVision(ctx, spec.prompt, spec.image, opts)
		} else {
			text, usage, err = a.CallText(ctx, spec.prompt, opts)
		}
		dur := time.Since(start)

		outcome := "ok"
		if err != nil {
			outcome = "error"
			if kind := api.KindOf(err); kind != "" {
				outcome = string(kind)
			}
		}
		r.o.trace.Record(observability.TraceEvent{
			RequestID:    r.requestID,
			Stage:        spec.stage,
			Provider:     a.Name(),
			Model:        a.Model(spec.capability),
			Duration:     dur,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			Outcome:      outcome,
		})

		if err == nil {
			return text, usage, a, dur, nil
		}

		var apiErr *api.Error
		if errors.As(err, &apiErr) && (apiErr.Retryable() || apiErr.Kind == api.ErrorCapabilityUnsupported) {
			debug.Log("pipeline", "provider attempt failed, trying next candidate",
				"request_id", r.requestID, "stage", spec.stage,
				"provider", a.Name(), "kind", apiErr.Kind)
			lastErr = err
			continue
		}
		return "", provider.Usage{}, nil, 0, stageError(err, spec.stage)
	}

	if lastErr == nil {
		lastErr = api.NewProviderUnavailable("", "all candidates exhausted")
	}
	return "", provider.Usage{}, nil, 0, stageError(lastErr, spec.stage)
}

// computeStage performs one provider call plus extraction and wraps the
// outcome into a StageResult. Extraction failures are persisted to the
// failed-output store before they propagate.
func (r *run) computeStage(ctx context.Context, spec callSpec) (*api.StageResult, error) {
	text, usage, adapter, dur, err := r.call(ctx, spec)
	if err != nil {
		return nil, err
	}

	payload, steps, err := extract.Stage(spec.stage, text)
	recordRepairSteps(steps)
	if err != nil {
		r.recordFailure(ctx, spec.stage, adapter.Name(), text, err)
		return nil, stageError(err, spec.stage)
	}

	return &api.StageResult{
		Kind:         spec.stage,
		Payload:      payload,
		Provider:     adapter.Name(),
		Model:        adapter.Model(spec.capability),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Duration:     dur,
	}, nil
}

// recordFailure writes one failed-output record. Store errors are logged
// and dropped; the extraction error is what the caller surfaces.
func (r *run) recordFailure(ctx context.Context, kind api.StageKind, providerName, raw string, parseErr error) {
	if r.o.failures == nil {
		return
	}
	rec := storage.NewFailureRecord(r.requestID, kind, providerName, raw, parseErr)
	if err := r.o.failures.SaveFailure(context.WithoutCancel(ctx), rec); err != nil {
		debug.Log("storage", "saving failure record failed",
			"request_id", r.requestID, "stage", kind, "error", err)
		return
	}
	observability.FailureRecordsTotal.WithLabelValues(string(kind)).Inc()
}

// recordRepairSteps feeds applied repair step names into the extractor
// metrics.
func recordRepairSteps(steps []string) {
	for _, step := range steps {
		observability.ExtractorRepairsTotal.WithLabelValues(step).Inc()
	}
}

// stageError stamps the originating stage onto a taxonomy error. Errors
// that already name a stage keep it.
func stageError(err error, kind api.StageKind) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Stage == "" {
		return apiErr.WithStage(kind)
	}
	return err
}
