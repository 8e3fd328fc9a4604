package pipeline

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/debug"
	"github.com/wingman-dev/wingman/pkg/extract"
	"github.com/wingman-dev/wingman/pkg/observability"
	"github.com/wingman-dev/wingman/pkg/prompt"
	"github.com/wingman-dev/wingman/pkg/provider"
)

// run is the per-request execution state. The request itself is
// read-only; everything mutable lives here.
type run struct {
	o         *Orchestrator
	req       *api.PipelineRequest
	requestID string
	strategy  api.Strategy

	// conversation is the transcript the analysis stages see: the
	// request's own entries, or the transcript recovered from the
	// screenshot when none were supplied.
	conversation []api.Message
	imageResult  *api.ImageResult

	// mergedScene carries the scene result out of a merged-call closure
	// when this run was the flight leader.
	mergedScene *api.StageResult

	stages []*api.StageResult
}

// execute walks the stage graph: image first when present, then
// context+scene per strategy, then persona, then reply.
func (r *run) execute(ctx context.Context) (*api.PipelineResult, error) {
	r.conversation = r.req.Conversation

	if r.req.Image != nil {
		res, err := r.imageStage(ctx)
		if err != nil {
			return nil, err
		}
		r.record(res)

		img := res.Payload.(api.ImageResult)
		r.imageResult = &img
		if len(r.conversation) == 0 {
			r.conversation = img.Transcript
		}
	}

	var contextRes, sceneRes *api.StageResult
	var err error
	if r.strategy == api.StrategyMerged {
		contextRes, sceneRes, err = r.mergedAnalysis(ctx)
	} else {
		contextRes, sceneRes, err = r.traditionalAnalysis(ctx)
	}
	if err != nil {
		return nil, err
	}
	r.record(contextRes)
	r.record(sceneRes)

	contextPayload := contextRes.Payload.(api.ContextAnalysis)
	scenePayload := sceneRes.Payload.(api.SceneAnalysis)

	personaRes, err := r.personaStage(ctx, contextPayload)
	if err != nil {
		return nil, err
	}
	r.record(personaRes)
	personaPayload := personaRes.Payload.(api.PersonaAnalysis)

	replyRes, err := r.replyStage(ctx, contextPayload, scenePayload, personaPayload)
	if err != nil {
		return nil, err
	}
	r.record(replyRes)
	reply := replyRes.Payload.(api.Reply)

	return &api.PipelineResult{
		Reply:        reply.Text,
		Alternatives: reply.Alternatives,
		Stages:       r.stages,
	}, nil
}

// record appends a resolved stage to the chain and emits its completion
// trace event.
func (r *run) record(res *api.StageResult) {
	r.stages = append(r.stages, res)

	outcome := "ok"
	if res.FromCache {
		outcome = "cache_hit"
	} else {
		observability.CacheOpsTotal.WithLabelValues("miss").Inc()
	}
	r.o.trace.Record(observability.TraceEvent{
		RequestID:    r.requestID,
		Stage:        res.Kind,
		Provider:     res.Provider,
		Model:        res.Model,
		Duration:     res.Duration,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		FromCache:    res.FromCache,
		Outcome:      outcome,
	})
}

// inputs snapshots the prompt inputs resolved so far.
func (r *run) inputs() prompt.StageInputs {
	return prompt.StageInputs{
		Conversation: r.conversation,
		Participants: r.req.Participants,
		Language:     r.req.Language,
		Tier:         r.req.Tier,
		Image:        r.req.Image,
		ImageResult:  r.imageResult,
	}
}

func (r *run) imageStage(ctx context.Context) (*api.StageResult, error) {
	key := imageKey(r.req.Image)
	return r.o.flight.GetOrCompute(ctx, key, r.o.cfg.CacheTTL, func(ctx context.Context) (*api.StageResult, error) {
		text, err := r.o.prompts.Render(api.StageImageResult, r.inputs())
		if err != nil {
			return nil, err
		}
		return r.computeStage(ctx, callSpec{
			stage:      api.StageImageResult,
			capability: provider.CapabilityVision,
			prompt:     text,
			image:      r.req.Image,
		})
	})
}

// traditionalAnalysis computes context and scene as independent provider
// calls racing in an errgroup.
func (r *run) traditionalAnalysis(ctx context.Context) (*api.StageResult, *api.StageResult, error) {
	var contextRes, sceneRes *api.StageResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contextRes, err = r.contextStage(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		sceneRes, err = r.sceneStage(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return contextRes, sceneRes, nil
}

func (r *run) contextStage(ctx context.Context) (*api.StageResult, error) {
	key := contextKey(r.conversation, r.req.Participants)
	return r.o.flight.GetOrCompute(ctx, key, r.o.cfg.CacheTTL, func(ctx context.Context) (*api.StageResult, error) {
		text, err := r.o.prompts.Render(api.StageContextAnalysis, r.inputs())
		if err != nil {
			return nil, err
		}
		res, err := r.computeStage(ctx, callSpec{
			stage:      api.StageContextAnalysis,
			capability: provider.CapabilityText,
			prompt:     text,
		})
		if err != nil {
			return nil, err
		}
		return r.enrichContext(ctx, res)
	})
}

func (r *run) sceneStage(ctx context.Context) (*api.StageResult, error) {
	key := sceneKey(r.conversation, r.req.Image)
	return r.o.flight.GetOrCompute(ctx, key, r.o.cfg.CacheTTL, func(ctx context.Context) (*api.StageResult, error) {
		text, err := r.o.prompts.Render(api.StageSceneAnalysis, r.inputs())
		if err != nil {
			return nil, err
		}
		return r.computeStage(ctx, callSpec{
			stage:      api.StageSceneAnalysis,
			capability: provider.CapabilityText,
			prompt:     text,
		})
	})
}

// mergedAnalysis issues one combined provider call and splits its JSON
// envelope into a context and a scene result. Both land in the cache
// under the same keys the traditional strategy uses, so either strategy
// satisfies the other's later requests.
func (r *run) mergedAnalysis(ctx context.Context) (*api.StageResult, *api.StageResult, error) {
	ctxKey := contextKey(r.conversation, r.req.Participants)
	scKey := sceneKey(r.conversation, r.req.Image)

	contextRes, err := r.o.flight.GetOrCompute(ctx, ctxKey, r.o.cfg.CacheTTL, func(ctx context.Context) (*api.StageResult, error) {
		text, err := r.o.prompts.RenderMerged(r.inputs())
		if err != nil {
			return nil, err
		}

		raw, usage, adapter, dur, err := r.call(ctx, callSpec{
			stage:      api.StageContextAnalysis,
			capability: provider.CapabilityText,
			prompt:     text,
		})
		if err != nil {
			return nil, err
		}

		doc, steps, err := extract.Document(raw)
		recordRepairSteps(steps)
		if err != nil {
			r.recordFailure(ctx, api.StageContextAnalysis, adapter.Name(), raw, err)
			return nil, stageError(err, api.StageContextAnalysis)
		}

		contextPayload, err := extract.Section(api.StageContextAnalysis, doc, "context")
		if err != nil {
			r.recordFailure(ctx, api.StageContextAnalysis, adapter.Name(), raw, err)
			return nil, stageError(err, api.StageContextAnalysis)
		}
		scenePayload, err := extract.Section(api.StageSceneAnalysis, doc, "scene")
		if err != nil {
			r.recordFailure(ctx, api.StageSceneAnalysis, adapter.Name(), raw, err)
			return nil, stageError(err, api.StageSceneAnalysis)
		}

		// The combined call's cost is attributed to the context result;
		// the scene result carries zero tokens so aggregation does not
		// double count.
		res := &api.StageResult{
			Kind:         api.StageContextAnalysis,
			Payload:      contextPayload,
			Provider:     adapter.Name(),
			Model:        adapter.Model(provider.CapabilityText),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			Duration:     dur,
		}
		res, err = r.enrichContext(ctx, res)
		if err != nil {
			return nil, err
		}

		sceneRes := &api.StageResult{
			Kind:     api.StageSceneAnalysis,
			Payload:  scenePayload,
			Provider: adapter.Name(),
			Model:    adapter.Model(provider.CapabilityText),
			Duration: dur,
		}
		if perr := r.o.store.Put(context.WithoutCancel(ctx), scKey, sceneRes, r.o.cfg.CacheTTL); perr != nil {
			observability.CacheOpsTotal.WithLabelValues("error").Inc()
			debug.Log("pipeline", "storing merged scene result failed",
				"request_id", r.requestID, "error", perr)
		}
		r.mergedScene = sceneRes

		return res, nil
	})
	if err != nil {
		return nil, nil, err
	}

	// This run led the merged call: the scene result rode along.
	if r.mergedScene != nil {
		return contextRes, r.mergedScene, nil
	}

	// The context result came from cache or a shared flight; the scene
	// result is normally cached under its own key by now. When it is not
	// (expired, or its Put degraded), a dedicated scene call fills in.
	sceneRes, err := r.sceneStage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return contextRes, sceneRes, nil
}

// enrichContext folds per-message insights into a freshly computed
// context result when enrichment is enabled.
func (r *run) enrichContext(ctx context.Context, res *api.StageResult) (*api.StageResult, error) {
	if !r.o.cfg.EnrichInsights || len(r.conversation) == 0 {
		return res, nil
	}
	insights, err := r.messageInsights(ctx)
	if err != nil {
		return nil, err
	}
	payload := res.Payload.(api.ContextAnalysis)
	payload.Insights = insights
	res.Payload = payload
	return res, nil
}

// messageInsights classifies every conversation entry concurrently with
// a bounded worker group. Results are slotted by original index, so the
// completion order of the workers is never observable downstream.
func (r *run) messageInsights(ctx context.Context) ([]api.MessageInsight, error) {
	insights := make([]api.MessageInsight, len(r.conversation))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.InsightWorkers)

	for i := range r.conversation {
		g.Go(func() error {
			text, err := r.o.prompts.RenderInsight(r.inputs(), i)
			if err != nil {
				return err
			}

			raw, _, adapter, _, err := r.call(gctx, callSpec{
				stage:      api.StageContextAnalysis,
				capability: provider.CapabilityText,
				prompt:     text,
			})
			if err != nil {
				return err
			}

			doc, steps, err := extract.Document(raw)
			recordRepairSteps(steps)
			if err != nil {
				r.recordFailure(gctx, api.StageContextAnalysis, adapter.Name(), raw, err)
				return stageError(err, api.StageContextAnalysis)
			}

			var ins api.MessageInsight
			if err := json.Unmarshal([]byte(doc), &ins); err != nil {
				r.recordFailure(gctx, api.StageContextAnalysis, adapter.Name(), raw, err)
				return stageError(api.NewUnparsableOutput("decoding message insight: "+err.Error()).WithCause(err), api.StageContextAnalysis)
			}

			// The index is authoritative from our side; a model echoing
			// the wrong one must not scramble the fold-in order.
			ins.Index = i
			insights[i] = ins
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return insights, nil
}

func (r *run) personaStage(ctx context.Context, contextPayload api.ContextAnalysis) (*api.StageResult, error) {
	key := personaKey(contextPayload, r.req.Participants)
	return r.o.flight.GetOrCompute(ctx, key, r.o.cfg.CacheTTL, func(ctx context.Context) (*api.StageResult, error) {
		in := r.inputs()
		in.Context = &contextPayload
		text, err := r.o.prompts.Render(api.StagePersonaAnalysis, in)
		if err != nil {
			return nil, err
		}
		return r.computeStage(ctx, callSpec{
			stage:      api.StagePersonaAnalysis,
			capability: provider.CapabilityText,
			prompt:     text,
		})
	})
}

func (r *run) replyStage(ctx context.Context, contextPayload api.ContextAnalysis, scenePayload api.SceneAnalysis, personaPayload api.PersonaAnalysis) (*api.StageResult, error) {
	key := replyKey(contextPayload, scenePayload, personaPayload, r.req.Tier, r.req.Language)
	return r.o.flight.GetOrCompute(ctx, key, r.o.cfg.CacheTTL, func(ctx context.Context) (*api.StageResult, error) {
		in := r.inputs()
		in.Context = &contextPayload
		in.Scene = &scenePayload
		in.Persona = &personaPayload
		text, err := r.o.prompts.Render(api.StageReply, in)
		if err != nil {
			return nil, err
		}
		return r.computeStage(ctx, callSpec{
			stage:      api.StageReply,
			capability: provider.CapabilityText,
			prompt:     text,
		})
	})
}
