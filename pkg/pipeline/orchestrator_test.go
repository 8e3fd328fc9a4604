package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	cachemem "github.com/wingman-dev/wingman/pkg/cache/memory"
	"github.com/wingman-dev/wingman/pkg/observability"
	"github.com/wingman-dev/wingman/pkg/provider"
	storemem "github.com/wingman-dev/wingman/pkg/storage/memory"
)

// stubAdapter is a scripted provider.Adapter. It recognizes the built-in
// prompts by their lead-in phrases and answers with canned stage JSON.
type stubAdapter struct {
	name     string
	priority int
	vision   bool

	// delay is applied to every call, bounded by the caller's context.
	delay time.Duration
	// insightDelay simulates uneven completion of per-message work.
	insightDelay func(index int) time.Duration
	// respond overrides the canned responses when set.
	respond func(prompt string) (string, error)

	mu      sync.Mutex
	calls   int
	prompts []string
}

var _ provider.Adapter = (*stubAdapter)(nil)

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet{Text: true, Vision: s.vision}
}
func (s *stubAdapter) Priority() int { return s.priority }
func (s *stubAdapter) Model(c provider.Capability) string {
	if c == provider.CapabilityVision {
		return "stub-vision"
	}
	return "stub-text"
}
func (s *stubAdapter) Close() error { return nil }

func (s *stubAdapter) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAdapter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *stubAdapter) CallText(ctx context.Context, prompt string, _ provider.CallOptions) (string, provider.Usage, error) {
	return s.answer(ctx, prompt)
}

func (s *stubAdapter) CallVision(ctx context.Context, prompt string, image *api.ImageRef, _ provider.CallOptions) (string, provider.Usage, error) {
	if !s.vision {
		return "", provider.Usage{}, api.NewCapabilityUnsupported(s.name, "no vision model")
	}
	return s.answer(ctx, prompt)
}

func (s *stubAdapter) answer(ctx context.Context, prompt string) (string, provider.Usage, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", provider.Usage{}, api.NewProviderTimeout(s.name, "deadline expired")
		}
	}
	if s.insightDelay != nil && strings.Contains(prompt, "Classify one message") {
		time.Sleep(s.insightDelay(insightIndex(prompt)))
	}

	respond := s.respond
	if respond == nil {
		respond = canned
	}
	text, err := respond(prompt)
	if err != nil {
		return "", provider.Usage{}, err
	}
	return text, provider.Usage{InputTokens: 10, OutputTokens: 5}, nil
}

// canned maps the built-in prompts to well-formed stage output.
func canned(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "two ways at once"):
		return `{"context": {"topic": "weekend plans", "tone": "casual", "summary": "planning a climb"},
			"scene": {"setting": "texting", "relationship": "friends", "phase": "mid"}}`, nil
	case strings.Contains(prompt, "Classify one message"):
		idx := insightIndex(prompt)
		return fmt.Sprintf(`{"index": %d, "intent": "m%d", "sentiment": "neutral"}`, idx, idx), nil
	case strings.Contains(prompt, "situational frame"):
		return `{"setting": "texting", "relationship": "friends", "phase": "mid"}`, nil
	case strings.Contains(prompt, "Profile the counterpart"):
		return `{"style": "direct", "interests": ["climbing"], "traits": ["dry"]}`, nil
	case strings.Contains(prompt, "Write a reply"):
		return "```json\n{\"text\": \"Saturday works, book it\", \"alternatives\": [\"Sunday also fine\"]}\n```", nil
	case strings.Contains(prompt, "screenshot of a chat conversation"):
		return `{"transcript": [{"speaker": "alex", "text": "free this weekend?"}], "description": "a chat screenshot"}`, nil
	case strings.Contains(prompt, "Analyze the following conversation"):
		return `{"topic": "weekend plans", "tone": "casual", "summary": "planning a climb"}`, nil
	}
	return "", fmt.Errorf("unrecognized prompt: %.80s", prompt)
}

// insightIndex pulls N out of "Message #N (speaker): ...".
func insightIndex(prompt string) int {
	i := strings.Index(prompt, "Message #")
	if i < 0 {
		return -1
	}
	rest := prompt[i+len("Message #"):]
	n := 0
	for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		n = n*10 + int(rest[0]-'0')
		rest = rest[1:]
	}
	return n
}

func newTestOrchestrator(t *testing.T, cfg Config, adapters ...provider.Adapter) (*Orchestrator, *storemem.Store) {
	t.Helper()
	store := cachemem.New()
	t.Cleanup(func() { store.Close() })
	failures := storemem.New(0)
	return New(provider.NewRegistry(adapters...), store, failures, nil, observability.NopSink{}, cfg), failures
}

func baseRequest() *api.PipelineRequest {
	return &api.PipelineRequest{
		Conversation: []api.Message{
			{Speaker: "alex", Text: "Up for climbing Saturday?"},
			{Speaker: "me", Text: "Maybe, which gym?"},
		},
		Participants: []string{"alex", "me"},
		Tier:         "free",
		Language:     "en",
	}
}

func TestTraditionalFlow(t *testing.T) {
	stub := &stubAdapter{name: "stub", priority: 1}
	o, _ := newTestOrchestrator(t, Config{}, stub)

	res, err := o.Execute(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Reply != "Saturday works, book it" {
		t.Errorf("reply = %q", res.Reply)
	}
	if len(res.Alternatives) != 1 {
		t.Errorf("alternatives = %v", res.Alternatives)
	}
	if res.RequestID == "" {
		t.Error("request id not assigned")
	}

	wantKinds := []api.StageKind{
		api.StageContextAnalysis, api.StageSceneAnalysis,
		api.StagePersonaAnalysis, api.StageReply,
	}
	if len(res.Stages) != len(wantKinds) {
		t.Fatalf("got %d stages, want %d", len(res.Stages), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if res.Stages[i].Kind != kind {
			t.Errorf("stage[%d] = %s, want %s", i, res.Stages[i].Kind, kind)
		}
		if res.Stages[i].FromCache {
			t.Errorf("stage[%d] unexpectedly from cache", i)
		}
		if res.Stages[i].Provider != "stub" {
			t.Errorf("stage[%d] provider = %q", i, res.Stages[i].Provider)
		}
	}

	// 4 calls at 10 in / 5 out each.
	if res.InputTokens != 40 || res.OutputTokens != 20 {
		t.Errorf("tokens = %d/%d, want 40/20", res.InputTokens, res.OutputTokens)
	}
	if stub.CallCount() != 4 {
		t.Errorf("provider calls = %d, want 4", stub.CallCount())
	}
}

func TestMergedFlowSatisfiesTraditionalFromCache(t *testing.T) {
	stub := &stubAdapter{name: "stub", priority: 1}
	o, _ := newTestOrchestrator(t, Config{}, stub)
	ctx := context.Background()

	merged := baseRequest()
	merged.Strategy = api.StrategyMerged
	if _, err := o.Execute(ctx, merged); err != nil {
		t.Fatalf("merged Execute: %v", err)
	}
	// One combined call plus persona plus reply.
	if stub.CallCount() != 3 {
		t.Fatalf("merged flow made %d calls, want 3", stub.CallCount())
	}

	traditional := baseRequest()
	traditional.Strategy = api.StrategyTraditional
	res, err := o.Execute(ctx, traditional)
	if err != nil {
		t.Fatalf("traditional Execute: %v", err)
	}

	for _, s := range res.Stages {
		if !s.FromCache {
			t.Errorf("stage %s not served from cache after merged run", s.Kind)
		}
	}
	if stub.CallCount() != 3 {
		t.Errorf("traditional rerun made fresh calls: %d total, want 3", stub.CallCount())
	}
	// Cached stages contribute no fresh cost.
	if res.InputTokens != 0 || res.OutputTokens != 0 {
		t.Errorf("tokens = %d/%d, want 0/0", res.InputTokens, res.OutputTokens)
	}
}

func TestProviderFallback(t *testing.T) {
	primary := &stubAdapter{name: "primary", priority: 1, respond: func(string) (string, error) {
		return "", api.NewProviderRateLimited("primary", "slow down")
	}}
	backup := &stubAdapter{name: "backup", priority: 2}
	o, _ := newTestOrchestrator(t, Config{}, primary, backup)

	res, err := o.Execute(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, s := range res.Stages {
		if s.Provider != "backup" {
			t.Errorf("stage %s provider = %q, want backup", s.Kind, s.Provider)
		}
	}
	if primary.CallCount() == 0 {
		t.Error("primary was never attempted")
	}
}

func TestFallbackExhaustedPropagatesStage(t *testing.T) {
	down := &stubAdapter{name: "down", priority: 1, respond: func(string) (string, error) {
		return "", api.NewProviderUnavailable("down", "connection refused")
	}}
	o, _ := newTestOrchestrator(t, Config{}, down)

	_, err := o.Execute(context.Background(), baseRequest())
	if api.KindOf(err) != api.ErrorProviderUnavailable {
		t.Fatalf("kind = %q, want provider_unavailable", api.KindOf(err))
	}
}

func TestInvalidRequestRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{}, &stubAdapter{name: "stub", priority: 1})

	_, err := o.Execute(context.Background(), &api.PipelineRequest{})
	if api.KindOf(err) != api.ErrorInvalidRequest {
		t.Fatalf("kind = %q, want invalid_request", api.KindOf(err))
	}
}

func TestUnparsableOutputIsFatalAndRecorded(t *testing.T) {
	var failPersona atomic.Bool
	failPersona.Store(true)

	stub := &stubAdapter{name: "stub", priority: 1, respond: func(prompt string) (string, error) {
		if failPersona.Load() && strings.Contains(prompt, "Profile the counterpart") {
			return "I would rather not speculate about this person.", nil
		}
		return canned(prompt)
	}}
	o, failures := newTestOrchestrator(t, Config{}, stub)
	ctx := context.Background()

	_, err := o.Execute(ctx, baseRequest())
	if api.KindOf(err) != api.ErrorUnparsableOutput {
		t.Fatalf("kind = %q, want unparsable_model_output", api.KindOf(err))
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Stage != api.StagePersonaAnalysis {
		t.Errorf("error does not name the persona stage: %v", err)
	}

	recs, _ := failures.ListFailures(ctx, 0)
	if len(recs) != 1 {
		t.Fatalf("failure records = %d, want 1", len(recs))
	}
	if recs[0].Stage != api.StagePersonaAnalysis || !strings.Contains(recs[0].RawTextTruncated, "rather not") {
		t.Errorf("record = %+v", recs[0])
	}

	// Earlier stages were cached; the retry recomputes only from persona on.
	callsBefore := stub.CallCount()
	failPersona.Store(false)
	res, err := o.Execute(ctx, baseRequest())
	if err != nil {
		t.Fatalf("retry Execute: %v", err)
	}
	if !res.Stages[0].FromCache || !res.Stages[1].FromCache {
		t.Error("context/scene results were not reused on retry")
	}
	if got := stub.CallCount() - callsBefore; got != 2 {
		t.Errorf("retry made %d calls, want 2 (persona, reply)", got)
	}
}

func TestInsightOrderingUnderRandomDelays(t *testing.T) {
	stub := &stubAdapter{
		name:     "stub",
		priority: 1,
		insightDelay: func(int) time.Duration {
			return time.Duration(rand.Intn(30)) * time.Millisecond
		},
	}
	o, _ := newTestOrchestrator(t, Config{EnrichInsights: true, InsightWorkers: 5}, stub)

	req := &api.PipelineRequest{
		Conversation: []api.Message{
			{Speaker: "a", Text: "first"},
			{Speaker: "b", Text: "second"},
			{Speaker: "a", Text: "[image] third"},
			{Speaker: "b", Text: "fourth"},
			{Speaker: "a", Text: "[image] fifth"},
		},
		Participants: []string{"a", "b"},
	}

	res, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var contextRes *api.StageResult
	for _, s := range res.Stages {
		if s.Kind == api.StageContextAnalysis {
			contextRes = s
		}
	}
	if contextRes == nil {
		t.Fatal("no context stage in result")
	}

	insights := contextRes.Payload.(api.ContextAnalysis).Insights
	if len(insights) != 5 {
		t.Fatalf("got %d insights, want 5", len(insights))
	}
	for i, ins := range insights {
		if ins.Index != i {
			t.Errorf("insight[%d].Index = %d", i, ins.Index)
		}
		if want := fmt.Sprintf("m%d", i); ins.Intent != want {
			t.Errorf("insight[%d].Intent = %q, want %q (fold-in order scrambled)", i, ins.Intent, want)
		}
	}
}

func TestDeadlineAbortsWithTimeout(t *testing.T) {
	stub := &stubAdapter{name: "stub", priority: 1, delay: 150 * time.Millisecond}
	o, _ := newTestOrchestrator(t, Config{}, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := o.Execute(ctx, baseRequest())
	if api.KindOf(err) != api.ErrorTimeout {
		t.Fatalf("kind = %q, want timeout", api.KindOf(err))
	}
}

// brokenCacheStore fails every operation, simulating a dead backend.
type brokenCacheStore struct{}

func (brokenCacheStore) Get(context.Context, api.CacheKey) (*api.StageResult, error) {
	return nil, api.NewCacheBackend("get: backend down")
}
func (brokenCacheStore) Put(context.Context, api.CacheKey, *api.StageResult, time.Duration) error {
	return api.NewCacheBackend("put: backend down")
}
func (brokenCacheStore) HealthCheck(context.Context) error {
	return api.NewCacheBackend("ping: backend down")
}
func (brokenCacheStore) Close() error { return nil }

func TestCacheBackendDegradesToRecompute(t *testing.T) {
	stub := &stubAdapter{name: "stub", priority: 1}
	failures := storemem.New(0)
	o := New(provider.NewRegistry(stub), brokenCacheStore{}, failures, nil, observability.NopSink{}, Config{})
	ctx := context.Background()

	if _, err := o.Execute(ctx, baseRequest()); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := o.Execute(ctx, baseRequest()); err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	// Nothing could be cached, so the second run repeats all 4 calls.
	if stub.CallCount() != 8 {
		t.Errorf("calls = %d, want 8", stub.CallCount())
	}
}

func TestImageFlow(t *testing.T) {
	stub := &stubAdapter{name: "stub", priority: 1, vision: true}
	o, _ := newTestOrchestrator(t, Config{}, stub)

	req := &api.PipelineRequest{
		Participants: []string{"alex", "me"},
		Image:        &api.ImageRef{URL: "https://example.com/shot.png"},
	}

	res, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Stages[0].Kind != api.StageImageResult {
		t.Fatalf("first stage = %s, want image_result", res.Stages[0].Kind)
	}
	if len(res.Stages) != 5 {
		t.Errorf("got %d stages, want 5", len(res.Stages))
	}

	// The recovered transcript feeds the downstream analysis prompts.
	found := false
	for _, p := range stub.Prompts() {
		if strings.Contains(p, "Analyze the following conversation") &&
			strings.Contains(p, "free this weekend?") {
			found = true
		}
	}
	if !found {
		t.Error("context prompt does not carry the recovered transcript")
	}
}
