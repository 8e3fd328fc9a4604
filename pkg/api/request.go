package api

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Message is one conversation entry. Order within a conversation is
// significant and is preserved end to end, including through stages that
// enrich individual entries in parallel.
type Message struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageRef points at an optional screenshot that precedes the transcript.
// Either URL or Data is set, not both.
type ImageRef struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// Digest returns a stable hex digest of the referenced image: the sha256
// of the bytes when inline data is present, otherwise of the URL.
func (r *ImageRef) Digest() string {
	var sum [32]byte
	if len(r.Data) > 0 {
		sum = sha256.Sum256(r.Data)
	} else {
		sum = sha256.Sum256([]byte(r.URL))
	}
	return hex.EncodeToString(sum[:])
}

// Strategy selects how the orchestrator traverses the stage graph.
// Both strategies write results under identical per-stage cache keys,
// so runs of one strategy satisfy later runs of the other from cache.
type Strategy string

const (
	// StrategyTraditional computes context, scene, and persona analysis
	// as independent provider calls, then the reply.
	StrategyTraditional Strategy = "traditional"

	// StrategyMerged issues one combined provider call whose response is
	// split into context and scene results. Persona analysis still runs
	// as its own call because it depends on the context result.
	StrategyMerged Strategy = "merged"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyTraditional || s == StrategyMerged
}

// PipelineRequest is the external input to the orchestrator. It is
// created once per incoming call and read-only thereafter.
type PipelineRequest struct {
	RequestID    string    `json:"request_id,omitempty"`
	Conversation []Message `json:"conversation"`
	Participants []string  `json:"participants"`
	Language     string    `json:"language,omitempty"`
	Tier         string    `json:"tier,omitempty"`
	Image        *ImageRef `json:"image,omitempty"`
	Strategy     Strategy  `json:"strategy,omitempty"`
}

// Validate checks the request for the fields the orchestrator requires.
func (r *PipelineRequest) Validate() error {
	if len(r.Conversation) == 0 && r.Image == nil {
		return NewInvalidRequest("conversation", "conversation or image is required")
	}
	if len(r.Participants) == 0 {
		return NewInvalidRequest("participants", "at least one participant id is required")
	}
	if r.Strategy != "" && !r.Strategy.Valid() {
		return NewInvalidRequest("strategy", `strategy must be "traditional" or "merged"`)
	}
	if r.Image != nil && r.Image.URL == "" && len(r.Image.Data) == 0 {
		return NewInvalidRequest("image", "image requires url or data")
	}
	return nil
}

// PipelineResult is the final output: the generated reply plus the chain
// of stage results that produced it, with cost and latency aggregated.
type PipelineResult struct {
	RequestID    string         `json:"request_id"`
	Reply        string         `json:"reply"`
	Alternatives []string       `json:"alternatives,omitempty"`
	Stages       []*StageResult `json:"stages"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Duration     time.Duration  `json:"duration"`
}

// Aggregate recomputes the totals from the stage chain. Cached stages
// contribute no fresh cost, so their token counts are skipped.
func (r *PipelineResult) Aggregate() {
	r.InputTokens = 0
	r.OutputTokens = 0
	for _, s := range r.Stages {
		if s.FromCache {
			continue
		}
		r.InputTokens += s.InputTokens
		r.OutputTokens += s.OutputTokens
	}
}
