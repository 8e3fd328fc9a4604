package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageKind identifies one discrete unit of pipeline work. Each kind has
// a fixed payload shape and its own cache namespace; a cache key is never
// reused across kinds even if fingerprints collide.
type StageKind string

const (
	StageContextAnalysis StageKind = "context_analysis"
	StageSceneAnalysis   StageKind = "scene_analysis"
	StagePersonaAnalysis StageKind = "persona_analysis"
	StageImageResult     StageKind = "image_result"
	StageReply           StageKind = "reply"
)

// StageKinds lists all stage kinds in dependency-safe display order.
func StageKinds() []StageKind {
	return []StageKind{
		StageImageResult,
		StageContextAnalysis,
		StageSceneAnalysis,
		StagePersonaAnalysis,
		StageReply,
	}
}

// Valid reports whether k is a known stage kind.
func (k StageKind) Valid() bool {
	switch k {
	case StageContextAnalysis, StageSceneAnalysis, StagePersonaAnalysis,
		StageImageResult, StageReply:
		return true
	}
	return false
}

// CacheKey addresses one stage result. Two execution strategies that
// compute the same stage from the same inputs must derive the identical
// CacheKey; this is what lets a merged-flow run satisfy a later
// traditional-flow request from cache and vice versa.
type CacheKey struct {
	Kind        StageKind
	Fingerprint string // lowercase hex digest of the stage's semantic inputs
}

// String returns the storage form "<kind>:<fingerprint>". The kind prefix
// enforces the namespacing invariant at the storage layer.
func (k CacheKey) String() string {
	return string(k.Kind) + ":" + k.Fingerprint
}

// StagePayload is the closed set of per-stage result shapes. Only the
// payload types in this package implement it.
type StagePayload interface {
	// PayloadKind returns the stage kind this payload belongs to.
	PayloadKind() StageKind
}

// MessageInsight is the per-message enrichment produced during context
// analysis. Index refers to the position of the message in the original
// conversation; insights are always folded back in index order regardless
// of the completion order of the parallel sub-tasks that produced them.
type MessageInsight struct {
	Index     int    `json:"index"`
	Intent    string `json:"intent"`
	Sentiment string `json:"sentiment"`
}

// ContextAnalysis summarizes what the conversation is about.
type ContextAnalysis struct {
	Topic    string           `json:"topic"`
	Tone     string           `json:"tone"`
	Summary  string           `json:"summary"`
	Insights []MessageInsight `json:"insights,omitempty"`
}

func (ContextAnalysis) PayloadKind() StageKind { return StageContextAnalysis }

// SceneAnalysis describes the situational frame of the exchange.
type SceneAnalysis struct {
	Setting      string `json:"setting"`
	Relationship string `json:"relationship"`
	Phase        string `json:"phase"`
	Notes        string `json:"notes,omitempty"`
}

func (SceneAnalysis) PayloadKind() StageKind { return StageSceneAnalysis }

// PersonaAnalysis profiles the counterpart the reply is addressed to.
type PersonaAnalysis struct {
	Style     string   `json:"style"`
	Interests []string `json:"interests,omitempty"`
	Traits    []string `json:"traits,omitempty"`
}

func (PersonaAnalysis) PayloadKind() StageKind { return StagePersonaAnalysis }

// ImageResult holds the transcript and description recovered from a
// screenshot by a vision-capable provider.
type ImageResult struct {
	Transcript  []Message `json:"transcript,omitempty"`
	Description string    `json:"description"`
}

func (ImageResult) PayloadKind() StageKind { return StageImageResult }

// Reply is the final generated reply plus optional alternatives.
type Reply struct {
	Text         string   `json:"text"`
	Alternatives []string `json:"alternatives,omitempty"`
}

func (Reply) PayloadKind() StageKind { return StageReply }

// DecodePayload unmarshals data into the payload type for the given kind.
func DecodePayload(kind StageKind, data []byte) (StagePayload, error) {
	switch kind {
	case StageContextAnalysis:
		var p ContextAnalysis
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case StageSceneAnalysis:
		var p SceneAnalysis
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case StagePersonaAnalysis:
		var p PersonaAnalysis
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case StageImageResult:
		var p ImageResult
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case StageReply:
		var p Reply
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown stage kind %q", kind)
	}
}

// StageResult is one computed stage. Results are immutable once stored:
// a cache entry is replaced only by explicit invalidation (a changed
// fingerprint), never mutated in place.
type StageResult struct {
	Kind         StageKind     `json:"kind"`
	Payload      StagePayload  `json:"-"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Duration     time.Duration `json:"duration"`
	FromCache    bool          `json:"from_cache"`
}

// stageResultWire is the serialized form used by cache backends.
type stageResultWire struct {
	Kind         StageKind       `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	DurationMs   int64           `json:"duration_ms"`
	FromCache    bool            `json:"from_cache"`
}

// MarshalJSON encodes the result with its payload inline.
func (r *StageResult) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", r.Kind, err)
	}
	return json.Marshal(stageResultWire{
		Kind:         r.Kind,
		Payload:      payload,
		Provider:     r.Provider,
		Model:        r.Model,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		DurationMs:   r.Duration.Milliseconds(),
		FromCache:    r.FromCache,
	})
}

// UnmarshalJSON decodes the result, dispatching the payload by kind.
func (r *StageResult) UnmarshalJSON(data []byte) error {
	var w stageResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := DecodePayload(w.Kind, w.Payload)
	if err != nil {
		return fmt.Errorf("decoding %s payload: %w", w.Kind, err)
	}
	r.Kind = w.Kind
	r.Payload = payload
	r.Provider = w.Provider
	r.Model = w.Model
	r.InputTokens = w.InputTokens
	r.OutputTokens = w.OutputTokens
	r.Duration = time.Duration(w.DurationMs) * time.Millisecond
	r.FromCache = w.FromCache
	return nil
}
