package prompt

import (
	"strings"
	"testing"

	"github.com/wingman-dev/wingman/pkg/api"
)

func sampleInputs() StageInputs {
	return StageInputs{
		Conversation: []api.Message{
			{Speaker: "alex", Text: "Up for climbing Saturday?"},
			{Speaker: "me", Text: "Maybe, which gym?"},
		},
		Participants: []string{"alex", "me"},
		Language:     "en",
		Tier:         "premium",
		Context:      &api.ContextAnalysis{Topic: "climbing plans", Tone: "casual", Summary: "making weekend plans"},
		Scene:        &api.SceneAnalysis{Setting: "texting", Relationship: "friends", Phase: "mid"},
		Persona:      &api.PersonaAnalysis{Style: "direct", Interests: []string{"climbing"}},
	}
}

func TestRenderAllStageKinds(t *testing.T) {
	b := NewBuiltin()
	in := sampleInputs()
	in.ImageResult = &api.ImageResult{Description: "chat screenshot"}

	for _, kind := range api.StageKinds() {
		t.Run(string(kind), func(t *testing.T) {
			out, err := b.Render(kind, in)
			if err != nil {
				t.Fatalf("Render(%s): %v", kind, err)
			}
			if out == "" {
				t.Fatal("empty prompt")
			}
			if !strings.Contains(out, "JSON object") {
				t.Error("prompt does not demand a JSON object")
			}
		})
	}
}

func TestRenderIncludesTranscript(t *testing.T) {
	b := NewBuiltin()

	out, err := b.Render(api.StageContextAnalysis, sampleInputs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "alex: Up for climbing Saturday?") {
		t.Errorf("transcript missing:\n%s", out)
	}
	if !strings.Contains(out, "alex, me") {
		t.Errorf("participants missing:\n%s", out)
	}
}

func TestRenderReplyCarriesTierAndLanguage(t *testing.T) {
	b := NewBuiltin()

	out, err := b.Render(api.StageReply, sampleInputs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"premium", "language: en", "climbing plans", "direct"} {
		if !strings.Contains(out, want) {
			t.Errorf("reply prompt missing %q:\n%s", want, out)
		}
	}
}

func TestRenderMerged(t *testing.T) {
	b := NewBuiltin()

	out, err := b.RenderMerged(sampleInputs())
	if err != nil {
		t.Fatalf("RenderMerged: %v", err)
	}
	if !strings.Contains(out, `"context"`) || !strings.Contains(out, `"scene"`) {
		t.Errorf("merged prompt does not name both sections:\n%s", out)
	}
}

func TestRenderInsight(t *testing.T) {
	b := NewBuiltin()

	out, err := b.RenderInsight(sampleInputs(), 1)
	if err != nil {
		t.Fatalf("RenderInsight: %v", err)
	}
	if !strings.Contains(out, "Message #1 (me): Maybe, which gym?") {
		t.Errorf("insight prompt missing target message:\n%s", out)
	}
}

func TestRenderInsightOutOfRange(t *testing.T) {
	b := NewBuiltin()

	if _, err := b.RenderInsight(sampleInputs(), 5); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
