// Package prompt defines the prompt source collaborator: given a stage
// kind and the inputs resolved so far, it renders the text sent to the
// provider. A built-in template set ships here; external template
// storage and versioning are out of scope.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/wingman-dev/wingman/pkg/api"
)

// StageInputs carries everything a stage prompt may draw on. Upstream
// stage results are nil until the corresponding stage has resolved.
type StageInputs struct {
	Conversation []api.Message
	Participants []string
	Language     string
	Tier         string

	Image       *api.ImageRef
	ImageResult *api.ImageResult
	Context     *api.ContextAnalysis
	Scene       *api.SceneAnalysis
	Persona     *api.PersonaAnalysis
}

// Source renders prompts for the pipeline.
type Source interface {
	// Render produces the prompt for one stage.
	Render(kind api.StageKind, in StageInputs) (string, error)

	// RenderMerged produces the combined prompt whose response carries a
	// "context" and a "scene" section in one JSON envelope.
	RenderMerged(in StageInputs) (string, error)

	// RenderInsight produces the prompt for a single conversation entry's
	// intent/sentiment classification.
	RenderInsight(in StageInputs, index int) (string, error)
}

// Builtin is the shipped template set.
type Builtin struct {
	templates map[string]*template.Template
}

var _ Source = (*Builtin)(nil)

// NewBuiltin parses the shipped templates. Parsing failures are
// programming errors and panic at startup.
func NewBuiltin() *Builtin {
	b := &Builtin{templates: make(map[string]*template.Template)}
	for name, text := range builtinTemplates {
		b.templates[name] = template.Must(template.New(name).Funcs(funcs).Parse(text))
	}
	return b
}

// Render produces the prompt for one stage.
func (b *Builtin) Render(kind api.StageKind, in StageInputs) (string, error) {
	return b.render(string(kind), templateData{StageInputs: in})
}

// RenderMerged produces the combined context+scene prompt.
func (b *Builtin) RenderMerged(in StageInputs) (string, error) {
	return b.render(templateMerged, templateData{StageInputs: in})
}

// RenderInsight produces the per-message classification prompt.
func (b *Builtin) RenderInsight(in StageInputs, index int) (string, error) {
	if index < 0 || index >= len(in.Conversation) {
		return "", fmt.Errorf("insight index %d out of range (%d messages)", index, len(in.Conversation))
	}
	return b.render(templateInsight, templateData{
		StageInputs: in,
		Index:       index,
		Message:     &in.Conversation[index],
	})
}

func (b *Builtin) render(name string, data templateData) (string, error) {
	tpl, ok := b.templates[name]
	if !ok {
		return "", fmt.Errorf("no template for %q", name)
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", name, err)
	}
	return sb.String(), nil
}

// templateData is what the templates see.
type templateData struct {
	StageInputs
	Index   int
	Message *api.Message
}

var funcs = template.FuncMap{
	"transcript": formatTranscript,
	"join":       strings.Join,
}

// formatTranscript renders the conversation as "speaker: text" lines.
func formatTranscript(msgs []api.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.Speaker)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
	}
	return sb.String()
}
