package prompt

// Template names beyond the stage kinds.
const (
	templateMerged  = "merged_analysis"
	templateInsight = "message_insight"
)

// builtinTemplates maps template name to template text. Every prompt
// demands a bare JSON object so the extractor has a fighting chance even
// with weaker models.
var builtinTemplates = map[string]string{
	"context_analysis": `Analyze the following conversation.

Conversation:
{{transcript .Conversation}}

Participants: {{join .Participants ", "}}

Respond with a single JSON object, no markdown, no commentary:
{"topic": "...", "tone": "...", "summary": "..."}`,

	"scene_analysis": `Describe the situational frame of the following exchange.
{{if .ImageResult}}
The conversation was recovered from a screenshot described as:
{{.ImageResult.Description}}
{{end}}
Conversation:
{{transcript .Conversation}}

Respond with a single JSON object, no markdown, no commentary:
{"setting": "...", "relationship": "...", "phase": "...", "notes": "..."}`,

	"persona_analysis": `Profile the counterpart in this conversation so a reply can match their style.

Conversation topic: {{.Context.Topic}}
Conversation tone: {{.Context.Tone}}
Summary: {{.Context.Summary}}

Conversation:
{{transcript .Conversation}}

Respond with a single JSON object, no markdown, no commentary:
{"style": "...", "interests": ["..."], "traits": ["..."]}`,

	"image_result": `The attached image is a screenshot of a chat conversation.
Transcribe the visible messages in order and describe anything else notable.

Respond with a single JSON object, no markdown, no commentary:
{"transcript": [{"speaker": "...", "text": "..."}], "description": "..."}`,

	"reply": `Write a reply for this conversation.

Topic: {{.Context.Topic}}
Tone: {{.Context.Tone}}
Summary: {{.Context.Summary}}
Setting: {{.Scene.Setting}}
Relationship: {{.Scene.Relationship}}
Phase: {{.Scene.Phase}}
Counterpart style: {{.Persona.Style}}
{{if .Persona.Interests}}Counterpart interests: {{join .Persona.Interests ", "}}
{{end}}Quality tier: {{.Tier}}
{{if .Language}}Write the reply in language: {{.Language}}
{{end}}
Conversation:
{{transcript .Conversation}}

Respond with a single JSON object, no markdown, no commentary:
{"text": "...", "alternatives": ["...", "..."]}`,

	templateMerged: `Analyze the following conversation in two ways at once.
{{if .ImageResult}}
The conversation was recovered from a screenshot described as:
{{.ImageResult.Description}}
{{end}}
Conversation:
{{transcript .Conversation}}

Participants: {{join .Participants ", "}}

Respond with a single JSON object with exactly two keys, no markdown,
no commentary:
{"context": {"topic": "...", "tone": "...", "summary": "..."},
 "scene": {"setting": "...", "relationship": "...", "phase": "...", "notes": "..."}}`,

	templateInsight: `Classify one message from a conversation.

Full conversation:
{{transcript .Conversation}}

Message #{{.Index}} ({{.Message.Speaker}}): {{.Message.Text}}

Respond with a single JSON object, no markdown, no commentary:
{"index": {{.Index}}, "intent": "...", "sentiment": "..."}`,
}
