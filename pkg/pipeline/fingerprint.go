package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strconv"

	"github.com/wingman-dev/wingman/pkg/api"
)

// digest hashes the given fields into a lowercase hex sha256. Fields are
// length-prefixed so adjacent values can never be confused ("ab","c" and
// "a","bc" digest differently).
func digest(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		io.WriteString(h, strconv.Itoa(len(f)))
		h.Write([]byte{':'})
		io.WriteString(h, f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// conversationFields flattens the semantic content of the conversation:
// speaker and text per entry, in order. Timestamps are deliberately
// excluded so a resubmitted transcript hits the same cache entries.
func conversationFields(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs)*2)
	for _, m := range msgs {
		out = append(out, m.Speaker, m.Text)
	}
	return out
}

// payloadJSON canonicalizes a stage payload for fingerprinting. Struct
// field order is fixed, so the encoding is deterministic.
func payloadJSON(p api.StagePayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		// Payload types contain only marshalable fields.
		panic("pipeline: marshaling stage payload: " + err.Error())
	}
	return string(b)
}

// sectionBreak marks the boundary between field groups of different
// origin inside one digest. Without it, shifting a value across the
// conversation/participant boundary could leave the field sequence
// unchanged.
const sectionBreak = "\x1f"

// contextKey fingerprints conversation content plus participant ids.
func contextKey(conversation []api.Message, participants []string) api.CacheKey {
	fields := append(conversationFields(conversation), sectionBreak)
	fields = append(fields, participants...)
	return api.CacheKey{Kind: api.StageContextAnalysis, Fingerprint: digest(fields...)}
}

// sceneKey fingerprints conversation content, or the image digest when
// the scene derives from a screenshot.
func sceneKey(conversation []api.Message, image *api.ImageRef) api.CacheKey {
	if image != nil {
		return api.CacheKey{Kind: api.StageSceneAnalysis, Fingerprint: digest(image.Digest())}
	}
	return api.CacheKey{Kind: api.StageSceneAnalysis, Fingerprint: digest(conversationFields(conversation)...)}
}

// imageKey fingerprints the image reference itself.
func imageKey(image *api.ImageRef) api.CacheKey {
	return api.CacheKey{Kind: api.StageImageResult, Fingerprint: digest(image.Digest())}
}

// personaKey fingerprints the context result plus the participant ids.
func personaKey(contextResult api.ContextAnalysis, participants []string) api.CacheKey {
	fields := append([]string{payloadJSON(contextResult)}, participants...)
	return api.CacheKey{Kind: api.StagePersonaAnalysis, Fingerprint: digest(fields...)}
}

// replyKey fingerprints all three dependent results plus tier and
// language, regardless of which strategy produced them.
func replyKey(contextResult api.ContextAnalysis, scene api.SceneAnalysis, persona api.PersonaAnalysis, tier, language string) api.CacheKey {
	return api.CacheKey{Kind: api.StageReply, Fingerprint: digest(
		payloadJSON(contextResult),
		payloadJSON(scene),
		payloadJSON(persona),
		tier,
		language,
	)}
}
