package extract

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/debug"
)

// excerptLen bounds the diagnostic excerpt attached to extraction errors.
// The full raw text goes to the failed-output store, not into the error.
const excerptLen = 160

// Phases at which extraction can be abandoned, reported in the error
// message alongside the repair step names.
const (
	PhaseStrictParse = "strict_parse"
	PhaseObjectScan  = "object_scan"
	PhaseTypedDecode = "typed_decode"
)

// Document repairs raw model output and returns the text of the first
// parseable JSON object, plus the names of the repair steps that changed
// the text. When the repaired text does not parse, the ORIGINAL text is
// scanned for a syntactically complete top-level object.
func Document(raw string) (string, []string, error) {
	repaired, applied := RepairSteps(raw)

	if gjson.Valid(repaired) {
		return repaired, applied, nil
	}

	// Strict parse failed: fall back to scanning the original text.
	debug.Log("extract", "strict parse failed, scanning for complete object",
		"repair_steps", applied)
	if obj, ok := FirstObject(raw); ok && gjson.Valid(obj) {
		return obj, applied, nil
	}

	return "", applied, unparsable(PhaseObjectScan, raw)
}

// Stage extracts the typed payload for the given stage kind from raw
// model output, reporting the names of the repair steps that changed the
// text. On failure it returns an unparsable_model_output error carrying
// the abandoned phase and a truncated excerpt; the caller decides whether
// to retry the upstream call or surface the error.
func Stage(kind api.StageKind, raw string) (api.StagePayload, []string, error) {
	doc, applied, err := Document(raw)
	if err != nil {
		return nil, applied, err
	}

	payload, err := api.DecodePayload(kind, []byte(doc))
	if err == nil {
		return payload, applied, nil
	}

	// The repaired text parsed but is not the stage's shape (an array
	// wrapping the object, a bare scalar). Scan the original text for a
	// complete object and decode that before giving up.
	debug.Log("extract", "typed decode failed, scanning for complete object",
		"kind", kind, "repair_steps", applied)
	if obj, ok := FirstObject(raw); ok && gjson.Valid(obj) {
		if payload, scanErr := api.DecodePayload(kind, []byte(obj)); scanErr == nil {
			return payload, applied, nil
		}
	}

	return nil, applied, unparsable(PhaseTypedDecode, raw).WithCause(err)
}

// Section extracts the typed payload for a stage kind from one named
// section of an already-extracted document. Merged-flow responses carry
// multiple stage results in a single envelope; this pulls one of them out.
func Section(kind api.StageKind, doc, path string) (api.StagePayload, error) {
	section := gjson.Get(doc, path)
	if !section.Exists() || !section.IsObject() {
		return nil, unparsable(PhaseTypedDecode, doc).
			WithCause(fmt.Errorf("section %q missing from merged envelope", path))
	}

	payload, err := api.DecodePayload(kind, []byte(section.Raw))
	if err != nil {
		return nil, unparsable(PhaseTypedDecode, doc).WithCause(err)
	}
	return payload, nil
}

// unparsable builds the taxonomy error for an abandoned extraction.
func unparsable(phase, raw string) *api.Error {
	return api.NewUnparsableOutput(fmt.Sprintf(
		"no complete JSON object recovered (abandoned at %s): %s",
		phase, debug.Truncate(raw, excerptLen)))
}
