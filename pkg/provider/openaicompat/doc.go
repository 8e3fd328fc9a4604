// Package openaicompat implements the provider.Adapter contract against
// any OpenAI-compatible Chat Completions backend (OpenAI itself, vLLM,
// LiteLLM proxies, and most hosted gateways).
//
// Text calls send a plain user message; vision calls attach the image as
// an image_url content part, using a data URL when the image bytes are
// inline. Backend failures are mapped onto the pipeline error taxonomy
// in errors.go.
package openaicompat
