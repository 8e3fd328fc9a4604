package openaicompat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/debug"
	"github.com/wingman-dev/wingman/pkg/provider"
)

// Config configures one Chat Completions adapter.
type Config struct {
	// Name is the provider identifier used in trace events and errors.
	Name string

	// BaseURL is the backend root; "/v1/chat/completions" is appended.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// TextModel is the model used for text calls.
	TextModel string

	// VisionModel is the model used for vision calls. When empty, the
	// adapter declares no vision capability.
	VisionModel string

	// Priority is the fallback rank; lower ranks are tried first.
	Priority int

	// Timeout bounds each backend call. Defaults to 60s.
	Timeout time.Duration
}

// Adapter is a provider.Adapter over an OpenAI-compatible backend.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// Ensure Adapter implements provider.Adapter at compile time.
var _ provider.Adapter = (*Adapter)(nil)

// New creates an adapter from the given configuration.
func New(cfg Config) *Adapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the configured provider identifier.
func (a *Adapter) Name() string { return a.cfg.Name }

// Capabilities declares text always, vision only with a vision model.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet{
		Text:   true,
		Vision: a.cfg.VisionModel != "",
	}
}

// Priority returns the fallback rank.
func (a *Adapter) Priority() int { return a.cfg.Priority }

// Model returns the configured model for the given capability.
func (a *Adapter) Model(c provider.Capability) string {
	switch c {
	case provider.CapabilityText:
		return a.cfg.TextModel
	case provider.CapabilityVision:
		return a.cfg.VisionModel
	}
	return ""
}

// CallText performs a text-only completion.
func (a *Adapter) CallText(ctx context.Context, prompt string, opts provider.CallOptions) (string, provider.Usage, error) {
	model := a.cfg.TextModel
	if opts.Model != "" {
		model = opts.Model
	}
	req := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	return a.complete(ctx, req)
}

// CallVision performs a completion over a prompt plus an image, attached
// as an image_url content part. Inline bytes are sent as a data URL.
func (a *Adapter) CallVision(ctx context.Context, prompt string, image *api.ImageRef, opts provider.CallOptions) (string, provider.Usage, error) {
	if a.cfg.VisionModel == "" {
		return "", provider.Usage{}, api.NewCapabilityUnsupported(a.cfg.Name, "backend has no vision model configured")
	}
	if image == nil {
		return "", provider.Usage{}, api.NewInvalidRequest("image", "vision call requires an image reference")
	}

	model := a.cfg.VisionModel
	if opts.Model != "" {
		model = opts.Model
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL(image)}},
			},
		}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	return a.complete(ctx, req)
}

// complete sends the request and returns the first choice's content.
func (a *Adapter) complete(ctx context.Context, req chatRequest) (string, provider.Usage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", provider.Usage{}, api.NewInvalidRequest("", fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := a.cfg.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", provider.Usage{}, api.NewInvalidRequest("", fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	debug.Log("providers", "backend request",
		"provider", a.cfg.Name, "model", req.Model, "url", url)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// The client wraps context errors in a url.Error; prefer the
		// context's own error for taxonomy mapping.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", provider.Usage{}, mapNetworkError(a.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", provider.Usage{}, mapHTTPError(a.cfg.Name, httpResp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return "", provider.Usage{}, api.NewProviderUnavailable(a.cfg.Name, fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	if len(chatResp.Choices) == 0 {
		return "", provider.Usage{}, api.NewProviderUnavailable(a.cfg.Name, "backend produced no choices")
	}

	usage := provider.Usage{
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}

	text := chatResp.Choices[0].Message.Content
	debug.Trace("providers", "backend response",
		"provider", a.cfg.Name, "model", chatResp.Model,
		"text", debug.Truncate(text, 200),
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)

	return text, usage, nil
}

// Close releases the HTTP client's idle connections.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// imageDataURL renders the image reference for an image_url part:
// remote references pass through, inline bytes become a data URL.
func imageDataURL(image *api.ImageRef) string {
	if image.URL != "" {
		return image.URL
	}
	mime := image.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}
