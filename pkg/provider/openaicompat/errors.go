package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wingman-dev/wingman/pkg/api"
)

// mapHTTPError converts a non-2xx backend response into a taxonomy error.
// Throttling maps to provider_rate_limited; auth failures and server
// errors map to provider_unavailable (the next candidate may be healthy);
// 400/404 and the remaining 4xx map to invalid_request, which propagates
// without fallback because the request shape will fail everywhere.
func mapHTTPError(provider string, resp *http.Response) error {
	message := extractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewProviderRateLimited(provider, message)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		return api.NewProviderUnavailable(provider, message)

	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		}
		return api.NewProviderUnavailable(provider, message)

	default:
		if message == "" {
			message = fmt.Sprintf("backend rejected request (HTTP %d)", resp.StatusCode)
		}
		return api.NewInvalidRequest("", message)
	}
}

// mapNetworkError converts a transport-level failure into a taxonomy
// error: deadline expiry becomes provider_timeout, everything else
// (connection refused, DNS failure) becomes provider_unavailable.
func mapNetworkError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewProviderTimeout(provider, "backend call deadline exceeded").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return api.NewProviderTimeout(provider, "backend call cancelled").WithCause(err)
	}
	return api.NewProviderUnavailable(provider, fmt.Sprintf("backend connection error: %s", err.Error())).WithCause(err)
}

// extractErrorMessage tries to parse the response body as a backend error
// envelope and returns its message if found.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
