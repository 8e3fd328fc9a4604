package auth

import (
	"log/slog"
	"net/http"

	"github.com/wingman-dev/wingman/pkg/observability"
)

// DefaultBypassEndpoints lists paths that skip authentication: probes
// and the metrics scrape.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware builds HTTP middleware from an AuthChain and an optional
// RateLimiter. Requests to bypass paths pass straight through; everything
// else must authenticate, then clear the rate limiter, before the
// identity lands in the request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				http.Error(w, `{"error":{"kind":"invalid_request","message":"authentication required"}}`, http.StatusUnauthorized)
				return
			}

			// An empty subject on a Yes vote is an authenticator bug.
			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				http.Error(w, `{"error":{"kind":"internal","message":"internal authentication error"}}`, http.StatusInternalServerError)
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.Tier(),
					)
					observability.RateLimitRejectedTotal.WithLabelValues(result.Identity.ServiceTier).Inc()
					http.Error(w, `{"error":{"kind":"invalid_request","message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
					return
				}
			}

			ctx := SetIdentity(r.Context(), result.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
