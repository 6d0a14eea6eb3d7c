package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/observability"
)

// DefaultBypassPaths skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates every request outside bypass, applies limiter
// when non-nil and stores the Identity in the request context.
func Middleware(chain *Chain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				err := res.Err
				if err == nil {
					err = ErrUnauthenticated
				}
				slog.Warn("authentication failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", err)
				if errors.Is(err, ErrForbidden) {
					writeError(w, http.StatusForbidden, "forbidden", ErrForbidden.Error())
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp-census"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthenticated.Error())
				return
			}
			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned an identity without subject")
				writeError(w, http.StatusInternalServerError, "server_error", "internal authentication error")
				return
			}
			debug.Log("auth", "authenticated", "subject", id.Subject, "tier", id.ServiceTier, "path", r.URL.Path)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(id)).Inc()
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", tierLabel(id))
					var rle *RateLimitError
					if errors.As(err, &rle) {
						w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rle.RetryAfter.Seconds()))))
					}
					writeError(w, http.StatusTooManyRequests, "too_many_requests", ErrTooManyRequests.Error())
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func tierLabel(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": typ, "message": msg},
	})
}
