// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/auth"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"
)

// publicPaths never require an API key.
var publicPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
	"/version": {},
}

type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, bearerToken string) (auth.APIKey, bool, error)
}

// APITokenAuth resolves the bearer token to an organization API key, applies
// the key's per-minute limit, and stores the key on the request context.
func APITokenAuth(resolver APIKeyResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return apiTokenAuthWithLimiter(resolver, newInMemoryRateLimiter(), logger)
}

func apiTokenAuthWithLimiter(
	resolver APIKeyResolver,
	limiter *inMemoryRateLimiter,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("middleware.APITokenAuth requires a resolver")
	}
	if limiter == nil {
		panic("middleware.APITokenAuth requires a limiter")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &apiKeyAuth{resolver: resolver, limiter: limiter, logger: logger}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			key, rej := a.authenticate(r)
			if rej != nil {
				rej.write(w)
				return
			}
			if rej := a.throttle(w, key); rej != nil {
				rej.write(w)
				return
			}

			// Replace the request in place so the outer request logger sees
			// the organization after next returns.
			*r = *r.WithContext(auth.WithAPIKey(r.Context(), key))
			next.ServeHTTP(w, r)
		})
	}
}

type apiKeyAuth struct {
	resolver APIKeyResolver
	limiter  *inMemoryRateLimiter
	logger   *slog.Logger
}

// rejection is a terminal auth response.
type rejection struct {
	status int
	msg    string
}

func (rej *rejection) write(w http.ResponseWriter) {
	if rej.status == http.StatusUnauthorized {
		unauthorized(w, rej.msg)
		return
	}
	http.Error(w, rej.msg, rej.status)
}

func (a *apiKeyAuth) authenticate(r *http.Request) (auth.APIKey, *rejection) {
	invalid := &rejection{status: http.StatusUnauthorized, msg: "missing or invalid API token"}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		a.logger.Warn("request without bearer token", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		return auth.APIKey{}, invalid
	}

	key, found, err := a.resolver.ResolveAPIKey(r.Context(), token)
	switch {
	case err != nil:
		a.logger.Error("api key resolution failed", "path", r.URL.Path, "error", err)
		return auth.APIKey{}, &rejection{status: http.StatusInternalServerError, msg: "auth lookup failed"}
	case !found:
		a.logger.Warn("unknown or revoked api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		return auth.APIKey{}, invalid
	case key.OrganizationID == uuid.Nil:
		a.logger.Error("api key has no organization", "api_key_id", key.ID)
		return auth.APIKey{}, &rejection{status: http.StatusForbidden, msg: "api key is not bound to an organization"}
	}
	return key, nil
}

// throttle applies the key's per-minute budget and always reports it in
// the response headers.
func (a *apiKeyAuth) throttle(w http.ResponseWriter, key auth.APIKey) *rejection {
	d := a.limiter.Allow(key.ID, key.MaxRequestsPerMin, time.Now())
	h := w.Header()
	h.Set(headerRateLimitLimit, strconv.Itoa(d.LimitPerMinute))
	h.Set(headerRateLimitRemaining, strconv.Itoa(d.Remaining))
	if d.Allowed {
		return nil
	}
	a.logger.Warn("api key rate limited", "api_key_id", key.ID, "organization_id", key.OrganizationID)
	h.Set(headerRetryAfter, strconv.Itoa(d.RetryAfterSeconds))
	return &rejection{status: http.StatusTooManyRequests, msg: "rate limit exceeded"}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, msg, http.StatusUnauthorized)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
