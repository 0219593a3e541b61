// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// AdminTokenAuth guards operator routes: API key lifecycle and manually
// triggered scheduler passes. An unset token disables those routes.
func AdminTokenAuth(adminToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	want := []byte(strings.TrimSpace(adminToken))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				logger.Error("admin route hit without ADMIN_TOKEN", "path", r.URL.Path)
				http.Error(w, "admin auth not configured", http.StatusInternalServerError)
				return
			}

			got, _ := bearerToken(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				logger.Warn("admin token rejected", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				unauthorized(w, "missing or invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
