// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/google/uuid"
)

type apiKeyContextKey struct{}

var ctxAPIKeyKey apiKeyContextKey

// APIKey is the authenticated principal of an API request. Every key belongs
// to exactly one organization and all data access is scoped to it.
type APIKey struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	MaxRequestsPerMin int
}

// WithAPIKey stores the resolved API key on the request context.
func WithAPIKey(ctx context.Context, key APIKey) context.Context {
	return context.WithValue(ctx, ctxAPIKeyKey, key)
}

// APIKeyFromContext reads the resolved API key from context.
func APIKeyFromContext(ctx context.Context) (APIKey, bool) {
	key, ok := ctx.Value(ctxAPIKeyKey).(APIKey)
	if !ok || key.ID == uuid.Nil {
		return APIKey{}, false
	}
	return key, true
}

// OrganizationIDFromContext reads the organization of the authenticated key.
func OrganizationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	key, ok := APIKeyFromContext(ctx)
	if !ok || key.OrganizationID == uuid.Nil {
		return uuid.Nil, false
	}
	return key.OrganizationID, true
}
