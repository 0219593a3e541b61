// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRequestsPerMin applies to keys issued without an explicit limit.
const DefaultMaxRequestsPerMin = 120

// CreateAPIKeyParams describes a key to issue for one organization.
type CreateAPIKeyParams struct {
	Name              string
	OrganizationID    uuid.UUID
	MaxRequestsPerMin int
}

// Normalized trims the name and fills the default rate limit. It fails with
// ErrInvalidAPIKeyName when the key cannot be bound to an organization.
func (p CreateAPIKeyParams) Normalized() (CreateAPIKeyParams, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || p.OrganizationID == uuid.Nil {
		return CreateAPIKeyParams{}, ErrInvalidAPIKeyName
	}
	if p.MaxRequestsPerMin <= 0 {
		p.MaxRequestsPerMin = DefaultMaxRequestsPerMin
	}
	return p, nil
}

// CreatedAPIKey is returned once at issue time. Token is never readable again.
type CreatedAPIKey struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Token          string
}

// APIKeyRecord is the listable view of an issued key. TokenPrefix lets an
// operator match a key to a client config without exposing the secret.
type APIKeyRecord struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	OrganizationID    uuid.UUID  `json:"organization_id"`
	TokenPrefix       string     `json:"token_prefix"`
	MaxRequestsPerMin int        `json:"max_requests_per_min"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}
