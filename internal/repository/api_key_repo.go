// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proposalai/followups/internal/auth"
	"github.com/proposalai/followups/internal/domain"
)

// APIKeyRepository issues and resolves the bearer tokens that scope API
// requests to an organization.
type APIKeyRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAPIKeyRepository(pool *pgxpool.Pool, logger *slog.Logger) *APIKeyRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyRepository{pool: pool, logger: logger}
}

// ResolveAPIKey maps a bearer token to its organization and stamps
// last_used_at in the same statement. Unknown and revoked tokens report
// ok=false with no error.
func (r *APIKeyRepository) ResolveAPIKey(ctx context.Context, bearerToken string) (auth.APIKey, bool, error) {
	if bearerToken == "" {
		return auth.APIKey{}, false, nil
	}

	var key auth.APIKey
	err := r.pool.QueryRow(ctx, `
		UPDATE api_keys
		SET last_used_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
		RETURNING id, organization_id, max_requests_per_min
	`, auth.HashToken(bearerToken)).Scan(&key.ID, &key.OrganizationID, &key.MaxRequestsPerMin)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return auth.APIKey{}, false, nil
	case err != nil:
		r.logger.Error("resolve api key failed", "error", err)
		return auth.APIKey{}, false, storeErr("resolve api key", err)
	}

	if key.MaxRequestsPerMin <= 0 {
		key.MaxRequestsPerMin = domain.DefaultMaxRequestsPerMin
	}
	return key, true, nil
}

// CreateAPIKey issues a new token. Only its hash and display prefix are stored.
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, params domain.CreateAPIKeyParams) (domain.CreatedAPIKey, error) {
	params, err := params.Normalized()
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}

	token, tokenHash, err := auth.NewToken()
	if err != nil {
		r.logger.Error("generate api key token failed", "error", err)
		return domain.CreatedAPIKey{}, err
	}

	id := uuid.New()
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, name, organization_id, token_hash, token_prefix, max_requests_per_min)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, params.Name, params.OrganizationID, tokenHash, auth.DisplayPrefix(token), params.MaxRequestsPerMin); err != nil {
		r.logger.Error("create api key failed", "organization_id", params.OrganizationID, "error", err)
		return domain.CreatedAPIKey{}, storeErr("create api key", err)
	}

	r.logger.Info("api key issued", "api_key_id", id, "organization_id", params.OrganizationID)
	return domain.CreatedAPIKey{ID: id, OrganizationID: params.OrganizationID, Token: token}, nil
}

// ListAPIKeys returns the unrevoked keys, newest first.
func (r *APIKeyRepository) ListAPIKeys(ctx context.Context) ([]domain.APIKeyRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, organization_id, token_prefix, max_requests_per_min, created_at, last_used_at
		FROM api_keys
		WHERE revoked_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		r.logger.Error("list api keys query failed", "error", err)
		return nil, storeErr("list api keys", err)
	}

	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.APIKeyRecord, error) {
		var rec domain.APIKeyRecord
		err := row.Scan(&rec.ID, &rec.Name, &rec.OrganizationID, &rec.TokenPrefix,
			&rec.MaxRequestsPerMin, &rec.CreatedAt, &rec.LastUsedAt)
		return rec, err
	})
	if err != nil {
		return nil, storeErr("list api keys", err)
	}
	return keys, nil
}

// RevokeAPIKey soft-deletes a key. Revoking twice reports ErrNotFound.
func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		r.logger.Error("revoke api key failed", "api_key_id", id, "error", err)
		return storeErr("revoke api key", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.Info("api key revoked", "api_key_id", id)
	return nil
}
