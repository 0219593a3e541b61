// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proposalai/followups/internal/domain"
)

// ProposalRepository reads proposal and client state owned by the
// surrounding application.
type ProposalRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProposalRepository(pool *pgxpool.Pool, logger *slog.Logger) *ProposalRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProposalRepository{pool: pool, logger: logger}
}

func (r *ProposalRepository) GetProposal(ctx context.Context, id uuid.UUID) (domain.ProposalSnapshot, error) {
	var p domain.ProposalSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT p.id,
		       p.organization_id,
		       p.title,
		       p.status,
		       p.value::float8,
		       p.sent_at,
		       p.client_replied,
		       p.follow_up_stopped,
		       COALESCE(c.name, ''),
		       COALESCE(c.email, ''),
		       COALESCE(c.company, ''),
		       COALESCE(c.client_type, ''),
		       o.name
		FROM proposals p
		JOIN organizations o ON o.id = p.organization_id
		LEFT JOIN clients c ON c.id = p.client_id
		WHERE p.id=$1
	`, id).Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Title,
		&p.Status,
		&p.Value,
		&p.SentAt,
		&p.ClientReplied,
		&p.FollowUpStopped,
		&p.ClientName,
		&p.ClientEmail,
		&p.ClientCompany,
		&p.ClientType,
		&p.CompanyName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProposalSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		r.logger.Error("get proposal failed", "proposal_id", id, "error", err)
		return domain.ProposalSnapshot{}, storeErr("get proposal", err)
	}
	return p, nil
}
