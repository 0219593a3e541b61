// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the Postgres repositories behind the engine's store and
// proposal reader interfaces.
type Store struct {
	*SequenceRepository
	*ExecutionRepository
	*ProposalRepository
	*APIKeyRepository
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{
		SequenceRepository:  NewSequenceRepository(pool, logger),
		ExecutionRepository: NewExecutionRepository(pool, logger),
		ProposalRepository:  NewProposalRepository(pool, logger),
		APIKeyRepository:    NewAPIKeyRepository(pool, logger),
	}
}
