// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/proposalai/followups/internal/domain"
)

const uniqueViolation = "23505"

// storeErr marks an infrastructure failure so callers can abort a pass.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
