// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proposalai/followups/internal/domain"
)

type timeoutSender struct {
	next    Sender
	timeout time.Duration
}

// WithTimeout bounds every Send by d. A send that runs out of time fails
// with domain.ErrDispatchTimeout.
func WithTimeout(next Sender, d time.Duration) Sender {
	return &timeoutSender{next: next, timeout: d}
}

func (s *timeoutSender) Send(ctx context.Context, msg domain.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.next.Send(ctx, msg)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return "", fmt.Errorf("%w after %s: %w", domain.ErrDispatchTimeout, s.timeout, err)
	}
	return id, err
}
