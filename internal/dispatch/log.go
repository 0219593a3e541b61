// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
)

// LogSender writes messages to the log instead of sending them. Used in
// development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "log-" + uuid.NewString()
	s.logger.Info("message dispatched",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return id, nil
}
