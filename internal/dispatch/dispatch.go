// SPDX-License-Identifier: Apache-2.0

// Package dispatch delivers rendered follow-up messages. Every driver makes a
// single attempt per call and reports the provider message id.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/proposalai/followups/internal/domain"
)

const (
	DriverLog  = "log"
	DriverSMTP = "smtp"
	DriverHTTP = "http"
)

type Sender interface {
	Send(ctx context.Context, msg domain.Message) (string, error)
}

type Config struct {
	Driver  string
	Timeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	RelayURL    string
	RelaySecret string
}

// New builds the sender selected by cfg.Driver, bounded by cfg.Timeout when it
// is positive.
func New(cfg Config, client *http.Client, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatch", "driver", cfg.Driver)

	var s Sender
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLog:
		s = NewLogSender(logger)
	case DriverSMTP:
		smtp, err := NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		if err != nil {
			return nil, err
		}
		s = smtp
	case DriverHTTP:
		relay, err := NewRelaySender(cfg.RelayURL, cfg.RelaySecret, client, logger)
		if err != nil {
			return nil, err
		}
		s = relay
	default:
		return nil, fmt.Errorf("unknown dispatch driver %q", cfg.Driver)
	}

	if cfg.Timeout > 0 {
		s = WithTimeout(s, cfg.Timeout)
	}
	return s, nil
}
