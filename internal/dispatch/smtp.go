// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

var errSMTPNotConfigured = errors.New("smtp host and from address are required")

// SMTPSender opens one SMTP session per message through a gomail dialer.
type SMTPSender struct {
	from     string
	fromName string
	host     string
	send     func(*gomail.Message) error
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, errSMTPNotConfigured
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	dialer := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	return newSMTPSender(cfg, dialer.DialAndSend), nil
}

func newSMTPSender(cfg SMTPConfig, send func(...*gomail.Message) error) *SMTPSender {
	host := cfg.Host
	if at := strings.LastIndex(cfg.From, "@"); at >= 0 {
		host = cfg.From[at+1:]
	}
	return &SMTPSender{
		from:     cfg.From,
		fromName: cfg.FromName,
		host:     host,
		send:     func(m *gomail.Message) error { return send(m) },
	}
}

// Send blocks until the SMTP exchange finishes or ctx is done. gomail has no
// context support, so a cancelled send may still complete in the background.
func (s *SMTPSender) Send(ctx context.Context, msg domain.Message) (string, error) {
	id := uuid.NewString() + "@" + s.host

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", "<"+id+">")
	for _, k := range sortedKeys(msg.Tags) {
		m.SetHeader("X-Followup-"+headerKey(k), msg.Tags[k])
	}
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// headerKey turns execution_id into Execution-Id.
func headerKey(k string) string {
	parts := strings.FieldsFunc(k, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}
