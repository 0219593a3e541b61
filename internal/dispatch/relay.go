// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/proposalai/followups/internal/domain"
)

const relayHeaderSig = "X-Signature"

type relayResponse struct {
	MessageID string `json:"message_id"`
}

// RelaySender posts each message as signed JSON to an HTTP relay that owns
// the actual mail provider.
type RelaySender struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewRelaySender(url, secret string, client *http.Client, logger *slog.Logger) (*RelaySender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("relay url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelaySender{url: url, secret: secret, httpClient: client, logger: logger}, nil
}

func (s *RelaySender) Send(ctx context.Context, msg domain.Message) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if sig := signPayload(s.secret, body); sig != "" {
		req.Header.Set(relayHeaderSig, sig)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("relay request failed", "to", msg.To, "error", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Warn("relay rejected message", "to", msg.To, "response_status", resp.StatusCode)
		return "", fmt.Errorf("relay responded %d", resp.StatusCode)
	}

	var out relayResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode relay response: %w", err)
	}
	if out.MessageID == "" {
		return "", errors.New("relay response has no message_id")
	}
	return out.MessageID, nil
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
