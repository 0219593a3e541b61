// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestAPIKeyContextRoundTrip(t *testing.T) {
	key := APIKey{ID: uuid.New(), OrganizationID: uuid.New(), MaxRequestsPerMin: 30}
	ctx := WithAPIKey(context.Background(), key)

	got, ok := APIKeyFromContext(ctx)
	if !ok || got != key {
		t.Fatalf("expected %+v, got %+v (ok=%v)", key, got, ok)
	}

	org, ok := OrganizationIDFromContext(ctx)
	if !ok || org != key.OrganizationID {
		t.Fatalf("expected organization %s, got %s", key.OrganizationID, org)
	}
}

func TestAPIKeyMissingFromContext(t *testing.T) {
	if _, ok := APIKeyFromContext(context.Background()); ok {
		t.Fatal("expected no key on empty context")
	}
	if _, ok := OrganizationIDFromContext(WithAPIKey(context.Background(), APIKey{ID: uuid.New()})); ok {
		t.Fatal("expected key without organization to be rejected")
	}
}

func TestNewToken(t *testing.T) {
	token, hash, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if !strings.HasPrefix(token, tokenPrefix) {
		t.Fatalf("unexpected token prefix: %s", token)
	}
	if hash != HashToken(token) {
		t.Fatal("expected hash to match HashToken")
	}
	if hash == token || len(hash) != 64 {
		t.Fatalf("unexpected hash: %s", hash)
	}

	other, _, _ := NewToken()
	if other == token {
		t.Fatal("expected tokens to be unique")
	}
}

func TestDisplayPrefix(t *testing.T) {
	token, _, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	got := DisplayPrefix(token)
	if len(got) != displayLen || !strings.HasPrefix(token, got) {
		t.Fatalf("unexpected display prefix %q for %q", got, token)
	}
	if DisplayPrefix("short") != "short" {
		t.Fatal("expected short tokens to be returned unchanged")
	}
}
