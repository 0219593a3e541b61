// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const (
	tokenPrefix = "fu_live_"
	// displayLen covers the fixed prefix plus four hex characters.
	displayLen = len(tokenPrefix) + 4
)

// NewToken returns a fresh bearer token and the hash stored for it.
func NewToken() (token, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token = tokenPrefix + hex.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken is the lookup key for a bearer token. Plain tokens are never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix is the non-secret leading part of a token shown in key listings.
func DisplayPrefix(token string) string {
	if len(token) <= displayLen {
		return token
	}
	return token[:displayLen]
}
