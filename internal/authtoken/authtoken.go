// Package authtoken mints and verifies the bearer token the daemon uses to
// authenticate local RPC clients. There is exactly one principal (the
// local user) and no delegation or expiry requirement, so a random token
// compared in constant time is the right tool — the corpus's JWT
// machinery (internal/relay/jwt.go in the teacher) exists for a
// multi-tenant handoff between a wing and a relay service, a problem this
// single-machine daemon does not have.
package authtoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

const (
	fileName   = "auth_token"
	tokenBytes = 32
)

// EnsureToken loads the cached bearer token from dir, generating and
// caching a new one if absent.
func EnsureToken(dir string) (string, error) {
	path := filepath.Join(dir, fileName)

	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}

	token, err := generate()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("authtoken: mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return "", fmt.Errorf("authtoken: write token: %w", err)
	}
	return token, nil
}

func generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authtoken: generate: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether candidate matches expected, in constant time. An
// empty expected token disables the check: every candidate verifies.
func Verify(expected, candidate string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}
