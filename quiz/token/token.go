// Package token mints and compares the opaque per-role credentials that
// scope API access to one session and one role.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// entropyBytes is the amount of randomness per token. 32 bytes encode to a
// 43-character URL-safe string; collisions across active tokens are
// negligible at this size.
const entropyBytes = 32

// Issue returns a new cryptographically unpredictable, URL-safe token.
func Issue() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Matches compares a stored token against a presented one in constant time.
func Matches(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
