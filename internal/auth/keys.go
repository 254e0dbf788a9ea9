// Package auth checks admin bearer tokens against a stored hash. Only the
// SHA-256 of the token is ever configured or compared.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashKey returns the hex SHA-256 of the trimmed token.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// VerifyKey reports whether key hashes to hash, in constant time.
func VerifyKey(key, hash string) bool {
	want := strings.ToLower(strings.TrimSpace(hash))
	return subtle.ConstantTimeCompare([]byte(HashKey(key)), []byte(want)) == 1
}

// GenerateKey returns a random admin token and its hash.
func GenerateKey() (key, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	key = "jq_" + hex.EncodeToString(buf)
	return key, HashKey(key), nil
}
