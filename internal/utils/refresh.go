package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is an opaque, long-lived session credential.  Raw goes to
// the client once; only HashRefreshRaw(Raw) is persisted.
type RefreshToken struct {
	Raw string    `json:"refresh_token"`
	Exp time.Time `json:"expires_at"`
}

// NewRefreshToken returns 48 random bytes, hex encoded, expiring ttl
// after issuedAt.
func NewRefreshToken(ttl time.Duration, issuedAt time.Time) (RefreshToken, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: hex.EncodeToString(buf), Exp: issuedAt.UTC().Add(ttl)}, nil
}

// HashRefreshRaw is the hex SHA-256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
