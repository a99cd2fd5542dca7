package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"  // sentinel errors for token parsing
	"strconv" // subject claim is the decimal user id
	"time"    // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  Access tokens travel in the Authorization header when calling
// protected endpoints.
type AccessToken struct {
	Token string    `json:"access_token"` // the serialized JWT string
	Exp   time.Time `json:"expires_at"`   // the UTC expiration time
}

// AccessClaims is the claim set of an access token: the standard
// registered claims (sub holds the user id) plus the account role.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned for any token that fails to parse, verify or
// carry a usable subject.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user.  issuedAt is the
// issue time and ttl the lifetime; exp = issuedAt + ttl.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration, issuedAt time.Time) (AccessToken, error) {
	issuedAt = issuedAt.UTC()
	exp := issuedAt.Add(ttl)
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	// Sign with HS256 and the shared secret.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns the user id and
// role it carries.  Only HMAC-signed tokens are accepted; expiry is
// enforced by the jwt library.
func ParseAccessToken(secret, raw string) (uint64, string, error) {
	var claims AccessClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Reject any algorithm other than HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, "", ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, "", ErrInvalidToken
	}
	return id, claims.Role, nil
}
