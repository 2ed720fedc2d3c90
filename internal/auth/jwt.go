// ABOUTME: Session token issuance and parsing for Patron's cookie-based login.
// ABOUTME: Always enforces HS256, issuer and expiry; never call jwt.Parse directly.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim on every session token.
const Issuer = "patron"

// ErrStaleSession is returned when a token's version no longer matches the
// user's current token_version (logout or password change).
var ErrStaleSession = errors.New("session revoked")

// SessionClaims holds the claims embedded in a session token. The token
// carries identity only: organization, role and permissions are read from
// the database on every request.
type SessionClaims struct {
	jwt.RegisteredClaims
	// UserID shadows RegisteredClaims.Subject so that "sub" serializes as a
	// UUID string. encoding/json picks the outermost field on tag collision.
	UserID uuid.UUID `json:"sub"`
	// TokenVersion must match users.token_version.
	TokenVersion int `json:"tv"`
}

// IssueSessionToken creates a signed HS256 session token valid for ttl.
func IssueSessionToken(secret []byte, userID uuid.UUID, tokenVersion int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:       userID,
		TokenVersion: tokenVersion,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken validates and parses an HS256 session token.
// WithValidMethods and WithExpirationRequired are mandatory.
func ParseSessionToken(tokenStr string, secret []byte) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("parse session token: missing subject")
	}
	return claims, nil
}

// CheckVersion returns ErrStaleSession unless the claims were issued for the
// user's current token version.
func (c *SessionClaims) CheckVersion(current int) error {
	if c.TokenVersion != current {
		return ErrStaleSession
	}
	return nil
}
