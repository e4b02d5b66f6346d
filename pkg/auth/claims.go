package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the fields the backend puts in its access tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeClaims reads the claims of a JWT without verifying its signature.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IsAdmin reports whether the role claim is ADMIN or admin.
func (c *Claims) IsAdmin() bool {
	return c.Role == "ADMIN" || c.Role == "admin"
}

// IsExpired reports whether token is undecodable or expired at now.
// Tokens without an exp claim never expire.
func IsExpired(token string, now time.Time) bool {
	claims, err := DecodeClaims(token)
	if err != nil {
		return true
	}
	exp := claims.Expiry()
	return !exp.IsZero() && exp.Before(now)
}
