package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiresAt reads the exp claim of a JWT access token without
// verifying its signature; the server remains the authority on validity.
func TokenExpiresAt(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsTokenExpiringSoon reports whether token expires within window. Tokens
// without a readable exp are never considered expiring.
func IsTokenExpiringSoon(token string, window time.Duration, now time.Time) bool {
	exp, ok := TokenExpiresAt(token)
	if !ok {
		return false
	}
	return exp.Sub(now) <= window
}
