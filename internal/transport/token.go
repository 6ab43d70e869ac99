package transport

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bhandras/devpanel/pkg/logger"
)

// TokenExpiry reads the exp claim of a bearer token without verifying its
// signature. The relay verifies; the panel only wants to warn early.
func TokenExpiry(token string) (time.Time, bool, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false, nil
	}
	return claims.ExpiresAt.Time, true, nil
}

// WarnIfExpired logs a warning when token is a JWT that expired before now.
// Opaque tokens are accepted silently.
func WarnIfExpired(token string, now time.Time) {
	if token == "" {
		return
	}
	exp, ok, err := TokenExpiry(token)
	if err != nil {
		logger.Debugf("transport: token is not a JWT: %v", err)
		return
	}
	if ok && exp.Before(now) {
		logger.Warnf("transport: token expired at %s", exp.Format(time.RFC3339))
	}
}
