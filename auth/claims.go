package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is how close to expiry a token counts as about to expire.
const ExpiryMargin = 5 * time.Minute

// TokenInfo is what can be read from an access token without verifying it.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken decodes the claims of a JWT access token. The signature is
// not checked; the backend remains the authority on validity.
func InspectToken(raw string) (*TokenInfo, error) {
	if raw == "" {
		return nil, errors.New("token is empty")
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	info := &TokenInfo{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// HasExpiry reports whether the token carries an exp claim.
func (i *TokenInfo) HasExpiry() bool { return !i.ExpiresAt.IsZero() }

// Expired reports whether the token is past its exp claim at now.
func (i *TokenInfo) Expired(now time.Time) bool {
	return i.HasExpiry() && !now.Before(i.ExpiresAt)
}

// ExpiresWithin reports whether the token expires within d of now.
func (i *TokenInfo) ExpiresWithin(now time.Time, d time.Duration) bool {
	return i.HasExpiry() && !now.Add(d).Before(i.ExpiresAt)
}
