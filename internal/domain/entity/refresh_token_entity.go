package entity

import "time"

// RefreshTokenTTL is fixed and independent of the access token lifetime.
const RefreshTokenTTL = 30 * 24 * time.Hour

// RefreshToken is a stored long-lived credential. Token is the signed JWT
// string and doubles as the lookup key.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
