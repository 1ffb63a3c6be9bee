package types

import "time"

// Session binds a bearer token to a user for a fixed lifetime.
type Session struct {
	Token     string    `json:"session_token" db:"token"`
	UserID    string    `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	IsActive  bool      `json:"is_active" db:"is_active"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Identity is the caller resolved from a valid session.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
