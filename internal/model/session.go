package model

import "time"

// SessionUser is the slice of the user record a session exposes.
type SessionUser struct {
	ID    string `json:"id"    yaml:"id"`
	Email string `json:"email" yaml:"email"`
}

// Session is the authenticated identity context handed to clients.
// AccessToken is a signed JWT; it is empty when the session is rendered
// server-side and never leaves the process.
type Session struct {
	AccessToken string      `json:"access_token,omitempty" yaml:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"             yaml:"expires_at"`
	User        SessionUser `json:"user"                   yaml:"user"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
