package model

import "time"

// User represents an account created on first sign-in.
//
// The identity provider's stable subject ("sub" claim) plus the provider name
// is the external key; ID is our own xid so bookmark rows never reference a
// third party's numbering scheme.
type User struct {
	ID        string    `json:"id"         db:"id"`
	Provider  string    `json:"provider"   db:"provider"` // "google"
	Subject   string    `json:"subject"    db:"subject"`  // OIDC sub claim
	Email     string    `json:"email"      db:"email"`
	Name      string    `json:"name"       db:"name"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
