// Package model defines the data structures shared by the server, the
// repositories and the client.
//
// Struct tags follow the wire format of the bookmarks API: snake_case column
// names, so a row returned by POST /rest/v1/bookmarks decodes straight into a
// Bookmark on the client side.
package model

import (
	"strings"
	"time"
)

// Bookmark is a single saved URL owned by one user.
//
// ID and CreatedAt are assigned by the store; a Bookmark is never updated in
// place, only created and deleted.
type Bookmark struct {
	ID        string    `json:"id"         yaml:"id"         db:"id"`
	UserID    string    `json:"user_id"    yaml:"user_id"    db:"user_id"`
	Title     string    `json:"title"      yaml:"title"      db:"title"`
	URL       string    `json:"url"        yaml:"url"        db:"url"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}

// NewBookmark is the insert payload: the columns a caller is allowed to set.
type NewBookmark struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// NormalizeURL trims the input and prefixes "https://" unless it already
// carries an http:// or https:// scheme (in any case). Other schemes are not
// recognised and get prefixed too.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !hasWebScheme(u) {
		u = "https://" + u
	}
	return u
}

func hasWebScheme(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
