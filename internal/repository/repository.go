// Package repository declares the persistence interfaces the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/smart-bookmarks/internal/model"
)

// BookmarkRepository covers the three queries the bookmarks table supports:
// select-where-equal-ordered, insert-returning-row and delete-where-equal.
type BookmarkRepository interface {
	// ListByUser returns every bookmark owned by userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.Bookmark, error)
	// Create inserts a row and returns it with the server-assigned id and timestamp.
	Create(ctx context.Context, in model.NewBookmark) (*model.Bookmark, error)
	GetByID(ctx context.Context, id string) (*model.Bookmark, error)
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	// Upsert creates the user on first sign-in and refreshes the profile
	// fields afterwards. user.ID is populated on return.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Store bundles the repositories of one storage backend together with its
// lifecycle, so the server can own a single value and close it on shutdown.
type Store interface {
	Bookmarks() BookmarkRepository
	Users() UserRepository
	Close() error
}
