package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the SQLite implementation of repository.UserRepository.
type UserDB struct {
	conn *sql.DB
}

// Upsert inserts or updates a user keyed by (provider, subject).
//
// An existing user keeps their internal ID; only the profile fields the
// identity provider may change (email, name, avatar) are refreshed.
func (r *UserDB) Upsert(ctx context.Context, user *model.User) error {
	var existingID string
	var createdAt time.Time
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE provider = ? AND subject = ?`,
		user.Provider, user.Subject,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user %s/%s: %w", user.Provider, user.Subject, err)
	}

	now := time.Now().UTC()

	if existingID != "" {
		user.ID = existingID
		user.CreatedAt = createdAt
		user.UpdatedAt = now

		query, args, err := psql.Update("users").
			Set("email", user.Email).
			Set("name", user.Name).
			Set("avatar_url", user.AvatarURL).
			Set("updated_at", user.UpdatedAt).
			Where(squirrel.Eq{"id": user.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("sqlite: building user update: %w", err)
		}
		if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	query, args, err := psql.Insert("users").
		Columns("id", "provider", "subject", "email", "name", "avatar_url", "created_at", "updated_at").
		Values(user.ID, user.Provider, user.Subject, user.Email, user.Name, user.AvatarURL, user.CreatedAt, user.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building user insert: %w", err)
	}
	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: inserting user %s/%s: %w", user.Provider, user.Subject, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (r *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := r.conn.QueryRowContext(ctx,
		`SELECT id, provider, subject, email, name, avatar_url, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}
