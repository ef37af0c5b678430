package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL
type UserRepository struct {
	db *pgxpool.Pool
}

var _ repository.UserRepository = (*UserRepository)(nil)

// Upsert creates the user or refreshes its profile in a single statement.
// The generated id only sticks on insert; ON CONFLICT keeps the original.
func (repo *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	sql, vals, err := psql.Insert("users").
		Columns("id", "provider", "subject", "email", "name", "avatar_url").
		Values(xid.New().String(), user.Provider, user.Subject, user.Email, user.Name, user.AvatarURL).
		Suffix(`ON CONFLICT (provider, subject) DO UPDATE
			SET email = EXCLUDED.email, name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url, updated_at = now()
			RETURNING id, created_at, updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	if err := repo.db.QueryRow(ctx, sql, vals...).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: upserting user %s/%s: %w", user.Provider, user.Subject, err)
	}
	return nil
}

// GetUserByID retrieves a user by their ID
func (repo *UserRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u := new(model.User)
	err := repo.db.QueryRow(ctx,
		"SELECT id, provider, subject, email, name, avatar_url, created_at, updated_at FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}
