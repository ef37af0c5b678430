package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/repository"
)

// BookmarkRepository implements repository.BookmarkRepository using PostgreSQL
type BookmarkRepository struct {
	db *pgxpool.Pool
}

var _ repository.BookmarkRepository = (*BookmarkRepository)(nil)

var bookmarkColumns = []string{"id", "user_id", "title", "url", "created_at"}

// ListByUser retrieves the bookmarks of one user, newest first
func (repo *BookmarkRepository) ListByUser(ctx context.Context, userID string) ([]model.Bookmark, error) {
	sql, vals, err := psql.Select(bookmarkColumns...).
		From("bookmarks").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := repo.db.Query(ctx, sql, vals...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing bookmarks for user %s: %w", userID, err)
	}
	defer rows.Close()

	bookmarks := []model.Bookmark{}
	for rows.Next() {
		var b model.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.URL, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning bookmark row: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Create inserts a bookmark; id and created_at come from column defaults
// and are read back with RETURNING
func (repo *BookmarkRepository) Create(ctx context.Context, in model.NewBookmark) (*model.Bookmark, error) {
	sql, vals, err := psql.Insert("bookmarks").
		Columns("user_id", "title", "url").
		Values(in.UserID, in.Title, in.URL).
		Suffix("RETURNING id, user_id, title, url, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	b := new(model.Bookmark)
	if err := repo.db.QueryRow(ctx, sql, vals...).Scan(&b.ID, &b.UserID, &b.Title, &b.URL, &b.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres: creating bookmark: %w", err)
	}
	return b, nil
}

// validID reports whether id can name a row at all. The id column is UUID,
// so anything else would fail as a cast error instead of a missing row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetByID retrieves a single bookmark
func (repo *BookmarkRepository) GetByID(ctx context.Context, id string) (*model.Bookmark, error) {
	if !validID(id) {
		return nil, apperror.NotFound("bookmark", id)
	}
	sql, vals, err := psql.Select(bookmarkColumns...).
		From("bookmarks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	b := new(model.Bookmark)
	if err := repo.db.QueryRow(ctx, sql, vals...).Scan(&b.ID, &b.UserID, &b.Title, &b.URL, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("bookmark", id)
		}
		return nil, fmt.Errorf("postgres: getting bookmark %s: %w", id, err)
	}
	return b, nil
}

// Delete deletes a bookmark by its ID
func (repo *BookmarkRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return apperror.NotFound("bookmark", id)
	}
	sql, vals, err := psql.Delete("bookmarks").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}

	tag, err := repo.db.Exec(ctx, sql, vals...)
	if err != nil {
		return fmt.Errorf("postgres: deleting bookmark %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("bookmark", id)
	}
	return nil
}
