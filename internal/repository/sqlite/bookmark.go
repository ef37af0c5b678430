package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *BookmarkDB stops satisfying repository.BookmarkRepository, the build
// breaks here instead of at the call site in server.go.
var _ repository.BookmarkRepository = (*BookmarkDB)(nil)

var bookmarkColumns = []string{"id", "user_id", "title", "url", "created_at"}

// BookmarkDB is the SQLite implementation of repository.BookmarkRepository.
type BookmarkDB struct {
	conn *sql.DB
}

// ListByUser returns all bookmarks owned by userID, newest first.
//
// rowid breaks ties between rows created within the same timestamp, so two
// inserts in quick succession still list in insertion order (latest first).
func (r *BookmarkDB) ListByUser(ctx context.Context, userID string) ([]model.Bookmark, error) {
	query, args, err := psql.Select(bookmarkColumns...).
		From("bookmarks").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "rowid DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building bookmark list query: %w", err)
	}

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bookmarks for user %s: %w", userID, err)
	}
	// CRITICAL: always close rows when done, or the connection never returns to the pool.
	defer rows.Close()

	bookmarks := make([]model.Bookmark, 0)
	for rows.Next() {
		var b model.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.URL, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning bookmark row: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating bookmarks: %w", err)
	}

	return bookmarks, nil
}

// Create inserts a new bookmark and returns the stored row.
//
// The id (a random UUID) and created_at are assigned here, playing the role
// of column defaults, so the caller gets back exactly what a later SELECT
// would return.
func (r *BookmarkDB) Create(ctx context.Context, in model.NewBookmark) (*model.Bookmark, error) {
	b := &model.Bookmark{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		URL:       in.URL,
		CreatedAt: time.Now().UTC(),
	}

	query, args, err := psql.Insert("bookmarks").
		Columns(bookmarkColumns...).
		Values(b.ID, b.UserID, b.Title, b.URL, b.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building bookmark insert: %w", err)
	}

	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: creating bookmark: %w", err)
	}

	return b, nil
}

// GetByID retrieves a single bookmark. sql.ErrNoRows becomes apperror.NotFound
// so the handler can answer 404.
func (r *BookmarkDB) GetByID(ctx context.Context, id string) (*model.Bookmark, error) {
	query, args, err := psql.Select(bookmarkColumns...).
		From("bookmarks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building bookmark query: %w", err)
	}

	var b model.Bookmark
	err = r.conn.QueryRowContext(ctx, query, args...).
		Scan(&b.ID, &b.UserID, &b.Title, &b.URL, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("bookmark", id)
		}
		return nil, fmt.Errorf("sqlite: getting bookmark %s: %w", id, err)
	}

	return &b, nil
}

// Delete removes a bookmark by id. Zero affected rows means it did not exist.
func (r *BookmarkDB) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete("bookmarks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building bookmark delete: %w", err)
	}

	result, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: deleting bookmark %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("bookmark", id)
	}

	return nil
}
