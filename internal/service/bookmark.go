// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces ownership, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept primitives and return domain errors from apperror. They
// never see an *http.Request, so the page handler, the REST API and the
// tests all go through the exact same rules.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/repository"
)

const (
	MaxTitleLength = 200
	MaxURLLength   = 2048
)

// BookmarkService enforces the bookmark rules: non-empty fields, URL scheme
// normalization and row-level ownership.
type BookmarkService struct {
	repo   repository.BookmarkRepository
	logger *slog.Logger
}

// NewBookmarkService creates a BookmarkService backed by repo.
func NewBookmarkService(repo repository.BookmarkRepository, logger *slog.Logger) *BookmarkService {
	return &BookmarkService{
		repo:   repo,
		logger: logger,
	}
}

// List returns the caller's bookmarks, newest first.
func (s *BookmarkService) List(ctx context.Context, userID string) ([]model.Bookmark, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to list bookmarks")
	}

	bookmarks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list bookmarks",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Create validates and stores a bookmark owned by userID.
//
// WHY NORMALIZE HERE AS WELL AS IN THE CLIENT?
// The terminal client normalizes before sending, but the web form and any
// other API caller must end up with the same stored value. The operation is
// idempotent, so running it twice is harmless.
func (s *BookmarkService) Create(ctx context.Context, userID, title, rawURL string) (*model.Bookmark, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to add bookmarks")
	}

	title = strings.TrimSpace(title)
	url := model.NormalizeURL(rawURL)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if url == "" {
		return nil, apperror.ValidationFailed("url", "url is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(url) > MaxURLLength {
		return nil, apperror.ValidationFailed("url",
			fmt.Sprintf("url must be %d characters or less", MaxURLLength))
	}

	bookmark, err := s.repo.Create(ctx, model.NewBookmark{
		UserID: userID,
		Title:  title,
		URL:    url,
	})
	if err != nil {
		s.logger.Error("failed to create bookmark",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating bookmark: %w", err)
	}

	s.logger.Info("bookmark created",
		slog.String("id", bookmark.ID),
		slog.String("userID", userID),
	)
	return bookmark, nil
}

// Delete removes a bookmark after checking that userID owns it.
//
// Returns apperror.ErrNotFound if the row does not exist and
// apperror.ErrForbidden if it belongs to someone else.
func (s *BookmarkService) Delete(ctx context.Context, id, userID string) error {
	if userID == "" {
		return apperror.Unauthorized("sign in to delete bookmarks")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "bookmark ID is required")
	}

	bookmark, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bookmark.UserID != userID {
		s.logger.Warn("bookmark delete denied",
			slog.String("id", id),
			slog.String("userID", userID),
		)
		return apperror.Forbidden("you can only delete your own bookmarks")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("bookmark deleted", slog.String("id", id), slog.String("userID", userID))
	return nil
}
