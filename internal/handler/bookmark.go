package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/auth"
	"github.com/sakif/smart-bookmarks/internal/service"
)

// BookmarkHandler serves the bookmarks table over JSON.
//
// ROW-LEVEL OWNERSHIP:
// Every route runs behind RequireAuth. A user_id supplied by the client
// (query parameter or body field) must equal the session's user; otherwise
// the request is refused with 403 instead of silently rewritten.
type BookmarkHandler struct {
	svc    *service.BookmarkService
	logger *slog.Logger
}

// NewBookmarkHandler creates a BookmarkHandler.
func NewBookmarkHandler(svc *service.BookmarkService, logger *slog.Logger) *BookmarkHandler {
	return &BookmarkHandler{svc: svc, logger: logger}
}

// createBookmarkRequest is the POST body.
type createBookmarkRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// HandleList returns the caller's bookmarks, newest first.
//
// HTTP: GET /rest/v1/bookmarks?user_id=<id>
func (h *BookmarkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}

	bookmarks, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarks)
}

// HandleCreate inserts a bookmark and returns the stored row.
//
// HTTP: POST /rest/v1/bookmarks
// REQUEST BODY: {"user_id": "...", "title": "Go", "url": "https://go.dev"}
func (h *BookmarkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid bookmark JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	userID, ok := h.owner(w, r, req.UserID)
	if !ok {
		return
	}

	bookmark, err := h.svc.Create(r.Context(), userID, req.Title, req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookmark)
}

// HandleDelete removes one of the caller's bookmarks.
//
// HTTP: DELETE /rest/v1/bookmarks/{id}
func (h *BookmarkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r, "")
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner resolves the user the request acts for. claimed may be empty.
func (h *BookmarkHandler) owner(w http.ResponseWriter, r *http.Request, claimed string) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	if claimed != "" && claimed != userID {
		h.logger.Warn("cross-user bookmark access denied",
			slog.String("userID", userID),
			slog.String("claimed", claimed),
		)
		writeError(w, apperror.Forbidden("user_id does not match the signed-in user"))
		return "", false
	}
	return userID, true
}
