// Package handler contains the HTTP request handlers.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, form values, JSON bodies)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic; they are the "glue" between
// HTTP and the services.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/smart-bookmarks/internal/auth"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// notices maps the ?notice= codes to the blocking message shown on the page.
// Unknown codes are ignored so the query string cannot inject text.
var notices = map[string]string{
	"missing":       "Please enter both title and URL.",
	"add_failed":    "Failed to add bookmark.",
	"delete_failed": "Delete failed.",
	"load_failed":   "Failed to load bookmarks.",
	"auth_denied":   "Sign-in was cancelled.",
	"auth_failed":   "Sign-in failed. Please try again.",
}

// PageHandler renders the single page in its two modes: the sign-in prompt
// and the authenticated view with the add form and the list.
//
// The page works without JavaScript: every action is a form POST that
// redirects back to GET / (post/redirect/get), carrying a notice code when
// something failed.
type PageHandler struct {
	templates *template.Template
	bookmarks *service.BookmarkService
	logger    *slog.Logger
}

// pageData is what the templates see.
type pageData struct {
	Title         string
	Notice        string
	Authenticated bool
	Email         string
	SignInURL     string
	Bookmarks     []model.Bookmark
	FormTitle     string
	FormURL       string
}

// NewPageHandler parses the embedded templates once at startup.
//
// base.html defines the page skeleton with a {{template "content" .}}
// placeholder and page.html fills it in.
func NewPageHandler(bookmarks *service.BookmarkService, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/page.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		templates: tmpl,
		bookmarks: bookmarks,
		logger:    logger,
	}, nil
}

// HandlePage serves the page.
//
// HTTP: GET /
// Auth: Optional (OptionalAuth picks the mode)
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := pageData{
		Title:     "Smart Bookmark App",
		Notice:    notices[q.Get("notice")],
		SignInURL: "/auth/v1/authorize?" + url.Values{"provider": {"google"}, "redirect_to": {"/"}}.Encode(),
	}

	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		data.Authenticated = true
		data.Email = p.Email
		data.FormTitle = q.Get("title")
		data.FormURL = q.Get("url")

		bookmarks, err := h.bookmarks.List(r.Context(), p.UserID)
		if err != nil {
			h.logger.Error("page: listing bookmarks", slog.String("error", err.Error()))
			if data.Notice == "" {
				data.Notice = notices["load_failed"]
			}
		}
		data.Bookmarks = bookmarks
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// HandleAdd handles the add form.
//
// HTTP: POST /bookmarks
func (h *PageHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		// Absent session: nothing to do.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	title := r.PostFormValue("title")
	rawURL := r.PostFormValue("url")
	keep := url.Values{"title": {title}, "url": {rawURL}}

	if strings.TrimSpace(title) == "" || strings.TrimSpace(rawURL) == "" {
		h.redirectWithNotice(w, r, "missing", keep)
		return
	}

	if _, err := h.bookmarks.Create(r.Context(), p.UserID, title, rawURL); err != nil {
		h.logger.Error("page: adding bookmark", slog.String("error", err.Error()))
		h.redirectWithNotice(w, r, "add_failed", keep)
		return
	}

	// Success: the redirect renders empty inputs.
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDelete handles a row's delete button.
//
// HTTP: POST /bookmarks/{id}/delete
func (h *PageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := h.bookmarks.Delete(r.Context(), chi.URLParam(r, "id"), p.UserID); err != nil {
		h.logger.Error("page: deleting bookmark", slog.String("error", err.Error()))
		h.redirectWithNotice(w, r, "delete_failed", nil)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *PageHandler) redirectWithNotice(w http.ResponseWriter, r *http.Request, code string, extra url.Values) {
	q := url.Values{"notice": {code}}
	for k, vs := range extra {
		q[k] = vs
	}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}
