package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// CookieName is the HttpOnly cookie carrying the access token for browsers.
const CookieName = "token"

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID    string
	SessionID string
	Email     string
	ExpiresAt time.Time
}

// SessionResolver turns a raw access token into a live session. It must fail
// for tokens whose session was terminated, even if the JWT itself is still
// within its expiry.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the values stored here.
type contextKey string

const principalKey contextKey = "principal"

// RequireAuth is a middleware that enforces authentication on protected routes.
// Missing or invalid tokens get a 401 JSON body and stop the chain.
func RequireAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := extractPrincipal(r, sessions)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the principal when a valid token is present but never
// blocks the request. The page handler uses it to pick between the sign-in
// prompt and the authenticated view.
func OptionalAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := extractPrincipal(r, sessions); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or (nil, false) for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil && p.UserID != ""
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	return p.UserID, true
}

// TokenFromRequest reads the access token from the Authorization header
// (CLI and API clients) or, failing that, from the session cookie (browsers).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func extractPrincipal(r *http.Request, sessions SessionResolver) (*Principal, error) {
	return sessions.Resolve(r.Context(), TokenFromRequest(r))
}
