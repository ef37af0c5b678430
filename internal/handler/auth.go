package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/auth"
	"github.com/sakif/smart-bookmarks/internal/service"
)

const (
	stateCookie    = "oauth_state"
	nonceCookie    = "oauth_nonce"
	redirectCookie = "oauth_redirect"
	flowCookieAge  = 600 // 10 minutes to approve on the provider's page
)

// AuthHandler manages the OAuth sign-in flow and the session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleAuthorize → redirect the browser to the identity provider
//   - HandleCallback  → receive the code, sign the user in, hand back the token
//   - HandleSession   → report the caller's current session
//   - HandleLogout    → end the caller's session (API)
//   - HandlePageLogout → end the session from the web page's form
//
// DEPENDENCY CHAIN:
//   - provider auth.IdentityProvider → performs the OAuth code exchange
//   - auth     *service.AuthService  → users, sessions, tokens
type AuthHandler struct {
	provider     auth.IdentityProvider
	auth         *service.AuthService
	cookieSecure bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. cookieSecure should be true
// whenever the service is reached over HTTPS.
func NewAuthHandler(provider auth.IdentityProvider, authService *service.AuthService, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider:     provider,
		auth:         authService,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// HandleAuthorize starts sign-in.
//
// HTTP: GET /auth/v1/authorize?provider=google&redirect_to=/
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and sent to the
// provider; the callback only proceeds if both match. The nonce travels the
// same way and must come back inside the signed ID token.
func (h *AuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if p := r.URL.Query().Get("provider"); p != h.provider.Name() {
		writeError(w, apperror.ValidationFailed("provider", "unsupported provider: "+p))
		return
	}

	target, ok := safeRedirect(r.URL.Query().Get("redirect_to"))
	if !ok {
		writeError(w, apperror.ValidationFailed("redirect_to", "redirect_to must be a local path or loopback URL"))
		return
	}

	state := xid.New().String()
	nonce := xid.New().String()

	h.setFlowCookie(w, stateCookie, state)
	h.setFlowCookie(w, nonceCookie, nonce)
	h.setFlowCookie(w, redirectCookie, base64.RawURLEncoding.EncodeToString([]byte(target)))

	http.Redirect(w, r, h.provider.AuthURL(state, nonce), http.StatusTemporaryRedirect)
}

// HandleCallback completes sign-in.
//
// HTTP: GET /auth/v1/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a verified identity
//  3. Upsert the user and open a session
//  4. Browser targets get an HttpOnly cookie; loopback targets get the
//     token in the query string, since a terminal has no cookie jar
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	target := "/"
	if c, err := r.Cookie(redirectCookie); err == nil {
		if raw, err := base64.RawURLEncoding.DecodeString(c.Value); err == nil {
			if t, ok := safeRedirect(string(raw)); ok {
				target = t
			}
		}
	}
	nonce := ""
	if c, err := r.Cookie(nonceCookie); err == nil {
		nonce = c.Value
	}

	// All three cookies are single-use.
	for _, name := range []string{stateCookie, nonceCookie, redirectCookie} {
		h.clearCookie(w, name)
	}

	// The provider sends ?error=access_denied when the user cancels.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		h.fail(w, r, target, "auth_denied")
		return
	}

	// --- Step 2: Exchange code for identity ---
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code, nonce)
	if err != nil {
		h.logger.Error("auth callback: exchange failed", slog.String("error", err.Error()))
		h.fail(w, r, target, "auth_failed")
		return
	}

	// --- Step 3: Sign in ---
	res, err := h.auth.LoginOrRegister(r.Context(), identity)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		h.fail(w, r, target, "auth_failed")
		return
	}

	// --- Step 4: Hand the token over ---
	if isLoopbackURL(target) {
		http.Redirect(w, r, withQuery(target, tokenParams(res.Session.AccessToken, res.Session.ExpiresAt)), http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Session.AccessToken,
		Path:     "/",
		Expires:  res.Session.ExpiresAt,
		MaxAge:   int(time.Until(res.Session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleSession returns the caller's session, or 401 if there is none.
//
// HTTP: GET /auth/v1/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.auth.Session(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleLogout ends the caller's session.
//
// HTTP: POST /auth/v1/logout
// Auth: Required
//
// Unlike a stateless JWT logout, the token stops working immediately, and
// every client watching this session receives SIGNED_OUT.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}
	if err := h.auth.Logout(r.Context(), p.SessionID); err != nil {
		writeError(w, err)
		return
	}
	h.clearCookie(w, auth.CookieName)
	w.WriteHeader(http.StatusNoContent)
}

// HandlePageLogout is the web page's sign-out button.
//
// HTTP: POST /logout
func (h *AuthHandler) HandlePageLogout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		if err := h.auth.Logout(r.Context(), p.SessionID); err != nil {
			h.logger.Error("page logout failed", slog.String("error", err.Error()))
		}
	}
	h.clearCookie(w, auth.CookieName)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// fail sends the user back to target with an error marker. Loopback clients
// get ?error=, the page gets ?notice= which it renders as a blocking notice.
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, target, reason string) {
	key := "notice"
	if isLoopbackURL(target) {
		key = "error"
	}
	http.Redirect(w, r, withQuery(target, url.Values{key: {reason}}), http.StatusSeeOther)
}

func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/v1",
		MaxAge:   flowCookieAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	path := "/"
	if name != auth.CookieName {
		path = "/auth/v1"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
