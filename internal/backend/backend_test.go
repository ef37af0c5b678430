package backend

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smart-bookmarks/internal/model"
)

// =========================================================================
// FAKE BACKEND SERVICE
// =========================================================================

const testToken = "tok-1"

// fakeBackend speaks just enough of the Backend Service API for the adapter.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	valid      map[string]bool
	logouts    int
	lastAuth   string
	lastQuery  url.Values
	lastBody   []byte
	lastPath   string
	authorizeQ url.Values
	signInErr  string
	rows       []model.Bookmark
	push       chan string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:     t,
		valid: map[string]bool{testToken: true},
		push:  make(chan string, 4),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/authorize", fb.handleAuthorize)
	mux.HandleFunc("GET /auth/v1/session", fb.authed(fb.handleSession))
	mux.HandleFunc("POST /auth/v1/logout", fb.authed(fb.handleLogout))
	mux.HandleFunc("GET /auth/v1/events", fb.authed(fb.handleEvents))
	mux.HandleFunc("GET /rest/v1/bookmarks", fb.authed(fb.handleList))
	mux.HandleFunc("POST /rest/v1/bookmarks", fb.authed(fb.handleCreate))
	mux.HandleFunc("DELETE /rest/v1/bookmarks/{id}", fb.authed(fb.handleDelete))

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		fb.mu.Lock()
		fb.lastAuth = token
		ok := len(token) > 7 && fb.valid[token[7:]]
		fb.mu.Unlock()
		if !ok {
			writeTestJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "valid authentication required"})
			return
		}
		next(w, r)
	}
}

func (fb *fakeBackend) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.authorizeQ = r.URL.Query()
	failure := fb.signInErr
	fb.mu.Unlock()

	q := url.Values{}
	if failure != "" {
		q.Set("error", failure)
	} else {
		q.Set("access_token", testToken)
		q.Set("expires_at", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	}
	http.Redirect(w, r, r.URL.Query().Get("redirect_to")+"?"+q.Encode(), http.StatusSeeOther)
}

func (fb *fakeBackend) handleSession(w http.ResponseWriter, r *http.Request) {
	writeTestJSON(w, http.StatusOK, model.Session{
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		User:      model.SessionUser{ID: "u1", Email: "ada@example.com"},
	})
}

func (fb *fakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.logouts++
	fb.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (fb *fakeBackend) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case typ := <-fb.push:
			if err := wsjson.Write(ctx, conn, sessionEvent{Type: typ, SessionID: "s1"}); err != nil {
				return
			}
		}
	}
}

func (fb *fakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.lastQuery = r.URL.Query()
	rows := fb.rows
	fb.mu.Unlock()
	writeTestJSON(w, http.StatusOK, rows)
}

func (fb *fakeBackend) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fb.mu.Lock()
	fb.lastBody = body
	fb.mu.Unlock()

	var in model.NewBookmark
	_ = json.Unmarshal(body, &in)
	if in.UserID != "u1" {
		writeTestJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: "user_id does not match the signed-in user"})
		return
	}
	writeTestJSON(w, http.StatusCreated, model.Bookmark{ID: "b9", UserID: in.UserID, Title: in.Title, URL: in.URL})
}

func (fb *fakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.lastPath = r.URL.Path
	fb.mu.Unlock()
	if r.PathValue("id") == "missing" {
		writeTestJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "bookmark not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (fb *fakeBackend) revoke(token string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.valid, token)
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// =========================================================================
// HELPERS
// =========================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession() *model.Session {
	return &model.Session{
		AccessToken: testToken,
		ExpiresAt:   time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		User:        model.SessionUser{ID: "u1", Email: "ada@example.com"},
	}
}

// newTestAuth wires an Auth to fb with an optional saved session.
func newTestAuth(t *testing.T, fb *fakeBackend, saved *model.Session) (*Auth, *SessionFile) {
	t.Helper()
	api, err := NewAPI(fb.srv.URL, fb.srv.Client())
	require.NoError(t, err)

	file := NewSessionFile(filepath.Join(t.TempDir(), "session.yaml"))
	if saved != nil {
		require.NoError(t, file.Save(saved))
	}

	a, err := NewAuth(api, file, quietLogger())
	require.NoError(t, err)
	a.OpenBrowser = func(string) error { return nil }
	t.Cleanup(a.Close)
	return a, file
}

// recorder collects session-change callbacks.
type recorder struct {
	ch chan *model.Session
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *model.Session, 8)}
}

func (r *recorder) cb(s *model.Session) { r.ch <- s }

func (r *recorder) next(t *testing.T) *model.Session {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a session change")
		return nil
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-r.ch:
		t.Fatalf("unexpected session change: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}
