package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/client"
	"github.com/sakif/smart-bookmarks/internal/model"
)

// Event types sent on /auth/v1/events that end the session.
const (
	eventSignedOut      = "SIGNED_OUT"
	eventSessionExpired = "SESSION_EXPIRED"
)

const (
	watchMinBackoff = time.Second
	watchMaxBackoff = 30 * time.Second
)

var errSessionEnded = errors.New("backend: session ended")

// sessionEvent is the subset of a server session event the watcher needs.
type sessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// callbackResult is what the browser hands back to the loopback listener.
type callbackResult struct {
	token     string
	expiresAt string
	err       string
}

var _ client.Auth = (*Auth)(nil)

// Auth implements client.Auth against the Backend Service.
//
// The current session lives in memory and in a SessionFile. While at least
// one subscriber is registered and a session exists, a watcher goroutine
// holds a WebSocket to /auth/v1/events so a sign-out elsewhere (or an
// expiry) reaches the client without polling.
type Auth struct {
	api    *API
	file   *SessionFile
	logger *slog.Logger

	// OpenBrowser is called with the authorize URL during sign-in.
	OpenBrowser func(url string) error
	// CallbackAddr is where the sign-in listener binds.
	CallbackAddr string

	now func() time.Time

	mu          sync.Mutex
	session     *model.Session
	subs        map[uint64]func(*model.Session)
	nextSub     uint64
	watchToken  string
	watchCancel context.CancelFunc
	closed      bool
}

// NewAuth creates an Auth and restores any saved session. An expired saved
// session is discarded.
func NewAuth(api *API, file *SessionFile, logger *slog.Logger) (*Auth, error) {
	a := &Auth{
		api:          api,
		file:         file,
		logger:       logger,
		OpenBrowser:  OpenBrowser,
		CallbackAddr: "127.0.0.1:0",
		now:          time.Now,
		subs:         make(map[uint64]func(*model.Session)),
	}

	s, err := file.Load()
	if err != nil {
		return nil, err
	}
	if s != nil && s.Expired(a.now()) {
		logger.Info("saved session expired", slog.String("email", s.User.Email))
		if err := file.Clear(); err != nil {
			return nil, err
		}
		s = nil
	}
	a.session = s
	return a, nil
}

// current returns a copy of the in-memory session, or nil.
func (a *Auth) current() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copySession(a.session)
}

// GetSession returns the current session after confirming it with the
// server. A session the server rejects is dropped and (nil, nil) returned.
func (a *Auth) GetSession(ctx context.Context) (*model.Session, error) {
	s := a.current()
	if s == nil {
		return nil, nil
	}
	if s.Expired(a.now()) {
		a.drop(s.AccessToken)
		return nil, nil
	}

	remote, err := a.fetchSession(ctx, s.AccessToken)
	if errors.Is(err, apperror.ErrUnauthorized) {
		a.drop(s.AccessToken)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func (a *Auth) fetchSession(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	if err := a.api.do(ctx, http.MethodGet, "/auth/v1/session", nil, token, nil, &s); err != nil {
		return nil, err
	}
	s.AccessToken = token
	return &s, nil
}

type subscription struct {
	auth *Auth
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.auth.unsubscribe(s.id) })
}

// OnSessionChange registers cb. Callbacks run outside Auth's lock, on the
// goroutine that observed the change.
func (a *Auth) OnSessionChange(cb func(*model.Session)) (client.Subscription, error) {
	if cb == nil {
		return nil, errors.New("backend: nil session callback")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextSub++
	id := a.nextSub
	a.subs[id] = cb
	a.syncWatcherLocked()
	return &subscription{auth: a, id: id}, nil
}

func (a *Auth) unsubscribe(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs, id)
	a.syncWatcherLocked()
}

// SignInWithOAuth runs the browser round trip: the server's authorize
// endpoint redirects back to a one-shot loopback listener with the token.
func (a *Auth) SignInWithOAuth(ctx context.Context, provider string) error {
	ln, err := net.Listen("tcp", a.CallbackAddr)
	if err != nil {
		return fmt.Errorf("backend: starting sign-in listener: %w", err)
	}

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(ln)
	defer srv.Close()

	redirect := "http://" + ln.Addr().String() + "/callback"
	authURL := a.api.URL("/auth/v1/authorize", url.Values{
		"provider":    {provider},
		"redirect_to": {redirect},
	})

	a.logger.Info("opening browser for sign-in", slog.String("url", authURL))
	if err := a.OpenBrowser(authURL); err != nil {
		a.logger.Warn("could not open browser; open the URL manually",
			slog.String("url", authURL),
			slog.String("error", err.Error()),
		)
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-results:
	}

	if res.err != "" {
		return fmt.Errorf("backend: sign-in failed: %s", res.err)
	}
	if res.token == "" {
		return errors.New("backend: sign-in returned no token")
	}

	s, err := a.fetchSession(ctx, res.token)
	if err != nil {
		return fmt.Errorf("backend: confirming sign-in: %w", err)
	}
	if s.ExpiresAt.IsZero() {
		if sec, err := strconv.ParseInt(res.expiresAt, 10, 64); err == nil {
			s.ExpiresAt = time.Unix(sec, 0)
		}
	}

	a.setSession(s)
	a.logger.Info("signed in", slog.String("email", s.User.Email))
	return nil
}

func callbackHandler(results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		res := callbackResult{
			token:     q.Get("access_token"),
			expiresAt: q.Get("expires_at"),
			err:       q.Get("error"),
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != "" {
			w.Write([]byte("Sign-in failed. You can close this window.\n"))
		} else {
			w.Write([]byte("Signed in. You can close this window and return to the terminal.\n"))
		}

		select {
		case results <- res:
		default:
		}
	})
}

// SignOut ends the session on the server and locally. The local session is
// cleared even if the server call fails.
func (a *Auth) SignOut(ctx context.Context) error {
	s := a.current()
	if s == nil {
		return nil
	}

	err := a.api.do(ctx, http.MethodPost, "/auth/v1/logout", nil, s.AccessToken, nil, nil)
	a.drop(s.AccessToken)

	if err != nil && !errors.Is(err, apperror.ErrUnauthorized) {
		return fmt.Errorf("backend: signing out: %w", err)
	}
	return nil
}

// drop clears the session if it is still the one identified by token.
func (a *Auth) drop(token string) {
	a.update(nil, func(cur *model.Session) bool {
		return cur != nil && cur.AccessToken == token
	})
}

func (a *Auth) setSession(s *model.Session) {
	a.update(s, nil)
}

// update replaces the current session (when cond, if given, accepts the
// current one), persists it, and notifies subscribers if the token changed.
func (a *Auth) update(s *model.Session, cond func(cur *model.Session) bool) {
	a.mu.Lock()
	if cond != nil && !cond(a.session) {
		a.mu.Unlock()
		return
	}
	prev := a.session
	a.session = copySession(s)
	changed := tokenOf(prev) != tokenOf(s)

	if s == nil {
		if err := a.file.Clear(); err != nil {
			a.logger.Error("clearing session file", slog.String("error", err.Error()))
		}
	} else if err := a.file.Save(s); err != nil {
		a.logger.Error("saving session file", slog.String("error", err.Error()))
	}
	a.syncWatcherLocked()

	var cbs []func(*model.Session)
	if changed {
		for _, cb := range a.subs {
			cbs = append(cbs, cb)
		}
	}
	a.mu.Unlock()

	for _, cb := range cbs {
		cb(copySession(s))
	}
}

// syncWatcherLocked starts or stops the events watcher so that one runs
// exactly when there is a session and at least one subscriber.
func (a *Auth) syncWatcherLocked() {
	want := ""
	if !a.closed && a.session != nil && len(a.subs) > 0 {
		want = a.session.AccessToken
	}
	if want == a.watchToken {
		return
	}
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
	a.watchToken = want
	if want == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	go a.watch(ctx, want)
}

// watch keeps a WebSocket to /auth/v1/events open for token, reconnecting
// with exponential backoff until the session ends or ctx is cancelled.
func (a *Auth) watch(ctx context.Context, token string) {
	backoff := watchMinBackoff
	for {
		err := a.watchOnce(ctx, token)
		if ctx.Err() != nil || errors.Is(err, errSessionEnded) {
			return
		}

		a.logger.Debug("session watcher disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, watchMaxBackoff)
	}
}

func (a *Auth) watchOnce(ctx context.Context, token string) error {
	conn, resp, err := websocket.Dial(ctx, a.api.wsURL("/auth/v1/events"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			a.drop(token)
			return errSessionEnded
		}
		return err
	}
	defer conn.CloseNow()

	for {
		var ev sessionEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return err
		}
		a.logger.Debug("session event", slog.String("type", ev.Type))

		switch ev.Type {
		case eventSignedOut, eventSessionExpired:
			conn.Close(websocket.StatusNormalClosure, "")
			a.drop(token)
			return errSessionEnded
		}
	}
}

// Close stops the watcher for good. Subscriptions stay registered but no
// longer receive server-pushed changes.
func (a *Auth) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.syncWatcherLocked()
}

func tokenOf(s *model.Session) string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
