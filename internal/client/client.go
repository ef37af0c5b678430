// Package client holds the bookmark manager's client-side state: the current
// session and the cached bookmark list.
//
// The Client talks to the Backend Service only through two boundaries, Auth
// and Store, so the same state logic drives the terminal UI in production
// and in-memory fakes in tests.
//
// STATE RULES:
//   - The cache mirrors the server's list for the current user, newest first.
//   - Local inserts and deletes are applied only after the server confirms
//     them (no speculative rows, no rollback needed).
//   - A failed call leaves the cache exactly as it was.
//   - Session changes arrive only through the Auth subscription; SignIn and
//     SignOut never touch local state directly.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
)

// Provider is the only identity provider the service supports.
const Provider = "google"

// ErrClosed is returned by Bootstrap after Close.
var ErrClosed = errors.New("client: closed")

// Subscription is a handle to a session-change registration.
type Subscription interface {
	Unsubscribe()
}

// Auth is the authentication boundary.
//
// OnSessionChange callbacks receive nil when the user is signed out. They
// may run on any goroutine, but never while the Auth implementation holds a
// lock the Client could need.
type Auth interface {
	GetSession(ctx context.Context) (*model.Session, error)
	OnSessionChange(cb func(*model.Session)) (Subscription, error)
	SignInWithOAuth(ctx context.Context, provider string) error
	SignOut(ctx context.Context) error
}

// Store is the data boundary for the bookmarks table.
type Store interface {
	ListBookmarks(ctx context.Context, userID string) ([]model.Bookmark, error)
	InsertBookmark(ctx context.Context, in model.NewBookmark) (*model.Bookmark, error)
	DeleteBookmark(ctx context.Context, id string) error
}

// Mode is what the user-facing surface should render.
type Mode int

const (
	Unauthenticated Mode = iota
	Authenticated
)

func (m Mode) String() string {
	if m == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// State is a point-in-time copy of the client state.
type State struct {
	Session   *model.Session
	Bookmarks []model.Bookmark
}

// Mode derives the rendering mode from the session.
func (s State) Mode() Mode {
	if s.Session == nil {
		return Unauthenticated
	}
	return Authenticated
}

// Client is the bookmark state holder.
type Client struct {
	auth   Auth
	store  Store
	logger *slog.Logger

	// ctx scopes work the client starts on its own (re-fetch after a
	// session change). Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	session   *model.Session
	bookmarks []model.Bookmark
	// gen counts session changes; a GetSession answer that raced with a
	// notification is discarded.
	gen      uint64
	sub      Subscription
	started  bool
	closed   bool
	onChange func()

	closeOnce sync.Once
}

// New creates a Client. Call Bootstrap before use and Close when done.
func New(auth Auth, store Store, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		auth:      auth,
		store:     store,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		bookmarks: []model.Bookmark{},
	}
}

// OnChange registers fn to run after every state change. fn runs without
// the client lock held, so it may call Snapshot. Only one hook is kept.
func (c *Client) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Bootstrap subscribes to session changes, then loads the existing session
// and, if there is one, its bookmarks.
//
// The subscription is taken first so a change that lands while GetSession is
// in flight is not lost. It is taken at most once per Client.
func (c *Client) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("client: already bootstrapped")
	}
	c.started = true
	c.mu.Unlock()

	sub, err := c.auth.OnSessionChange(c.handleSessionChange)
	if err != nil {
		return fmt.Errorf("client: subscribing to session changes: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		// Close ran while we were subscribing.
		c.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	c.sub = sub
	gen := c.gen
	c.mu.Unlock()

	s, err := c.auth.GetSession(ctx)
	if err != nil {
		c.logger.Error("fetching session failed", slog.String("error", err.Error()))
		return fmt.Errorf("client: fetching session: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// A notification already delivered a newer session.
		c.mu.Unlock()
		return nil
	}
	c.session = s
	c.mu.Unlock()
	c.notify()

	if s == nil {
		return nil
	}
	return c.List(ctx, s.User.ID)
}

// handleSessionChange replaces the held session. A present session triggers
// a re-fetch for that user; an absent one clears the list.
func (c *Client) handleSessionChange(s *model.Session) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.session = s
	if s == nil {
		c.bookmarks = []model.Bookmark{}
	}
	c.mu.Unlock()
	c.notify()

	if s != nil {
		// Errors are logged inside List; the cache simply stays as it was.
		_ = c.List(c.ctx, s.User.ID)
	}
}

// List loads the bookmarks owned by userID, newest first, and replaces the
// cache with them. On failure the cache is kept and the error returned.
// No retry is attempted.
func (c *Client) List(ctx context.Context, userID string) error {
	rows, err := c.store.ListBookmarks(ctx, userID)
	if err != nil {
		c.logger.Error("listing bookmarks failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("client: listing bookmarks: %w", err)
	}
	if rows == nil {
		rows = []model.Bookmark{}
	}

	c.mu.Lock()
	if c.session == nil || c.session.User.ID != userID {
		// The user changed while the request was in flight.
		c.mu.Unlock()
		return nil
	}
	c.bookmarks = rows
	c.mu.Unlock()
	c.notify()
	return nil
}

// Refresh re-lists the current user's bookmarks. Without a session it does
// nothing.
func (c *Client) Refresh(ctx context.Context) error {
	s := c.currentSession()
	if s == nil {
		return nil
	}
	return c.List(ctx, s.User.ID)
}

// Insert validates, normalizes and creates a bookmark, then prepends the
// row the server returned.
//
// Empty title or url (after trimming) fail with apperror.ErrValidation and
// no request is made. Without a session Insert silently does nothing.
// Clearing the input fields on success is up to the caller.
func (c *Client) Insert(ctx context.Context, title, url string) (*model.Bookmark, error) {
	s := c.currentSession()
	if s == nil {
		return nil, nil
	}

	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(url) == "" {
		return nil, apperror.ValidationFailed("title", "Please enter both title and URL.")
	}

	row, err := c.store.InsertBookmark(ctx, model.NewBookmark{
		UserID: s.User.ID,
		Title:  title,
		URL:    model.NormalizeURL(url),
	})
	if err != nil {
		c.logger.Error("adding bookmark failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("client: adding bookmark: %w", err)
	}

	c.mu.Lock()
	if c.session != nil && c.session.User.ID == row.UserID {
		c.bookmarks = append([]model.Bookmark{*row}, c.bookmarks...)
	}
	c.mu.Unlock()
	c.notify()
	return row, nil
}

// Delete removes a bookmark on the server and, once confirmed, from the
// cache. On failure the cache is untouched. Without a session Delete
// silently does nothing.
func (c *Client) Delete(ctx context.Context, id string) error {
	if c.currentSession() == nil {
		return nil
	}

	if err := c.store.DeleteBookmark(ctx, id); err != nil {
		c.logger.Error("deleting bookmark failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("client: deleting bookmark: %w", err)
	}

	c.mu.Lock()
	c.bookmarks = slices.DeleteFunc(slices.Clone(c.bookmarks), func(b model.Bookmark) bool {
		return b.ID == id
	})
	c.mu.Unlock()
	c.notify()
	return nil
}

// SignIn starts the OAuth flow. The new session arrives via the
// subscription.
func (c *Client) SignIn(ctx context.Context) error {
	if err := c.auth.SignInWithOAuth(ctx, Provider); err != nil {
		return fmt.Errorf("client: signing in: %w", err)
	}
	return nil
}

// SignOut ends the session. The cleared state arrives via the subscription.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.auth.SignOut(ctx); err != nil {
		return fmt.Errorf("client: signing out: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Bookmarks: slices.Clone(c.bookmarks)}
	if c.session != nil {
		s := *c.session
		st.Session = &s
	}
	return st
}

// Close releases the session subscription. It is safe to call more than
// once; the subscription is released exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		sub := c.sub
		c.sub = nil
		c.mu.Unlock()

		c.cancel()
		if sub != nil {
			sub.Unsubscribe()
		}
	})
}

func (c *Client) currentSession() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
