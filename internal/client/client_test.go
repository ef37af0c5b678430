package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

type fakeSubscription struct {
	auth *fakeAuth
}

func (s *fakeSubscription) Unsubscribe() {
	s.auth.mu.Lock()
	defer s.auth.mu.Unlock()
	s.auth.unsubscribes++
	s.auth.cb = nil
}

// fakeAuth records subscriptions and lets tests push session changes.
type fakeAuth struct {
	mu           sync.Mutex
	session      *model.Session
	getErr       error
	cb           func(*model.Session)
	subscribes   int
	unsubscribes int
	signIns      []string
	signOuts     int
}

func (f *fakeAuth) GetSession(context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.getErr
}

func (f *fakeAuth) OnSessionChange(cb func(*model.Session)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	f.cb = cb
	return &fakeSubscription{auth: f}, nil
}

func (f *fakeAuth) SignInWithOAuth(_ context.Context, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns = append(f.signIns, provider)
	return nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return nil
}

// emit delivers a session change the way a real Auth would: outside its lock.
func (f *fakeAuth) emit(s *model.Session) {
	f.mu.Lock()
	f.session = s
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// fakeStore keeps rows per user, newest first.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string][]model.Bookmark
	nextID  int
	calls   []string
	listErr error
	insErr  error
	delErr  error
	lastIns model.NewBookmark
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string][]model.Bookmark{}}
}

func (f *fakeStore) ListBookmarks(_ context.Context, userID string) ([]model.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list:"+userID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Bookmark(nil), f.rows[userID]...), nil
}

func (f *fakeStore) InsertBookmark(_ context.Context, in model.NewBookmark) (*model.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "insert")
	f.lastIns = in
	if f.insErr != nil {
		return nil, f.insErr
	}
	f.nextID++
	b := model.Bookmark{
		ID:        fmt.Sprintf("bm-%d", f.nextID),
		UserID:    in.UserID,
		Title:     in.Title,
		URL:       in.URL,
		CreatedAt: time.Now().UTC(),
	}
	f.rows[in.UserID] = append([]model.Bookmark{b}, f.rows[in.UserID]...)
	return &b, nil
}

func (f *fakeStore) DeleteBookmark(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+id)
	return f.delErr
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStore) seed(userID string, rows ...model.Bookmark) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[userID] = rows
}

func sessionFor(userID, email string) *model.Session {
	return &model.Session{
		AccessToken: "tok-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        model.SessionUser{ID: userID, Email: email},
	}
}

func newTestClient(t *testing.T, a *fakeAuth, s *fakeStore) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	c := New(a, s, logger)
	t.Cleanup(c.Close)
	return c
}

func ids(bs []model.Bookmark) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

// =========================================================================
// BOOTSTRAP
// =========================================================================

func TestBootstrap_NoSession(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)

	require.NoError(t, c.Bootstrap(context.Background()))

	st := c.Snapshot()
	assert.Equal(t, Unauthenticated, st.Mode())
	assert.Empty(t, st.Bookmarks)
	assert.Equal(t, 0, s.callCount(), "no list without a session")
	assert.Equal(t, 1, a.subscribes)
}

func TestBootstrap_WithSessionLoadsList(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b2", UserID: "u1"}, model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)

	require.NoError(t, c.Bootstrap(context.Background()))

	st := c.Snapshot()
	assert.Equal(t, Authenticated, st.Mode())
	assert.Equal(t, "a@example.com", st.Session.User.Email)
	assert.Equal(t, []string{"b2", "b1"}, ids(st.Bookmarks))
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)

	require.NoError(t, c.Bootstrap(context.Background()))
	assert.Error(t, c.Bootstrap(context.Background()))
	assert.Equal(t, 1, a.subscribes)
}

func TestBootstrap_AfterClose(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)
	c.Close()

	assert.ErrorIs(t, c.Bootstrap(context.Background()), ErrClosed)
	assert.Equal(t, 0, a.subscribes)
}

func TestBootstrap_GetSessionFails(t *testing.T) {
	a, s := &fakeAuth{getErr: errors.New("offline")}, newFakeStore()
	c := newTestClient(t, a, s)

	assert.Error(t, c.Bootstrap(context.Background()))
	assert.Equal(t, Unauthenticated, c.Snapshot().Mode())
}

// =========================================================================
// SUBSCRIPTION LIFECYCLE
// =========================================================================

func TestClose_UnsubscribesExactlyOnce(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	c.Close()
	c.Close()

	assert.Equal(t, 1, a.subscribes)
	assert.Equal(t, 1, a.unsubscribes)
}

func TestClose_ConcurrentCallsUnsubscribeOnce(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, a.unsubscribes)
}

func TestSessionChange_SignOutClearsList(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))
	require.Len(t, c.Snapshot().Bookmarks, 1)

	a.emit(nil)

	st := c.Snapshot()
	assert.Equal(t, Unauthenticated, st.Mode())
	assert.Empty(t, st.Bookmarks)
}

func TestSessionChange_SignInRefetches(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	s.seed("u2", model.Bookmark{ID: "b9", UserID: "u2"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	a.emit(sessionFor("u2", "b@example.com"))

	st := c.Snapshot()
	assert.Equal(t, Authenticated, st.Mode())
	assert.Equal(t, []string{"b9"}, ids(st.Bookmarks))
}

func TestSessionChange_IgnoredAfterClose(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))
	cb := a.cb
	c.Close()

	// A late delivery from a racing Auth must not revive state.
	cb(sessionFor("u1", "a@example.com"))
	assert.Equal(t, Unauthenticated, c.Snapshot().Mode())
	assert.Equal(t, 0, s.callCount())
}

func TestOnChange_FiresOnStateChanges(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)

	var mu sync.Mutex
	fired := 0
	c.OnChange(func() {
		mu.Lock()
		fired++
		mu.Unlock()
		_ = c.Snapshot() // must not deadlock
	})

	require.NoError(t, c.Bootstrap(context.Background()))
	a.emit(sessionFor("u1", "a@example.com"))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, fired, 2)
}

// =========================================================================
// LIST
// =========================================================================

func TestList_FailureKeepsCache(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	s.listErr = errors.New("timeout")
	s.seed("u1")

	assert.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"b1"}, ids(c.Snapshot().Bookmarks))
}

func TestRefresh_ReplacesWholesale(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	s.seed("u1", model.Bookmark{ID: "b3", UserID: "u1"}, model.Bookmark{ID: "b2", UserID: "u1"})
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, []string{"b3", "b2"}, ids(c.Snapshot().Bookmarks))
}

// =========================================================================
// INSERT
// =========================================================================

func TestInsert_ValidationMakesNoRequest(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))
	before := s.callCount()

	for _, in := range [][2]string{{"", "go.dev"}, {"  ", "go.dev"}, {"Go", ""}, {"Go", "   "}} {
		_, err := c.Insert(context.Background(), in[0], in[1])
		assert.ErrorIs(t, err, apperror.ErrValidation, "Insert(%q, %q)", in[0], in[1])
	}
	assert.Equal(t, before, s.callCount())
}

func TestInsert_NormalizesAndPrepends(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "old", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	row, err := c.Insert(context.Background(), "  Go  ", "  go.dev ")
	require.NoError(t, err)

	assert.Equal(t, model.NewBookmark{UserID: "u1", Title: "Go", URL: "https://go.dev"}, s.lastIns)
	assert.Equal(t, []string{row.ID, "old"}, ids(c.Snapshot().Bookmarks))
}

func TestInsert_URLSchemeRule(t *testing.T) {
	tests := map[string]string{
		"example.com":         "https://example.com",
		"http://example.com":  "http://example.com",
		"https://example.com": "https://example.com",
		// Hosts that merely start with "http" still get a scheme.
		"httpbin.org": "https://httpbin.org",
	}
	for in, want := range tests {
		a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
		c := newTestClient(t, a, s)
		require.NoError(t, c.Bootstrap(context.Background()))

		_, err := c.Insert(context.Background(), "t", in)
		require.NoError(t, err)
		assert.Equal(t, want, s.lastIns.URL, "Insert url %q", in)
	}
}

func TestInsert_FailureKeepsCache(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))
	s.insErr = errors.New("500")

	_, err := c.Insert(context.Background(), "Go", "go.dev")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, []string{"b1"}, ids(c.Snapshot().Bookmarks))
}

func TestInsert_NoSessionIsNoop(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	row, err := c.Insert(context.Background(), "Go", "go.dev")
	assert.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, 0, s.callCount())
}

// =========================================================================
// DELETE
// =========================================================================

func TestDelete_RemovesAfterConfirmation(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b2", UserID: "u1"}, model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	require.NoError(t, c.Delete(context.Background(), "b2"))
	assert.Equal(t, []string{"b1"}, ids(c.Snapshot().Bookmarks))
}

func TestDelete_FailureKeepsCache(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b2", UserID: "u1"}, model.Bookmark{ID: "b1", UserID: "u1"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))
	s.delErr = apperror.Forbidden("nope")

	err := c.Delete(context.Background(), "b2")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, []string{"b2", "b1"}, ids(c.Snapshot().Bookmarks))
}

func TestDelete_NoSessionIsNoop(t *testing.T) {
	a, s := &fakeAuth{}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	assert.NoError(t, c.Delete(context.Background(), "b1"))
	assert.Equal(t, 0, s.callCount())
}

// =========================================================================
// SIGN IN / OUT
// =========================================================================

func TestSignInOut_DelegateWithoutLocalChanges(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 1, a.signOuts)
	assert.Equal(t, Authenticated, c.Snapshot().Mode(), "state changes only via notification")

	require.NoError(t, c.SignIn(context.Background()))
	assert.Equal(t, []string{"google"}, a.signIns)
}

func TestSnapshot_IsACopy(t *testing.T) {
	a, s := &fakeAuth{session: sessionFor("u1", "a@example.com")}, newFakeStore()
	s.seed("u1", model.Bookmark{ID: "b1", UserID: "u1", Title: "orig"})
	c := newTestClient(t, a, s)
	require.NoError(t, c.Bootstrap(context.Background()))

	st := c.Snapshot()
	st.Bookmarks[0].Title = "mutated"
	st.Session.User.Email = "mutated"

	again := c.Snapshot()
	assert.Equal(t, "orig", again.Bookmarks[0].Title)
	assert.Equal(t, "a@example.com", again.Session.User.Email)
}
