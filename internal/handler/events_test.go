package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smart-bookmarks/internal/session"
)

func TestEvents_SignedOutClosesStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	alice := env.login(t, "sub-a", "alice@example.com")
	p, err := env.authSvc.Resolve(context.Background(), alice.AccessToken)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/auth/v1/events"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + alice.AccessToken}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	// Wait for the server side to subscribe before publishing.
	require.Eventually(t, func() bool { return env.hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.authSvc.Logout(ctx, p.SessionID))

	var ev session.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, session.EventSignedOut, ev.Type)
	assert.Equal(t, p.SessionID, ev.SessionID)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestEvents_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/auth/v1/events"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
