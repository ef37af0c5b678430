package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/client"
	"github.com/sakif/smart-bookmarks/internal/model"
)

var _ client.Store = (*Store)(nil)

// Store implements client.Store over the /rest/v1/bookmarks endpoints,
// authenticated with the session held by an Auth.
type Store struct {
	api  *API
	auth *Auth
}

// NewStore returns a Store that borrows auth's session token.
func NewStore(api *API, auth *Auth) *Store {
	return &Store{api: api, auth: auth}
}

func (s *Store) token() (string, error) {
	sess := s.auth.current()
	if sess == nil {
		return "", apperror.Unauthorized("not signed in")
	}
	return sess.AccessToken, nil
}

// call runs one authenticated request. A 401 means the server no longer
// accepts the token, so the session is dropped.
func (s *Store) call(ctx context.Context, method, path string, q url.Values, body, out any) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	err = s.api.do(ctx, method, path, q, token, body, out)
	if errors.Is(err, apperror.ErrUnauthorized) {
		s.auth.drop(token)
	}
	return err
}

func (s *Store) ListBookmarks(ctx context.Context, userID string) ([]model.Bookmark, error) {
	var out []model.Bookmark
	if err := s.call(ctx, http.MethodGet, "/rest/v1/bookmarks", url.Values{"user_id": {userID}}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Bookmark{}
	}
	return out, nil
}

func (s *Store) InsertBookmark(ctx context.Context, in model.NewBookmark) (*model.Bookmark, error) {
	var out model.Bookmark
	if err := s.call(ctx, http.MethodPost, "/rest/v1/bookmarks", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	return s.call(ctx, http.MethodDelete, "/rest/v1/bookmarks/"+url.PathEscape(id), nil, nil, nil)
}
