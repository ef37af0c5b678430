package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/auth"
	"github.com/sakif/smart-bookmarks/internal/model"
	"github.com/sakif/smart-bookmarks/internal/repository"
	"github.com/sakif/smart-bookmarks/internal/session"
)

// DefaultSessionTTL is used when NewAuthService receives a non-positive TTL.
const DefaultSessionTTL = 7 * 24 * time.Hour

// AuthService owns the sign-in lifecycle:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ session.Store (live sessions)
//	                                 ↘ TokenService (JWT)
//	                                 ↘ session.Publisher (change events)
//
// WHY SERVER-SIDE SESSIONS ON TOP OF A JWT?
// A bare JWT stays valid until it expires, so signing out on one device could
// never reach the others. Each token names a session record (jti); deleting
// the record kills the token immediately and lets us tell subscribers.
type AuthService struct {
	users    repository.UserRepository
	sessions *session.Store
	events   session.Publisher
	tokens   *auth.TokenService
	ttl      time.Duration
	logger   *slog.Logger

	now func() time.Time
}

var _ auth.SessionResolver = (*AuthService)(nil)

// NewAuthService wires the auth dependencies together.
func NewAuthService(
	users repository.UserRepository,
	sessions *session.Store,
	events session.Publisher,
	tokens *auth.TokenService,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		events:   events,
		tokens:   tokens,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// AuthResult bundles what the callback handler needs to finish sign-in.
type AuthResult struct {
	User    *model.User
	Session *model.Session
}

// LoginOrRegister completes an OAuth callback: upsert the user, open a
// session, sign a token for it and announce SIGNED_IN.
//
// WHAT THIS METHOD DOES NOT DO:
//   - It does NOT set cookies or redirect (HTTP concerns)
//   - It does NOT talk to the identity provider (the handler already did)
func (s *AuthService) LoginOrRegister(ctx context.Context, id *auth.Identity) (*AuthResult, error) {
	if id == nil || id.Subject == "" {
		return nil, errors.New("service/auth: identity must carry a subject")
	}

	user := &model.User{
		Provider:  id.Provider,
		Subject:   id.Subject,
		Email:     id.Email,
		Name:      id.Name,
		AvatarURL: id.Picture,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (%s/%s): %w", id.Provider, id.Subject, err)
	}

	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	rec, err := s.sessions.Create(ctx, user.ID, user.Email, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("service/auth: opening session for user %s: %w", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID, rec.ID, expiresAt)
	if err != nil {
		s.sessions.Terminate(ctx, rec.ID)
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.publish(ctx, session.NewEvent(session.EventSignedIn, rec))
	s.logger.Info("user signed in",
		slog.String("userID", user.ID),
		slog.String("sessionID", rec.ID),
		slog.String("provider", id.Provider),
	)

	return &AuthResult{
		User: user,
		Session: &model.Session{
			AccessToken: token,
			ExpiresAt:   rec.ExpiresAt(),
			User:        model.SessionUser{ID: user.ID, Email: user.Email},
		},
	}, nil
}

// Resolve validates token and returns the caller if its session is still
// live. It implements auth.SessionResolver for the middleware.
func (s *AuthService) Resolve(ctx context.Context, token string) (*auth.Principal, error) {
	if token == "" {
		return nil, apperror.Unauthorized("missing access token")
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized("invalid access token")
	}

	rec, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	if rec == nil || rec.UserID != claims.UserID {
		return nil, apperror.Unauthorized("session has ended")
	}
	if !s.now().Before(rec.ExpiresAt()) {
		return nil, apperror.Unauthorized("session has expired")
	}

	return &auth.Principal{
		UserID:    rec.UserID,
		SessionID: rec.ID,
		Email:     rec.Email,
		ExpiresAt: rec.ExpiresAt(),
	}, nil
}

// Session returns the client-facing view of the session behind token.
func (s *AuthService) Session(ctx context.Context, token string) (*model.Session, error) {
	p, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &model.Session{
		AccessToken: token,
		ExpiresAt:   p.ExpiresAt,
		User:        model.SessionUser{ID: p.UserID, Email: p.Email},
	}, nil
}

// Logout ends a session and announces SIGNED_OUT. Ending a session that is
// already gone is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	rec, err := s.sessions.Terminate(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("service/auth: terminating session %s: %w", sessionID, err)
	}
	if rec == nil {
		return nil
	}

	s.publish(ctx, session.NewEvent(session.EventSignedOut, rec))
	s.logger.Info("user signed out",
		slog.String("userID", rec.UserID),
		slog.String("sessionID", rec.ID),
	)
	return nil
}

// GetUserByID returns the full user record for a signed-in caller.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, errors.New("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// publish failures are logged, not returned: the session change already
// happened and clients re-check on their next request anyway.
func (s *AuthService) publish(ctx context.Context, ev session.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish session event",
			slog.String("type", string(ev.Type)),
			slog.String("sessionID", ev.SessionID),
			slog.String("error", err.Error()),
		)
	}
}
