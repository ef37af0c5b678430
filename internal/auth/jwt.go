// Package auth provides identity-provider sign-in, access-token issuance and
// the request middleware that turns a token back into a session.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Browser or CLI visits /auth/v1/authorize → redirected to Google
//  2. Google calls back /auth/v1/callback with a code
//  3. Server exchanges the code, verifies the ID token, upserts the user
//  4. Server creates a session record and issues a JWT access token for it
//  5. Browsers get the token in an HttpOnly cookie; the CLI gets it on its
//     loopback redirect and sends it as "Authorization: Bearer <token>"
//  6. Middleware validates the JWT and checks the session still exists, so
//     signing out revokes a token before it expires
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"sub":"<user id>","jti":"<session id>","exp":...}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "smart-bookmarks"

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: BOOKMARKS_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Claims is what a valid access token tells us about its bearer.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// claims is the JWT payload. "sub" carries the user ID and "jti" the
// server-side session ID.
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs an access token for the given session. The token expires
// together with the session.
//
// Signing algorithm: HS256 (HMAC-SHA256). Symmetric, which is fine for a
// single service that both issues and verifies its tokens.
func (s *TokenService) Generate(userID, sessionID string, expiresAt time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if c.ID == "" {
		return nil, fmt.Errorf("auth: token has no session id")
	}

	return &Claims{
		UserID:    c.Subject,
		SessionID: c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
