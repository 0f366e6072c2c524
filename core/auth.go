package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Session struct {
	Principal Principal `json:"principal"`
	Username  string    `json:"username"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrBadCredentials = errors.New("invalid credentials")
)

// AuthStore resolves credentials and tokens into sessions.
type AuthStore interface {
	// NewSession returns a signed session for valid credentials and
	// ErrBadCredentials otherwise.
	NewSession(ctx context.Context, username, password string) (*Session, error)

	// Session verifies the token. Any invalid, expired or unrecognized token
	// yields ErrUnauthenticated.
	Session(ctx context.Context, token string) (*Session, error)
}

type JWTAuthStore struct {
	userStore UserStore
	secret    []byte
	ttl       time.Duration
}

func NewJWTAuthStore(userStore UserStore, secret []byte, ttl time.Duration) *JWTAuthStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTAuthStore{
		userStore: userStore,
		secret:    secret,
		ttl:       ttl,
	}
}

func (s *JWTAuthStore) NewSession(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.userStore.ComparePassword(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("ComparePassword: %w", err)
	}
	if user == nil {
		return nil, ErrBadCredentials
	}

	token, exp, err := NewToken(*user, s.ttl, s.secret)
	if err != nil {
		return nil, fmt.Errorf("NewToken: %w", err)
	}

	return &Session{
		Principal: user.Principal(),
		Username:  user.Username,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (s *JWTAuthStore) Session(_ context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, s.secret)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	principal, err := claims.Principal()
	if err != nil {
		return nil, ErrUnauthenticated
	}

	return &Session{
		Principal: principal,
		Username:  claims.Username,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
