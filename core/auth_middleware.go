package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/putto11262002/riverchat/pkg/router"
)

const (
	key            sessionKey = "session"
	AuthCookieName            = "auth_token"
	// tokenQueryParam lets websocket clients that cannot set headers
	// pass the token in the upgrade URL.
	tokenQueryParam = "token"
)

type sessionKey string

func ContextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, key, session)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(key).(Session)
	return session, ok
}

// SessionFromRequest extracts the session from the request context.
// It must be called in handlers that are protected by the JWTMiddleware.
// It panics if the session is not found in the request context.
func SessionFromRequest(r *http.Request) Session {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		panic("session not found in request context: call this function in handlers that are protected by JWTMiddleware")
	}
	return session
}

func NewSessionCookie(session Session, httpOnly bool, path string) *http.Cookie {
	return &http.Cookie{
		Name:     AuthCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HttpOnly: httpOnly,
		Path:     path,
		SameSite: http.SameSiteLaxMode,
	}
}

// tokenFromRequest looks for the token in the auth cookie, then the
// Authorization bearer header, then the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Valid() == nil {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get(tokenQueryParam)
}

// JWTMiddleware extracts the JWT token from the request and validates it and attaches the session to the request context.
// The session is guaranteed to be attached to the request context if the JWT token is valid for subsequent handlers.
func JWTMiddleware(a AuthStore) router.Middleware {
	return func(next http.Handler) router.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			ctx := r.Context()

			token := tokenFromRequest(r)
			if token == "" {
				return ErrUnauthenticated
			}

			session, err := a.Session(ctx, token)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					return ErrUnauthenticated
				}
				return err
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(ctx, *session)))
			return nil
		}
	}
}
