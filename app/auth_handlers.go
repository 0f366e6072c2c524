package riverchat

import (
	"net/http"
	"time"

	"github.com/putto11262002/riverchat/core"
	"github.com/putto11262002/riverchat/pkg/router"
)

type AuthHandler struct {
	store core.AuthStore
}

func NewAuthHandler(store core.AuthStore) *AuthHandler {
	return &AuthHandler{store: store}
}

type SigninPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type SigninResponse struct {
	*core.Session
	// Token is returned for clients that cannot use the cookie.
	Token string `json:"token"`
}

func (h *AuthHandler) SigninHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SigninPayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}
	if err := validateInput(payload); err != nil {
		return err
	}

	session, err := h.store.NewSession(r.Context(), payload.Username, payload.Password)
	if err != nil {
		return err
	}

	http.SetCookie(w, core.NewSessionCookie(*session, true, "/"))
	return router.JSON(w, http.StatusOK, SigninResponse{Session: session, Token: session.Token})
}

// SignoutHandler clears the auth cookie. Tokens are stateless, so a token
// copied elsewhere stays valid until it expires.
func (h *AuthHandler) SignoutHandler(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     core.AuthCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})
	return router.Message(w, http.StatusOK, "signed out")
}
