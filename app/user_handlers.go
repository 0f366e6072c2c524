package riverchat

import (
	"fmt"
	"net/http"

	"github.com/putto11262002/riverchat/core"
	"github.com/putto11262002/riverchat/pkg/router"
)

type UserHandler struct {
	store core.UserStore
}

func NewUserHandler(store core.UserStore) *UserHandler {
	return &UserHandler{store: store}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) error {
	var user core.User
	if err := decodeBody(r, &user); err != nil {
		return err
	}
	if err := validateInput(user); err != nil {
		return err
	}
	// roles are granted out of band, never through registration
	user.Role = core.RoleUser

	created, err := h.store.CreateUser(r.Context(), user)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, created)
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	user, err := h.store.GetUserByID(r.Context(), session.Principal.ID)
	if err != nil {
		return fmt.Errorf("get user by id: %w", err)
	}

	if user == nil {
		return router.NewAPIError(http.StatusNotFound, "user not found")
	}
	return router.JSON(w, http.StatusOK, user)
}
