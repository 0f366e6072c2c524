package riverchat

import (
	"errors"
	"net/http"

	"github.com/putto11262002/riverchat/core"
	"github.com/putto11262002/riverchat/pkg/router"
)

// RegisterErrorMappers maps the core errors onto HTTP responses.
// Errors without a mapper become a 500 with a generic message.
func RegisterErrorMappers(r *router.Router) {
	r.RegisterErrorMapper(core.ErrValidation, func(err error) router.Error {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			return router.NewAPIError(http.StatusBadRequest, vErr.Error())
		}
		return router.NewAPIError(http.StatusBadRequest, core.ErrValidation.Error())
	})

	statuses := []struct {
		err    error
		status int
	}{
		{core.ErrUnauthenticated, http.StatusUnauthorized},
		{core.ErrBadCredentials, http.StatusUnauthorized},
		{core.ErrAccessDenied, http.StatusForbidden},
		{core.ErrForbidden, http.StatusForbidden},
		{core.ErrRoomNotFound, http.StatusNotFound},
		{core.ErrMessageNotFound, http.StatusNotFound},
		{core.ErrInvalidReply, http.StatusBadRequest},
		{core.ErrAlreadyMember, http.StatusConflict},
		{core.ErrNotMember, http.StatusConflict},
		{core.ErrConflictedRoom, http.StatusConflict},
		{core.ErrConflictedUser, http.StatusConflict},
		{core.ErrRateLimited, http.StatusTooManyRequests},
	}
	for _, s := range statuses {
		r.RegisterStatus(s.err, s.status)
	}
}
