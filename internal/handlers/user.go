package handlers

import (
	"net/http"

	"github.com/nkiryanov/skyauth/internal/handlers/render"
	"github.com/nkiryanov/skyauth/internal/handlers/userctx"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/session"
)

type UserHandler struct {
	session sessionService
	logger  logger.Logger
}

// User resolved by the guard
func (h *UserHandler) home(w http.ResponseWriter, r *http.Request) {
	user, _ := userctx.FromContext(r.Context())
	render.JSON(w, user)
}

func (h *UserHandler) profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.session.Profile(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}

	render.JSON(w, user)
}

func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	form, err := render.BindAndValidate[session.ProfileForm](w, r)
	if err != nil {
		return
	}

	user, err := h.session.UpdateProfile(r.Context(), form)
	if err != nil {
		h.logger.Info("Profile update failed", "error", err)
		renderError(w, err)
		return
	}

	render.JSON(w, user)
}

func (h *UserHandler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userctx.FromContext(r.Context())

	msg, err := h.session.DeleteProfile(r.Context(), user)
	if err != nil {
		h.logger.Warn("Profile delete failed", "error", err)
		renderError(w, err)
		return
	}

	render.JSON(w, msg)
}
