package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/handlers/render"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/session"
)

type AuthHandler struct {
	session sessionService
	logger  logger.Logger
}

func handleEntry(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, models.Message{Message: "login required"})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	form, err := render.BindAndValidate[session.LoginForm](w, r)
	if err != nil {
		return
	}

	if err := h.session.Login(r.Context(), form); err != nil {
		h.logger.Info("Login failed", "email", form.Email, "error", err)
		renderError(w, err)
		return
	}

	render.JSON(w, models.Message{Message: "User logged in successfully"})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	form, err := render.BindAndValidate[session.RegisterForm](w, r)
	if err != nil {
		return
	}

	if err := h.session.Register(r.Context(), form); err != nil {
		h.logger.Info("Registration failed", "email", form.Email, "error", err)
		renderError(w, err)
		return
	}

	render.JSON(w, models.Message{Message: "User registered successfully"})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		// Local credentials are gone anyway
		h.logger.Warn("Logout finished with error", "error", err)
	}

	http.Redirect(w, r, EntryPath, http.StatusSeeOther)
}

func (h *AuthHandler) passwordReset(w http.ResponseWriter, r *http.Request) {
	type PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	data, err := render.BindAndValidate[PasswordResetRequest](w, r)
	if err != nil {
		return
	}

	msg, err := h.session.RequestPasswordReset(r.Context(), data.Email)
	if err != nil {
		renderError(w, err)
		return
	}

	render.JSON(w, msg)
}

// renderError maps session and identity errors to responses
func renderError(w http.ResponseWriter, err error) {
	var formErr *apperrors.FormError
	if errors.As(err, &formErr) {
		switch {
		case errors.Is(err, apperrors.ErrInvalidForm), errors.Is(err, apperrors.ErrRegistrationFailed):
			render.FormError(w, formErr, http.StatusBadRequest)
			return
		case errors.Is(err, apperrors.ErrEmailTaken):
			render.FormError(w, formErr, http.StatusConflict)
			return
		case errors.Is(err, apperrors.ErrAuthRejected):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
	}

	switch {
	case errors.Is(err, apperrors.ErrUnauthorized),
		errors.Is(err, apperrors.ErrNoAccessToken),
		errors.Is(err, apperrors.ErrRefreshRejected):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrNetworkFailure),
		errors.Is(err, apperrors.ErrRequestFailed),
		errors.Is(err, apperrors.ErrIdentityUnavailable),
		errors.Is(err, apperrors.ErrMalformedResponse):
		render.ServiceError(w, "Identity service unavailable", http.StatusBadGateway)
	default:
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
