// Package http provides the HTTP handlers of the mock admin backend: login,
// dev login, captcha, current user, token refresh and permission lookup.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/teaadmin/internal/middleware"
	"github.com/atinyakov/teaadmin/internal/models"
	"github.com/atinyakov/teaadmin/internal/repository"
	"github.com/atinyakov/teaadmin/internal/server/response"
	"github.com/atinyakov/teaadmin/internal/service"
)

// AuthService defines the authentication operations required by the HTTP
// handlers.
type AuthService interface {
	Captcha(ctx context.Context) (*models.Captcha, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	DevLogin(ctx context.Context, openid string) (*models.LoginResponse, error)
	UserInfo(ctx context.Context, userID int64) (*models.User, error)
	Refresh(ctx context.Context, userID int64) (string, error)
	Permissions(ctx context.Context, userID int64) ([]string, error)
}

// AuthHandler handles the login and session endpoints.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
}

// Captcha issues a development captcha. The code is returned in clear.
func (h *AuthHandler) Captcha(w http.ResponseWriter, r *http.Request) {
	c, err := h.AuthService.Captcha(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, c)
}

// Login handles the captcha protected password login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, models.CodeInvalidParam, "invalid request")
		return
	}
	resp, err := h.AuthService.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, resp)
}

// DevLogin handles the openid login shortcut.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	var req models.DevLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, models.CodeInvalidParam, "invalid request")
		return
	}
	resp, err := h.AuthService.DevLogin(r.Context(), req.OpenID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, resp)
}

// Me returns the account of the bearer.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.AuthService.UserInfo(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, u)
}

// Refresh issues a fresh token for the bearer.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.AuthService.Refresh(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]string{"token": token})
}

// writeError maps service errors onto envelopes. Login failures are never
// answered with 401.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidParam):
		response.Error(w, http.StatusBadRequest, models.CodeInvalidParam, err.Error())
	case errors.Is(err, service.ErrInvalidCaptcha):
		response.Error(w, http.StatusBadRequest, models.CodeInvalidParam, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, http.StatusBadRequest, models.CodeUnauthorized, err.Error())
	case errors.Is(err, service.ErrDevLoginDisabled):
		response.Error(w, http.StatusForbidden, models.CodeForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.Error(w, http.StatusUnauthorized, models.CodeUnauthorized, "account not found")
	default:
		response.Error(w, http.StatusInternalServerError, models.CodeError, "internal error")
	}
}
