package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/auth"
)

// AuthService is the subset of auth.Service the handler uses.
type AuthService interface {
	SignInAnonymously(ctx context.Context) (*auth.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, userID string) error
}

// AuthHandler serves /v1/auth.
type AuthHandler struct {
	auth   AuthService
	logger zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

// SignInAnonymously handles POST /v1/auth/anonymous.
func (h *AuthHandler) SignInAnonymously(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.auth.SignInAnonymously(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("anonymous sign-in failed")
		response.ServiceUnavailable(w, r, "sign-in is temporarily unavailable")
		return
	}
	response.JSON(w, r, http.StatusOK, tokens)
}

// RefreshToken handles POST /v1/auth/refresh.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), token)
	switch {
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		response.Unauthorized(w, r, "invalid refresh token")
	case err != nil:
		h.logger.Error().Err(err).Msg("token refresh failed")
		response.ServiceUnavailable(w, r, "token refresh is temporarily unavailable")
	default:
		response.JSON(w, r, http.StatusOK, tokens)
	}
}

// Logout handles POST /v1/auth/logout, ending one session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}

	if err := h.auth.Revoke(r.Context(), token); err != nil {
		h.logger.Error().Err(err).Msg("logout failed")
		response.ServiceUnavailable(w, r, "logout is temporarily unavailable")
		return
	}
	response.NoContent(w, r)
}

// LogoutAll handles POST /v1/auth/logout-all, ending every session of the
// authenticated rider.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	rider := riderID(r)
	if rider == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	if err := h.auth.RevokeAll(r.Context(), rider); err != nil {
		h.logger.Error().Err(err).Str("user_id", rider).Msg("logout-all failed")
		response.ServiceUnavailable(w, r, "logout is temporarily unavailable")
		return
	}
	response.NoContent(w, r)
}

func refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req auth.RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	return req.RefreshToken, true
}
