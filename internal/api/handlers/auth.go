package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/narvanalabs/diagrams/internal/api/errors"
	"github.com/narvanalabs/diagrams/internal/auth"
)

// AuthHandler handles registration, token issuance and the current user.
type AuthHandler struct {
	accounts *auth.Accounts
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accounts *auth.Accounts, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

// TokenRequest is the body of POST /api/auth/token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by a successful token request.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "register user")
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

// Token handles POST /api/auth/token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		var fields apierrors.ValidationErrors
		if req.Username == "" {
			fields.Add("username", "This field is required.")
		}
		if req.Password == "" {
			fields.Add("password", "This field is required.")
		}
		apierrors.WriteError(w, fields.ToAPIError())
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		apierrors.WriteError(w, apierrors.NewUnauthorizedError("Invalid username or password."))
		return
	}
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "issue token")
		return
	}
	WriteJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "read current user")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
