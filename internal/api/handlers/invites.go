package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/models"
)

const msgHoursNotInteger = "expires_in_hours must be an integer."

// InviteHandler handles project invite HTTP requests.
type InviteHandler struct {
	invites *auth.InviteIssuer
	logger  *slog.Logger
}

// NewInviteHandler creates a new invite handler.
func NewInviteHandler(invites *auth.InviteIssuer, logger *slog.Logger) *InviteHandler {
	return &InviteHandler{invites: invites, logger: logger}
}

// CreateInviteRequest is the body of POST /api/projects/{projectID}/invite.
// ExpiresInHours may be a JSON number or a numeric string.
type CreateInviteRequest struct {
	ExpiresInHours json.RawMessage `json:"expires_in_hours"`
}

// inviteResponse adds the derived expiry flag to an invite.
type inviteResponse struct {
	*models.ProjectInvite
	IsExpired bool `json:"is_expired"`
}

func toInviteResponse(invite *models.ProjectInvite) inviteResponse {
	return inviteResponse{ProjectInvite: invite, IsExpired: invite.IsExpired()}
}

// parseExpiresIn converts the requested lifetime. Absent means the default
// (zero); values below one hour are raised to one hour. It reports false when
// the value is not an integer.
func parseExpiresIn(raw json.RawMessage) (time.Duration, bool) {
	if len(raw) == 0 {
		return 0, true
	}

	const maxHours = math.MaxInt64 / int64(time.Hour)
	var hours int64
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, false
		}
		hours = n
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return 0, false
		}
		f, err := num.Float64()
		if err != nil {
			return 0, false
		}
		hours = int64(math.Max(math.Min(f, float64(maxHours)), 0))
	}

	hours = min(max(hours, 1), maxHours)
	return time.Duration(hours) * time.Hour, true
}

// Create handles POST /api/projects/{projectID}/invite.
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	expiresIn, ok := parseExpiresIn(req.ExpiresInHours)
	if !ok {
		WriteServiceError(w, r, h.logger, models.NewValidationError("expires_in_hours", msgHoursNotInteger), "create invite")
		return
	}

	invite, err := h.invites.Create(r.Context(), chi.URLParam(r, "projectID"), userID, expiresIn)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "create invite")
		return
	}
	WriteJSON(w, http.StatusCreated, toInviteResponse(invite))
}

// List handles GET /api/projects/{projectID}/invites.
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	invites, err := h.invites.List(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list invites")
		return
	}
	out := make([]inviteResponse, 0, len(invites))
	for _, invite := range invites {
		out = append(out, toInviteResponse(invite))
	}
	WriteJSON(w, http.StatusOK, out)
}

// Revoke handles DELETE /api/projects/{projectID}/invites/{inviteID}.
func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	err := h.invites.Revoke(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "inviteID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "revoke invite")
		return
	}
	WriteNoContent(w)
}

// Info handles GET /api/invite/{token}. No authentication is required.
func (h *InviteHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.invites.Info(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "read invite")
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// Accept handles POST /api/invite/{token}/accept.
func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, err := h.invites.Accept(r.Context(), chi.URLParam(r, "token"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "accept invite")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"project_id": projectID})
}
