package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/diagrams/internal/projects"
)

// ProjectHandler handles project HTTP requests.
type ProjectHandler struct {
	projects *projects.Service
	logger   *slog.Logger
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(svc *projects.Service, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: svc, logger: logger}
}

// List handles GET /api/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.projects.List(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list projects")
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Create handles POST /api/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req projects.Input
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	project, err := h.projects.Create(r.Context(), userID, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "create project")
		return
	}
	WriteJSON(w, http.StatusCreated, project)
}

// Get handles GET /api/projects/{projectID}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	project, err := h.projects.Get(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "get project")
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

// Update handles PUT and PATCH /api/projects/{projectID}.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req projects.Input
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	project, err := h.projects.Update(r.Context(), chi.URLParam(r, "projectID"), userID, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "update project")
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

// Delete handles DELETE /api/projects/{projectID}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), chi.URLParam(r, "projectID"), userID); err != nil {
		WriteServiceError(w, r, h.logger, err, "delete project")
		return
	}
	WriteNoContent(w)
}

// Members handles GET /api/projects/{projectID}/members.
func (h *ProjectHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	members, err := h.projects.Members(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list members")
		return
	}
	WriteJSON(w, http.StatusOK, members)
}
