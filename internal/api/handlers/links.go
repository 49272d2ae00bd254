package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/diagrams/internal/links"
	"github.com/narvanalabs/diagrams/internal/models"
)

// LinkHandler handles cross-diagram link HTTP requests.
type LinkHandler struct {
	graph  *links.Graph
	logger *slog.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(graph *links.Graph, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{graph: graph, logger: logger}
}

// linkResponse is a link together with the warnings raised when it was written.
type linkResponse struct {
	*models.DiagramLink
	Warnings []models.LinkWarning `json:"warnings"`
}

// List handles GET /api/diagrams/{diagramID}/links.
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	set, err := h.graph.List(r.Context(), chi.URLParam(r, "diagramID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list links")
		return
	}
	WriteJSON(w, http.StatusOK, set)
}

// Create handles POST /api/diagrams/{diagramID}/links.
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req links.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	link, warnings, err := h.graph.Create(r.Context(), chi.URLParam(r, "diagramID"), userID, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "create link")
		return
	}
	WriteJSON(w, http.StatusCreated, linkResponse{DiagramLink: link, Warnings: warnings})
}

// ForElement handles GET /api/diagrams/{diagramID}/elements/{elementID}/links.
func (h *LinkHandler) ForElement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.graph.ListForElement(r.Context(), chi.URLParam(r, "diagramID"), chi.URLParam(r, "elementID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list element links")
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// ForProject handles GET /api/projects/{projectID}/links.
func (h *LinkHandler) ForProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.graph.ListForProject(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list project links")
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Get handles GET /api/links/{linkID}.
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	link, err := h.graph.Get(r.Context(), chi.URLParam(r, "linkID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "get link")
		return
	}
	WriteJSON(w, http.StatusOK, link)
}

// Update handles PATCH /api/links/{linkID}.
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req links.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	link, warnings, err := h.graph.Update(r.Context(), chi.URLParam(r, "linkID"), userID, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "update link")
		return
	}
	WriteJSON(w, http.StatusOK, linkResponse{DiagramLink: link, Warnings: warnings})
}

// Delete handles DELETE /api/links/{linkID}.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.graph.Delete(r.Context(), chi.URLParam(r, "linkID"), userID); err != nil {
		WriteServiceError(w, r, h.logger, err, "delete link")
		return
	}
	WriteNoContent(w)
}

// Linkable handles GET /api/diagrams-for-linking.
func (h *LinkHandler) Linkable(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projects, err := h.graph.ListLinkable(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list linkable diagrams")
		return
	}
	WriteJSON(w, http.StatusOK, projects)
}
