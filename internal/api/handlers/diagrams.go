package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/diagrams/internal/diagram"
)

// DiagramHandler handles diagram HTTP requests and the lock endpoints.
type DiagramHandler struct {
	diagrams *diagram.Service
	locks    *diagram.LockManager
	logger   *slog.Logger
}

// NewDiagramHandler creates a new diagram handler.
func NewDiagramHandler(svc *diagram.Service, locks *diagram.LockManager, logger *slog.Logger) *DiagramHandler {
	return &DiagramHandler{diagrams: svc, locks: locks, logger: logger}
}

// List handles GET /api/projects/{projectID}/diagrams.
func (h *DiagramHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.diagrams.List(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list diagrams")
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Create handles POST /api/projects/{projectID}/diagrams.
func (h *DiagramHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req diagram.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	d, err := h.diagrams.Create(r.Context(), chi.URLParam(r, "projectID"), userID, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "create diagram")
		return
	}
	WriteJSON(w, http.StatusCreated, d)
}

// Get handles GET /api/diagrams/{diagramID}.
func (h *DiagramHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	d, err := h.diagrams.Get(r.Context(), chi.URLParam(r, "diagramID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "get diagram")
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

// Update handles PUT and PATCH /api/diagrams/{diagramID}. Both are partial.
func (h *DiagramHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req diagram.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, h.logger, err)
		return
	}
	d, err := h.diagrams.Update(r.Context(), chi.URLParam(r, "diagramID"), userID, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "update diagram")
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

// Delete handles DELETE /api/diagrams/{diagramID}.
func (h *DiagramHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.diagrams.Delete(r.Context(), chi.URLParam(r, "diagramID"), userID); err != nil {
		WriteServiceError(w, r, h.logger, err, "delete diagram")
		return
	}
	WriteNoContent(w)
}

// GetLock handles GET /api/diagrams/{diagramID}/lock.
func (h *DiagramHandler) GetLock(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	lock, err := h.locks.Inspect(r.Context(), chi.URLParam(r, "diagramID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "read lock")
		return
	}
	WriteJSON(w, http.StatusOK, lock)
}

// AcquireLock handles POST /api/diagrams/{diagramID}/lock. A collision is
// not an error; the response names the current holder.
func (h *DiagramHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	lock, err := h.locks.Acquire(r.Context(), chi.URLParam(r, "diagramID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "acquire lock")
		return
	}
	WriteJSON(w, http.StatusOK, lock)
}

// ReleaseLock handles DELETE /api/diagrams/{diagramID}/lock.
func (h *DiagramHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	lock, err := h.locks.Release(r.Context(), chi.URLParam(r, "diagramID"), userID)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "release lock")
		return
	}
	WriteJSON(w, http.StatusOK, lock)
}
