package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LuckiPhoenix/idest-server/internal/model"
	"github.com/LuckiPhoenix/idest-server/internal/service"
	"github.com/LuckiPhoenix/idest-server/internal/transport/rest/middleware"
)

// CanvasHandler handles whiteboard endpoints
type CanvasHandler struct {
	coordinator *service.SessionCoordinator
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(coordinator *service.SessionCoordinator) *CanvasHandler {
	return &CanvasHandler{coordinator: coordinator}
}

// Open handles POST /v1/sessions/{id}/canvas/open
func (h *CanvasHandler) Open(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	state, err := h.coordinator.OpenCanvas(r.Context(), user, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// CloseRequest is the request body for closing the canvas
type CloseRequest struct {
	State *model.CanvasState `json:"state,omitempty"`
}

// Close handles POST /v1/sessions/{id}/canvas/close
func (h *CanvasHandler) Close(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	var req CloseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.coordinator.CloseCanvas(r.Context(), user, sessionID, req.State); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// Clear handles POST /v1/sessions/{id}/canvas/clear
func (h *CanvasHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	state, err := h.coordinator.ClearCanvas(r.Context(), user, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}
