package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LuckiPhoenix/idest-server/internal/service"
	"github.com/LuckiPhoenix/idest-server/internal/transport/rest/middleware"
)

// SessionHandler handles session coordination endpoints
type SessionHandler struct {
	coordinator *service.SessionCoordinator
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(coordinator *service.SessionCoordinator) *SessionHandler {
	return &SessionHandler{coordinator: coordinator}
}

// Join handles POST /v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	resp, err := h.coordinator.Join(r.Context(), user, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Roster handles GET /v1/sessions/{id}/roster
func (h *SessionHandler) Roster(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	roster, err := h.coordinator.Roster(r.Context(), user, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roster": roster})
}

// Kick handles POST /v1/sessions/{id}/participants/{userId}/kick
func (h *SessionHandler) Kick(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user := middleware.GetUser(r.Context())

	if err := h.coordinator.Kick(r.Context(), user, vars["id"], vars["userId"]); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// MuteRequest is the request body for stopping a participant's media
type MuteRequest struct {
	Kind string `json:"kind"` // "audio", "video", or "both"
}

// StopMedia handles POST /v1/sessions/{id}/participants/{userId}/mute
func (h *SessionHandler) StopMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user := middleware.GetUser(r.Context())

	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Kind {
	case "audio", "video", "both":
	default:
		writeError(w, http.StatusBadRequest, "kind must be audio, video, or both")
		return
	}

	if err := h.coordinator.StopParticipantMedia(r.Context(), user, vars["id"], vars["userId"], req.Kind); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "muted"})
}

// StartScreenShare handles POST /v1/sessions/{id}/screen-share
func (h *SessionHandler) StartScreenShare(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	if err := h.coordinator.StartScreenShare(r.Context(), user, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sharing"})
}

// StopScreenShare handles DELETE /v1/sessions/{id}/screen-share
func (h *SessionHandler) StopScreenShare(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	if err := h.coordinator.StopScreenShare(r.Context(), user, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// End handles POST /v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	if err := h.coordinator.EndSession(r.Context(), user, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// Delete handles DELETE /v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	if err := h.coordinator.DeleteSession(r.Context(), user, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
