package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/LuckiPhoenix/idest-server/internal/service"
	"github.com/LuckiPhoenix/idest-server/internal/transport/rest/middleware"
)

// RecordingHandler handles recording endpoints and the provider webhook
type RecordingHandler struct {
	recordingSvc *service.RecordingService
}

// NewRecordingHandler creates a new recording handler
func NewRecordingHandler(recordingSvc *service.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordingSvc: recordingSvc}
}

// Start handles POST /v1/sessions/{id}/recording/start
func (h *RecordingHandler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	egressID, err := h.recordingSvc.Start(r.Context(), user, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"egressId": egressID})
}

// Stop handles POST /v1/sessions/{id}/recording/stop
func (h *RecordingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	if err := h.recordingSvc.Stop(r.Context(), user, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// List handles GET /v1/sessions/{id}/recordings
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	user := middleware.GetUser(r.Context())

	runs, err := h.recordingSvc.ListRecordings(r.Context(), user, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recordings": runs})
}

// Webhook handles POST /v1/webhooks/livekit. Signature failures are client
// errors; recognized-but-ignored events are still acknowledged so the
// provider does not retry them.
func (h *RecordingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.recordingSvc.HandleProviderEvent(r.Context(), body, r.Header.Get("Authorization")); err != nil {
		if errs.KindOf(err) == errs.KindBadRequest {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
