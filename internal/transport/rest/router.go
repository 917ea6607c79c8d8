package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/LuckiPhoenix/idest-server/internal/service"
	"github.com/LuckiPhoenix/idest-server/internal/transport/rest/handler"
	"github.com/LuckiPhoenix/idest-server/internal/transport/rest/middleware"
	"github.com/LuckiPhoenix/idest-server/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	Coordinator      *service.SessionCoordinator
	RecordingService *service.RecordingService
	WSHub            *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.Coordinator)
	canvasHandler := handler.NewCanvasHandler(c.Coordinator)
	recordingHandler := handler.NewRecordingHandler(c.RecordingService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Coordinator)

	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Provider webhook (authenticated by its own signature header)
	v1.HandleFunc("/webhooks/livekit", recordingHandler.Webhook).Methods("POST")

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/sessions/{id}", wsHandler.SessionWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Session routes (require bearer auth)
	sessionRoutes := v1.NewRoute().Subrouter()
	sessionRoutes.Use(authMW.RequireUser)

	sessionRoutes.HandleFunc("/sessions/{id}/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/roster", sessionHandler.Roster).Methods("GET", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/end", sessionHandler.End).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}", sessionHandler.Delete).Methods("DELETE", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/participants/{userId}/kick", sessionHandler.Kick).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/participants/{userId}/mute", sessionHandler.StopMedia).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/screen-share", sessionHandler.StartScreenShare).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/screen-share", sessionHandler.StopScreenShare).Methods("DELETE", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/canvas/open", canvasHandler.Open).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/canvas/close", canvasHandler.Close).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/canvas/clear", canvasHandler.Clear).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/recording/start", recordingHandler.Start).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/recording/stop", recordingHandler.Stop).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/recordings", recordingHandler.List).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
